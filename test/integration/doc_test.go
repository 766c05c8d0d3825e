// Package integration_test runs sessions end to end against an embedded NATS
// server with JetStream and in-process reference workers.
package integration_test
