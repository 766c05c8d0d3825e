// Command framepipe runs pipeline sessions, reference workers and progress
// watchers against a NATS JetStream deployment.
//
// Every command accepts --embedded, which starts an in-process NATS server
// with JetStream instead of dialing --nats-url. Combined with
// "run --workers N" this processes a directory of units end to end in a
// single process.
package main
