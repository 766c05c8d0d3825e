// Package testutil provides shared test utilities and fixtures for integration tests.
//
// This package contains common setup code, test data, and helper functions
// that are used across the integration and stress suites:
//   - Cluster: embedded NATS with the queue, store, progress bucket and a set of workers
//   - Invariant assertions over ordered output and session reports
//   - ResourceMonitor for memory and goroutine tracking during load
//
// Note: For NATS server setup alone, use the github.com/arloliu/framepipe/testing package.
// This package is specifically for integration test scenarios and helper utilities.
package testutil
