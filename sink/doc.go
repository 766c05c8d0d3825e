// Package sink provides ProgressSink implementations.
//
// KV stores progress fields in a JetStream key-value bucket under
// "<session>.<field>", so observers can watch a session with a single
// wildcard. Redis stores them under "session:<id>:<field>" with a TTL. Nop
// discards everything.
package sink
