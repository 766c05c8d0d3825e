// Package store implements the shared result store.
//
// Every unit has two write-once keys: the processed artifact and a JSON
// metadata record. Workers write the artifact first; presence of both keys is
// the only completion signal, so a reader never acts on a half-written pair.
//
// JetStream keeps artifacts in an Object Store bucket named
// "<session>/<seq>" and metadata in a KV bucket keyed "<session>.<seq>".
// FS mirrors a shared volume layout: "<dir>/<session>/unit_<seq>.bin" and
// ".json", each written to a temporary file and hard-linked into place.
package store
