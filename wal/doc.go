// Package wal provides the write-ahead log of a store.
//
// Every write batch is appended as one CRC-framed record, stamped with the
// batch version, before the batch is applied in memory. On open the log is
// replayed through the regular write path with the recorded versions, so the
// store reaches the same state and the same per-operation outcomes.
//
// Record framing:
//
//	[CRC32C 4] [Type 1] [Version 8] [Length 4] [Payload Length]
//
// The checksum covers everything after itself. A torn or corrupt tail is
// truncated by Replay; everything before it is kept.
//
// With DurabilitySync, Append blocks until the record is fsynced. Concurrent
// appenders share fsyncs through a background syncer (group commit).
package wal
