// Package blobstore stores snapshot blobs for histore.
//
// A snapshot is written as an immutable blob named snapshots/<version>.snap
// followed by a small CURRENT blob naming it. Put must be atomic so that a
// reader never sees a half-written CURRENT.
//
// # Built-in Implementations
//
//   - LocalStore: local directory, temp-file plus rename writes, mmap reads
//   - MemoryStore: in-process map, for tests
//   - s3.Store: Amazon S3, with s3.DDBCommitStore for conditional CURRENT
//     commits through DynamoDB
//   - minio.Store: MinIO and other S3-compatible servers
//
// Blobs that already live in memory implement Mappable, which lets ReadAll
// avoid a copy through ReaderAt.
package blobstore
