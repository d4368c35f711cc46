// Package histore provides an embedded, versioned record store with
// secondary indexes for Go.
//
// A record is a key plus a set of properties addressed by references
// (paths such as field 2, or field 4, element 0). Every write is stamped
// with a monotonically increasing version. When the store keeps all
// versions, each property and index slot retains its full history and
// reads can be pinned to any past version.
//
// # Quick Start
//
//	ctx := context.Background()
//	s, _ := histore.Open(ctx,
//	    histore.WithKeepAllVersions(true),
//	    histore.WithIndex(histore.IndexDef{Name: "email", Reference: ref.Field(5), Unique: true}),
//	)
//	defer s.Close()
//
//	key, v, _ := s.Add(ctx, nil,
//	    histore.Set(ref.Field(1), value.String("ada")),
//	    histore.Set(ref.Field(5), value.String("ada@example.com")),
//	)
//
// # Writes
//
// Write applies a batch of operations at one version. Each operation is
// atomic on its own: a failing operation is reported in its OpResult and
// leaves the store unchanged, while the rest of the batch still applies.
//
//	v, results, err := s.Write(ctx,
//	    histore.Op{Kind: histore.OpChange, Key: key, Changes: []histore.Change{
//	        histore.Set(ref.Field(2), value.Int(36)),
//	    }},
//	    histore.Op{Kind: histore.OpDelete, Key: other},
//	)
//
// Unique indexes reject a value already held by another live record with a
// *UniqueConflictError. Soft-deleted records release their index values and
// may be restored; HardDelete erases a record and its index history.
//
// # Reads
//
//	name, ok, _ := s.Get(ctx, key, ref.Field(1).Ref())
//	old, _, _ := s.Get(ctx, key, ref.Field(2).Ref(), histore.AtVersion(v-1))
//	results, _ := s.Scan(ctx, histore.ScanRequest{
//	    Filter: &filter.GreaterThan{Ref: ref.Field(2), Value: value.Int(30)},
//	})
//	holder, _ := s.Lookup(ctx, "email", value.String("ada@example.com"))
//
// # Durability Model
//
// Writes are appended to an optional write-ahead log before they are
// applied and are replayed on open. A backend (see backend/badger) receives
// the full new state of everything a write touched and seeds the store on
// open. Snapshots serialize the complete store, history included, to any
// blobstore.BlobStore (local directory, S3, MinIO):
//
//	s, _ := histore.Open(ctx,
//	    histore.WithWAL("./data/people.wal"),
//	    histore.WithSnapshot(blobstore.NewLocalStore("./data")),
//	)
//	name, _ := s.Snapshot(ctx, blobstore.NewLocalStore("./data"))
//
// # Key Features
//
//   - Multi-version properties with time-travel reads
//   - Unique and non-unique secondary indexes over wildcard references
//   - Filter expressions evaluated as of any version
//   - Write-ahead log, badger backend and compressed snapshots
//   - Structured logging and pluggable metrics (Prometheus adapter)
package histore
