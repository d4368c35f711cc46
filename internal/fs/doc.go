// Package fs abstracts the file system for the WAL and the local blob store
// so tests can inject I/O faults.
//
// Production code uses Default (LocalFS). Tests wrap it in a FaultyFS:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("wal", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
package fs
