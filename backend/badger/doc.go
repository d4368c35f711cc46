// Package badger implements backend.Backend on BadgerDB.
//
// Node and index chains are stored one entry per key with the version
// inverted, so the newest entry of a chain comes first in key order. A point
// in time read is a single iterator seek (see Store.GetAt), and Load rebuilds
// full chains by scanning each prefix once.
//
//	s, err := badger.Open(badger.DefaultConfig("/var/lib/histore"))
//	if err != nil { ... }
//	defer s.Close()
//
//	db, err := histore.Open(histore.WithBackend(s))
package badger
