// Package backend defines the persistent projection of a histore Store.
//
// The in-memory Store stays authoritative. After each applied batch it hands
// the Backend a Batch describing the full new state of every record, node
// chain and index slot the batch touched. A Backend writes that state
// atomically and can rebuild it on open with Load.
//
// backend/badger provides the embedded implementation.
package backend
