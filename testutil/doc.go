// Package testutil provides deterministic fixtures for histore tests.
//
// This package is intended for use in tests and benchmarks only.
//
//	rng := testutil.NewRNG(seed)
//	key := rng.Key()                 // 16 random bytes
//	v := rng.Value()                 // random scalar of any kind
//	people := testutil.People(rng, 100)
//
// People returns records with a fixed shape (name, age, city, tags and a
// unique email) so filter, index and scan tests can assert on them.
package testutil
