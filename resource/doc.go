// Package resource bounds the memory, concurrency and IO bandwidth of
// background work such as snapshot uploads and restores.
//
// A nil *Controller imposes no limits, so callers never need to check for one.
package resource
