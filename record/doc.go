// Package record holds the per-key collection of value nodes.
//
// A Record keeps its nodes sorted by reference. Writers replace the node
// slice wholesale (copy-on-write), so readers may call Get, Resolve and Nodes
// concurrently with a single writer without locking. Callers must serialize
// writers themselves.
package record
