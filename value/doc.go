// Package value provides the typed scalar values stored in record properties.
//
// A Value is a small tagged union (Kind + payload) with no reflection on the
// hot path. Values of one kind are totally ordered; Int and Float compare
// numerically with each other.
//
// Three encodings are provided:
//
//   - JSON (MarshalJSON/UnmarshalJSON) for snapshots
//   - Binary (AppendBinary/DecodeBinary) for the WAL and persistent backends
//   - Sortable (AppendSortable) whose bytes compare like the values themselves,
//     used to build index keys
package value
