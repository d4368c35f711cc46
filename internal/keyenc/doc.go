// Package keyenc provides order-preserving byte encodings.
//
// Every component written by this package compares under bytes.Compare exactly
// like its decoded form does, so encoded components can be concatenated into
// composite keys for sorted key spaces (in-memory indexes, LSM engines).
//
//   - Escaped byte strings: 0x00 is written as 0x00 0xFF and the string is
//     terminated by 0x00 0x01.
//   - Unsigned integers: fixed-width big endian.
//   - Descending unsigned integers: bitwise complement, big endian.
package keyenc
