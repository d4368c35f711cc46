// Package hash provides the CRC32-Castagnoli checksum used by the WAL and
// the snapshot container.
//
//	checksum := hash.CRC32C(data)
//
// or, streaming:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
package hash
