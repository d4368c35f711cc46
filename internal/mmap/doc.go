// Package mmap gives the local blob store read-only views of blob files.
//
//	m, err := mmap.Open(fsys, path, mmap.AccessSequential)
//	if err != nil { ... }
//	defer m.Close()
//	body, _ := m.Bytes()
//
// Files of the local file system are mapped with mmap(2) and advised with
// madvise(2) on Unix, and with CreateFileMapping and MapViewOfFile on
// Windows. Files opened through any other fs.FileSystem are read whole.
package mmap
