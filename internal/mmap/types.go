package mmap

import "errors"

// AccessPattern is a read-ahead hint for the kernel.
type AccessPattern int

const (
	// AccessDefault leaves read-ahead to the kernel.
	AccessDefault AccessPattern = iota
	// AccessSequential suits snapshot decoding, which reads front to back.
	AccessSequential
)

var (
	ErrClosed        = errors.New("mmap: closed")
	ErrInvalidSize   = errors.New("mmap: invalid file size")
	ErrInvalidOffset = errors.New("mmap: negative offset")
)
