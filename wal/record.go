package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/histore/internal/hash"
	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/value"
)

// RecordType identifies the type of a WAL record.
type RecordType uint8

const (
	// RecordTypeBatch is one write batch.
	RecordTypeBatch RecordType = 1
)

const (
	headerSize    = 13 // type + version + length
	maxRecordSize = 256 << 20
)

var (
	ErrInvalidCRC     = errors.New("wal: invalid record checksum")
	ErrInvalidType    = errors.New("wal: invalid record type")
	ErrShortRead      = errors.New("wal: short read in record")
	ErrRecordTooLarge = errors.New("wal: record too large")
)

// Record is one logged write batch.
type Record struct {
	Version model.Version
	Type    RecordType
	Ops     []Op
}

// Op is one operation of a batch. Kind is interpreted by the store.
type Op struct {
	Kind    uint8
	Key     []byte
	Changes []Change
}

// Change sets or deletes one property.
type Change struct {
	Ref    []byte
	Value  value.Value
	Delete bool
}

const changeDelete = 1

func (r *Record) appendPayload(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(r.Ops)))
	for _, op := range r.Ops {
		dst = append(dst, op.Kind)
		dst = appendBytes(dst, op.Key)
		dst = binary.AppendUvarint(dst, uint64(len(op.Changes)))
		for _, c := range op.Changes {
			if c.Delete {
				dst = append(dst, changeDelete)
				dst = appendBytes(dst, c.Ref)
				continue
			}
			dst = append(dst, 0)
			dst = appendBytes(dst, c.Ref)
			dst = value.AppendBinary(dst, c.Value)
		}
	}
	return dst
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

// Encode writes the framed record to w.
func (r *Record) Encode(w io.Writer) error {
	buf := make([]byte, 4+headerSize, 64)
	buf = r.appendPayload(buf)
	payloadLen := len(buf) - 4 - headerSize
	if payloadLen > maxRecordSize {
		return ErrRecordTooLarge
	}

	buf[4] = byte(r.Type)
	binary.LittleEndian.PutUint64(buf[5:13], uint64(r.Version))
	binary.LittleEndian.PutUint32(buf[13:17], uint32(payloadLen))
	binary.LittleEndian.PutUint32(buf[0:4], hash.CRC32C(buf[4:]))

	_, err := w.Write(buf)
	return err
}

// Decode reads one framed record from r and returns it with the number of
// bytes consumed. It returns io.EOF if r is exhausted at a record boundary and
// io.ErrUnexpectedEOF for a torn record.
func Decode(r io.Reader) (*Record, int64, error) {
	var frame [4 + headerSize]byte
	if _, err := io.ReadFull(r, frame[:]); err != nil {
		return nil, 0, err
	}

	checksum := binary.LittleEndian.Uint32(frame[0:4])
	recType := RecordType(frame[4])
	version := binary.LittleEndian.Uint64(frame[5:13])
	length := binary.LittleEndian.Uint32(frame[13:17])
	n := int64(len(frame))

	if length > maxRecordSize {
		return nil, n, ErrRecordTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, n, err
	}
	n += int64(length)

	crc := hash.NewCRC32C()
	crc.Write(frame[4:])
	crc.Write(payload)
	if crc.Sum32() != checksum {
		return nil, n, ErrInvalidCRC
	}
	if recType != RecordTypeBatch {
		return nil, n, ErrInvalidType
	}

	rec := &Record{Type: recType, Version: model.Version(version)}
	if err := rec.parsePayload(payload); err != nil {
		return nil, n, err
	}
	return rec, n, nil
}

func (r *Record) parsePayload(p []byte) error {
	nops, p, err := readUvarint(p)
	if err != nil {
		return err
	}
	r.Ops = make([]Op, 0, nops)
	for range nops {
		if len(p) < 1 {
			return ErrShortRead
		}
		op := Op{Kind: p[0]}
		if op.Key, p, err = readBytes(p[1:]); err != nil {
			return err
		}
		var nchanges uint64
		if nchanges, p, err = readUvarint(p); err != nil {
			return err
		}
		op.Changes = make([]Change, 0, nchanges)
		for range nchanges {
			if len(p) < 1 {
				return ErrShortRead
			}
			c := Change{Delete: p[0]&changeDelete != 0}
			if c.Ref, p, err = readBytes(p[1:]); err != nil {
				return err
			}
			if !c.Delete {
				v, m, err := value.DecodeBinary(p)
				if err != nil {
					return fmt.Errorf("wal: decode value: %w", err)
				}
				c.Value = v
				p = p[m:]
			}
			op.Changes = append(op.Changes, c)
		}
		r.Ops = append(r.Ops, op)
	}
	if len(p) != 0 {
		return fmt.Errorf("wal: %d trailing payload bytes", len(p))
	}
	return nil
}

func readUvarint(p []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(p)
	if n <= 0 {
		return 0, nil, ErrShortRead
	}
	return v, p[n:], nil
}

func readBytes(p []byte) ([]byte, []byte, error) {
	n, p, err := readUvarint(p)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(p)) < n {
		return nil, nil, ErrShortRead
	}
	b := make([]byte, n)
	copy(b, p[:n])
	return b, p[n:], nil
}
