package badger

import (
	"errors"
	"fmt"

	"github.com/hupe1980/histore/backend"
	"github.com/hupe1980/histore/internal/keyenc"
	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/value"
)

// Key layout. Every variable component is escaped with keyenc so that
// prefixes never straddle component boundaries, and versions are stored
// inverted so the newest entry of a chain sorts first.
//
//	m <key>                      -> first version, last version
//	v <key> <ref> ^version       -> tombstone flag, value
//	i <index> <slot> ^version    -> vacant flag, record key
//	s                            -> last applied version
const (
	prefixMeta  = 'm'
	prefixNode  = 'v'
	prefixSlot  = 'i'
	prefixState = 's'
)

const (
	entryLive      = 0
	entryTombstone = 1

	slotVacant = 0
	slotHeld   = 1
)

var errCorrupt = errors.New("badger: corrupt entry")

var stateKey = []byte{prefixState}

func metaKey(key model.Key) []byte {
	return keyenc.AppendEscaped([]byte{prefixMeta}, key)
}

func nodeRecordPrefix(key model.Key) []byte {
	return keyenc.AppendEscaped([]byte{prefixNode}, key)
}

func nodePrefix(key model.Key, r ref.Reference) []byte {
	return keyenc.AppendEscaped(nodeRecordPrefix(key), r)
}

func nodeKey(key model.Key, r ref.Reference, v model.Version) []byte {
	return keyenc.AppendUint64Desc(nodePrefix(key, r), uint64(v))
}

func slotPrefix(index string, slot []byte) []byte {
	return keyenc.AppendEscaped(keyenc.AppendEscaped([]byte{prefixSlot}, []byte(index)), slot)
}

func slotKey(index string, slot []byte, v model.Version) []byte {
	return keyenc.AppendUint64Desc(slotPrefix(index, slot), uint64(v))
}

func encodeMeta(m backend.RecordMeta) []byte {
	buf := keyenc.AppendUint64(make([]byte, 0, 16), uint64(m.FirstVersion))
	return keyenc.AppendUint64(buf, uint64(m.LastVersion))
}

func decodeMeta(k, v []byte) (backend.RecordMeta, error) {
	key, rest, err := keyenc.DecodeEscaped(k[1:])
	if err != nil || len(rest) != 0 {
		return backend.RecordMeta{}, fmt.Errorf("%w: meta key", errCorrupt)
	}
	first, v, err := keyenc.Uint64(v)
	if err != nil {
		return backend.RecordMeta{}, fmt.Errorf("%w: meta value", errCorrupt)
	}
	last, _, err := keyenc.Uint64(v)
	if err != nil {
		return backend.RecordMeta{}, fmt.Errorf("%w: meta value", errCorrupt)
	}
	return backend.RecordMeta{Key: key, FirstVersion: model.Version(first), LastVersion: model.Version(last)}, nil
}

func encodeNodeEntry(e backend.NodeEntry) []byte {
	if e.Deleted {
		return []byte{entryTombstone}
	}
	return value.AppendBinary([]byte{entryLive}, e.Value)
}

func decodeNodeEntry(v []byte) (value.Value, bool, error) {
	if len(v) == 0 {
		return value.Value{}, false, fmt.Errorf("%w: empty node entry", errCorrupt)
	}
	switch v[0] {
	case entryTombstone:
		return value.Value{}, true, nil
	case entryLive:
		val, _, err := value.DecodeBinary(v[1:])
		if err != nil {
			return value.Value{}, false, fmt.Errorf("%w: %w", errCorrupt, err)
		}
		return val, false, nil
	default:
		return value.Value{}, false, fmt.Errorf("%w: node flag %d", errCorrupt, v[0])
	}
}

// decodeNodeKey splits a node key into record key, reference and version.
func decodeNodeKey(k []byte) (model.Key, ref.Reference, model.Version, error) {
	key, rest, err := keyenc.DecodeEscaped(k[1:])
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: node key", errCorrupt)
	}
	r, rest, err := keyenc.DecodeEscaped(rest)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: node ref", errCorrupt)
	}
	v, _, err := keyenc.Uint64Desc(rest)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: node version", errCorrupt)
	}
	return key, r, model.Version(v), nil
}

func encodeSlotEntry(e backend.IndexEntry) []byte {
	if e.Record == nil {
		return []byte{slotVacant}
	}
	return append([]byte{slotHeld}, e.Record...)
}

func decodeSlotEntry(v []byte) (model.Key, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty slot entry", errCorrupt)
	}
	switch v[0] {
	case slotVacant:
		return nil, nil
	case slotHeld:
		return model.Key(v[1:]).Clone(), nil
	default:
		return nil, fmt.Errorf("%w: slot flag %d", errCorrupt, v[0])
	}
}

func decodeSlotKey(k []byte) (string, []byte, model.Version, error) {
	index, rest, err := keyenc.DecodeEscaped(k[1:])
	if err != nil {
		return "", nil, 0, fmt.Errorf("%w: slot index", errCorrupt)
	}
	slot, rest, err := keyenc.DecodeEscaped(rest)
	if err != nil {
		return "", nil, 0, fmt.Errorf("%w: slot key", errCorrupt)
	}
	v, _, err := keyenc.Uint64Desc(rest)
	if err != nil {
		return "", nil, 0, fmt.Errorf("%w: slot version", errCorrupt)
	}
	return string(index), slot, model.Version(v), nil
}
