package histore

import (
	"github.com/google/uuid"

	"github.com/hupe1980/histore/model"
)

// KeyGenerator returns a fresh record key.
type KeyGenerator func() (model.Key, error)

// NewKey returns a 16-byte UUIDv7 key. Keys from one process sort by
// creation time.
func NewKey() (model.Key, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return model.Key(id[:]), nil
}
