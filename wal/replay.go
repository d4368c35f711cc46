package wal

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/histore/internal/fs"
)

// ReplayResult summarizes a replay.
type ReplayResult struct {
	// Records is the number of records handed to the callback.
	Records int
	// Truncated is the number of tail bytes discarded as torn or corrupt.
	Truncated int64
}

// Replay reads every record of the WAL at path in order and calls fn for
// each. A missing or empty file replays nothing. A torn or corrupt tail is
// truncated so that later appends continue after the last good record.
// An error returned by fn aborts the replay and is returned as is.
func Replay(path string, opts Options, fn func(*Record) error) (ReplayResult, error) {
	fsys := opts.FileSystem
	if fsys == nil {
		fsys = fs.Default
	}
	var res ReplayResult

	st, err := fsys.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		return res, err
	}
	if st.Size() == 0 {
		return res, nil
	}

	r, err := openReader(fsys, path)
	if err != nil {
		return res, err
	}

	var tailErr error
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			tailErr = err
			break
		}
		if err := fn(rec); err != nil {
			r.Close()
			return res, err
		}
		res.Records++
	}
	good := r.Offset()
	if err := r.Close(); err != nil {
		return res, err
	}

	if tailErr != nil {
		if !isTornTail(tailErr) {
			return res, fmt.Errorf("wal: replay at offset %d: %w", good, tailErr)
		}
		res.Truncated = st.Size() - good
		if err := fsys.Truncate(path, good); err != nil {
			return res, fmt.Errorf("wal: truncate torn tail: %w", err)
		}
	}
	return res, nil
}

func isTornTail(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, ErrInvalidCRC) ||
		errors.Is(err, ErrRecordTooLarge)
}
