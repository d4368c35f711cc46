package histore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/histore/backend"
	"github.com/hupe1980/histore/blobstore"
	"github.com/hupe1980/histore/codec"
	"github.com/hupe1980/histore/internal/snapshot"
	"github.com/hupe1980/histore/model"
)

const snapshotSuffix = ".snap"

// snapshotFile is the body of a snapshot blob.
type snapshotFile struct {
	KeepAllVersions bool           `json:"keep_all_versions"`
	State           *backend.State `json:"state"`
}

// SnapshotName returns the blob name of the snapshot taken at version v.
func SnapshotName(v model.Version) string {
	return fmt.Sprintf("%s%020d%s", blobstore.SnapshotPrefix, uint64(v), snapshotSuffix)
}

// Snapshot writes the complete state of the store, history included, to bs
// and points the CURRENT blob at it. It returns the snapshot name.
//
// Writers are blocked only while the state is captured.
func (s *Store) Snapshot(ctx context.Context, bs blobstore.BlobStore) (name string, err error) {
	start := time.Now()
	var size int64
	defer func() {
		s.metrics.RecordSnapshot(size, time.Since(start), err)
		s.logger.LogSnapshot(ctx, name, size, err)
	}()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.writeMu.Lock()
	if err := s.checkOpen(); err != nil {
		s.writeMu.Unlock()
		return "", err
	}
	st := s.export()
	s.writeMu.Unlock()

	name = SnapshotName(st.Version)
	body, err := s.opts.codec.Marshal(&snapshotFile{
		KeepAllVersions: s.opts.keepAllVersions,
		State:           st,
	})
	if err != nil {
		return "", fmt.Errorf("histore: encode snapshot: %w", err)
	}

	reserved := int64(len(body))
	if err := s.rc.AcquireMemory(ctx, reserved); err != nil {
		return "", err
	}
	defer s.rc.ReleaseMemory(reserved)

	data, err := snapshot.Encode(body, s.opts.codec.Name(), s.opts.compression)
	if err != nil {
		return "", err
	}
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return "", err
	}
	if err := bs.Put(ctx, name, data); err != nil {
		return "", fmt.Errorf("histore: write snapshot %s: %w", name, err)
	}
	if err := bs.Put(ctx, blobstore.CurrentName, []byte(name)); err != nil {
		return "", fmt.Errorf("histore: commit snapshot %s: %w", name, err)
	}
	size = int64(len(data))

	if s.seedsFrom(bs) {
		s.writeMu.Lock()
		if s.checkOpen() == nil && s.failed == nil {
			s.checkpointWAL(ctx, st.Version)
		}
		s.writeMu.Unlock()
	}
	return name, nil
}

// seedsFrom reports whether the store restores from bs on open, so that a
// snapshot committed to bs makes the WAL records it covers redundant.
func (s *Store) seedsFrom(bs blobstore.BlobStore) bool {
	return s.wal != nil && s.backend == nil && s.opts.snapshotStore != nil && s.opts.snapshotStore == bs
}

// Snapshots lists the snapshots in bs, oldest first.
func Snapshots(ctx context.Context, bs blobstore.BlobStore) ([]string, error) {
	names, err := bs.List(ctx, blobstore.SnapshotPrefix)
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if strings.HasSuffix(n, snapshotSuffix) {
			out = append(out, n)
		}
	}
	return out, nil
}

// OpenSnapshot opens a read-only store holding the snapshot name in bs, or
// the current snapshot if name is empty. Writes return ErrReadOnly.
func OpenSnapshot(ctx context.Context, bs blobstore.BlobStore, name string, optFns ...Option) (*Store, error) {
	o := applyOptions(optFns)
	if o.backend != nil || o.walPath != "" || o.snapshotStore != nil {
		return nil, invalidArgument("a snapshot store cannot be opened with a backend, snapshot store or WAL")
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	o.readOnly = true

	s := newStore(o)
	if name == "" {
		current, err := currentSnapshot(ctx, bs)
		if err != nil {
			return nil, err
		}
		if current == "" {
			return nil, fmt.Errorf("%w: no current snapshot", ErrNotFound)
		}
		name = current
	}
	n, err := s.loadSnapshot(ctx, bs, name)
	s.logger.LogRecovery(ctx, "snapshot", n, err)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func currentSnapshot(ctx context.Context, bs blobstore.BlobStore) (string, error) {
	data, err := blobstore.ReadAll(ctx, bs, blobstore.CurrentName)
	if errors.Is(err, blobstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("histore: read %s: %w", blobstore.CurrentName, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// loadCurrentSnapshot restores the current snapshot of bs, if any, and
// returns the number of records restored.
func (s *Store) loadCurrentSnapshot(ctx context.Context, bs blobstore.BlobStore) (int, error) {
	name, err := currentSnapshot(ctx, bs)
	if err != nil || name == "" {
		return 0, err
	}
	return s.loadSnapshot(ctx, bs, name)
}

func (s *Store) loadSnapshot(ctx context.Context, bs blobstore.BlobStore, name string) (int, error) {
	data, err := blobstore.ReadAll(ctx, bs, name)
	if err != nil {
		return 0, fmt.Errorf("histore: read snapshot %s: %w", name, err)
	}
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return 0, err
	}
	body, codecName, err := snapshot.Decode(data)
	if err != nil {
		return 0, fmt.Errorf("histore: decode snapshot %s: %w", name, err)
	}
	c, ok := codec.ByName(codecName)
	if !ok {
		return 0, fmt.Errorf("histore: snapshot %s: unknown codec %q", name, codecName)
	}
	var f snapshotFile
	if err := c.Unmarshal(body, &f); err != nil {
		return 0, fmt.Errorf("histore: decode snapshot %s: %w", name, err)
	}
	if f.State == nil {
		return 0, fmt.Errorf("histore: snapshot %s has no state", name)
	}
	if f.KeepAllVersions != s.opts.keepAllVersions {
		s.logger.WarnContext(ctx, "snapshot retention differs from store",
			"snapshot", name, "keep_all_versions", f.KeepAllVersions)
	}
	if err := s.restore(f.State); err != nil {
		return 0, err
	}
	return len(f.State.Records), nil
}
