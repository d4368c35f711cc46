package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hupe1980/histore/internal/fs"
	"github.com/hupe1980/histore/model"
)

// Durability controls the durability guarantees of the WAL.
type Durability int

const (
	// DurabilityAsync relies on the OS page cache. Fast but a crash may lose
	// the most recent records.
	DurabilityAsync Durability = iota
	// DurabilitySync fsyncs before Append returns.
	DurabilitySync
)

const (
	walMagic      = "HISTWAL1" // 8 bytes
	walVersion    = 1          // 4 bytes
	walHeaderSize = 12
)

var (
	ErrIncompatibleVersion = errors.New("wal: incompatible version")
	ErrInvalidHeader       = errors.New("wal: invalid header")
)

// DefaultCheckpointBytes is the log size after which a store backed by
// durable state checkpoints the log.
const DefaultCheckpointBytes = 64 << 20

// Options configures a WAL.
type Options struct {
	Durability Durability
	// FileSystem defaults to the local file system.
	FileSystem fs.FileSystem
	// CheckpointBytes is the size from which the owner checkpoints the log
	// once its records are durable elsewhere. Zero uses DefaultCheckpointBytes.
	CheckpointBytes int64
}

// DefaultOptions returns synchronous durability on the local file system.
func DefaultOptions() Options {
	return Options{Durability: DurabilitySync, CheckpointBytes: DefaultCheckpointBytes}
}

// WAL manages the write-ahead log file.
type WAL struct {
	mu   sync.Mutex
	fs   fs.FileSystem
	file fs.File
	cw   *countingWriter
	path string
	opts Options

	syncedOffset int64      // offset known to be fsynced
	syncCond     *sync.Cond // data waiting for the syncer
	doneCond     *sync.Cond // a sync completed
	closed       bool
	lastErr      error // terminal error of the syncer
	wg           sync.WaitGroup
}

type countingWriter struct {
	w *bufio.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (cw *countingWriter) Flush() error {
	return cw.w.Flush()
}

// Open opens or creates the WAL at path.
func Open(path string, opts Options) (*WAL, error) {
	fsys := opts.FileSystem
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	offset, err := checkHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	w := &WAL{
		fs:           fsys,
		file:         f,
		cw:           &countingWriter{w: bufio.NewWriter(f), n: offset},
		path:         path,
		opts:         opts,
		syncedOffset: offset,
	}
	w.syncCond = sync.NewCond(&w.mu)
	w.doneCond = sync.NewCond(&w.mu)

	if opts.Durability == DurabilitySync {
		w.wg.Add(1)
		go w.runSyncer()
	}
	return w, nil
}

// checkHeader writes the header of a new file or validates an existing one
// and returns the end offset of the file.
func checkHeader(f fs.File) (int64, error) {
	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := stat.Size()
	if size == 0 {
		header := make([]byte, walHeaderSize)
		copy(header[0:8], walMagic)
		binary.LittleEndian.PutUint32(header[8:12], walVersion)
		if _, err := f.Write(header); err != nil {
			return 0, err
		}
		if err := f.Sync(); err != nil {
			return 0, err
		}
		return walHeaderSize, nil
	}
	if size < walHeaderSize {
		return 0, fmt.Errorf("%w: file too small (%d < %d)", ErrInvalidHeader, size, walHeaderSize)
	}
	header := make([]byte, walHeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		return 0, err
	}
	if string(header[0:8]) != walMagic {
		return 0, fmt.Errorf("%w: magic %q", ErrInvalidHeader, header[0:8])
	}
	if ver := binary.LittleEndian.Uint32(header[8:12]); ver != walVersion {
		return 0, fmt.Errorf("%w: version %d (expected %d)", ErrIncompatibleVersion, ver, walVersion)
	}
	return size, nil
}

// Path returns the file path of the WAL.
func (w *WAL) Path() string { return w.path }

// Size returns the current size of the WAL in bytes.
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cw.n
}

func (w *WAL) runSyncer() {
	defer w.wg.Done()
	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		for w.cw.n <= w.syncedOffset && !w.closed {
			w.syncCond.Wait()
		}
		if w.closed && w.cw.n <= w.syncedOffset {
			return
		}

		target := w.cw.n

		w.mu.Unlock()
		err := w.file.Sync()
		w.mu.Lock()

		if err != nil {
			w.lastErr = fmt.Errorf("wal: sync failed: %w", err)
			w.doneCond.Broadcast()
			return
		}
		if target > w.syncedOffset {
			w.syncedOffset = target
		}
		w.doneCond.Broadcast()
	}
}

// Append writes rec to the WAL, honouring the configured durability.
func (w *WAL) Append(rec *Record) error {
	offset, err := w.AppendAsync(rec)
	if err != nil {
		return err
	}
	if w.opts.Durability == DurabilitySync {
		return w.WaitFor(offset)
	}
	return nil
}

// AppendAsync writes rec without waiting for fsync and returns the end
// offset of the record.
func (w *WAL) AppendAsync(rec *Record) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}
	if w.lastErr != nil {
		return 0, w.lastErr
	}

	if err := rec.Encode(w.cw); err != nil {
		return 0, err
	}
	if err := w.cw.Flush(); err != nil {
		return 0, err
	}

	end := w.cw.n
	if w.opts.Durability == DurabilitySync {
		w.syncCond.Signal()
	}
	return end, nil
}

// WaitFor blocks until the WAL is synced up to offset.
func (w *WAL) WaitFor(offset int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for w.syncedOffset < offset && !w.closed && w.lastErr == nil {
		w.doneCond.Wait()
	}
	if w.lastErr != nil {
		return w.lastErr
	}
	if w.closed && w.syncedOffset < offset {
		return os.ErrClosed
	}
	return nil
}

// Sync commits all buffered records to stable storage.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	if w.lastErr != nil {
		return w.lastErr
	}
	if err := w.cw.Flush(); err != nil {
		return err
	}
	if w.opts.Durability == DurabilityAsync {
		return w.file.Sync()
	}

	target := w.cw.n
	w.syncCond.Signal()
	for w.syncedOffset < target && !w.closed && w.lastErr == nil {
		w.doneCond.Wait()
	}
	return w.lastErr
}

// Close flushes and closes the WAL file.
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return os.ErrClosed
	}
	if err := w.cw.Flush(); err != nil {
		w.mu.Unlock()
		w.file.Close()
		return err
	}
	w.closed = true
	w.syncCond.Signal()
	w.mu.Unlock()

	w.wg.Wait()
	return w.file.Close()
}

// Checkpoint rewrites the log without the records at or below version v,
// whose effects are durable elsewhere, and returns how many it dropped.
// The rewritten log replaces the old one by rename. Appends block meanwhile.
func (w *WAL) Checkpoint(v model.Version) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}
	if err := w.cw.Flush(); err != nil {
		return 0, err
	}
	// the syncer must not hold the file while it is swapped
	for w.opts.Durability == DurabilitySync && w.syncedOffset < w.cw.n && w.lastErr == nil {
		w.syncCond.Signal()
		w.doneCond.Wait()
	}
	if w.lastErr != nil {
		return 0, w.lastErr
	}

	tmp := w.path + fs.TempSuffix
	dropped, size, err := w.rewrite(tmp, v)
	if err != nil {
		_ = w.fs.Remove(tmp)
		return 0, fmt.Errorf("wal: checkpoint: %w", err)
	}
	if dropped == 0 {
		return 0, w.fs.Remove(tmp)
	}

	if err := w.file.Close(); err != nil {
		w.lastErr = fmt.Errorf("wal: checkpoint: %w", err)
		return 0, w.lastErr
	}
	renameErr := w.fs.Rename(tmp, w.path)
	if renameErr != nil {
		_ = w.fs.Remove(tmp)
	}
	f, err := w.fs.OpenFile(w.path, os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		w.lastErr = fmt.Errorf("wal: reopen after checkpoint: %w", err)
		return 0, w.lastErr
	}
	w.file = f
	if renameErr != nil {
		w.cw = &countingWriter{w: bufio.NewWriter(f), n: w.cw.n}
		return 0, fmt.Errorf("wal: checkpoint: %w", renameErr)
	}
	w.cw = &countingWriter{w: bufio.NewWriter(f), n: size}
	w.syncedOffset = size
	return dropped, nil
}

// rewrite copies the records newer than v into a fresh log at tmp and
// returns the number of records left out and the size of the new log.
func (w *WAL) rewrite(tmp string, v model.Version) (int, int64, error) {
	r, err := openReader(w.fs, w.path)
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()

	f, err := w.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	size, err := checkHeader(f)
	if err != nil {
		return 0, 0, err
	}

	cw := &countingWriter{w: bufio.NewWriter(f), n: size}
	dropped := 0
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, 0, err
		}
		if rec.Version <= v {
			dropped++
			continue
		}
		if err := rec.Encode(cw); err != nil {
			return 0, 0, err
		}
	}
	if err := cw.Flush(); err != nil {
		return 0, 0, err
	}
	if err := f.Sync(); err != nil {
		return 0, 0, err
	}
	return dropped, cw.n, nil
}

// Reader returns a reader over the records of the WAL.
// The caller must close it.
func (w *WAL) Reader() (*Reader, error) {
	return openReader(w.fs, w.path)
}

func openReader(fsys fs.FileSystem, path string) (*Reader, error) {
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	if _, err := checkHeader(f); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(walHeaderSize, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{f: f, r: bufio.NewReader(f), offset: walHeaderSize}, nil
}

// Reader iterates over WAL records.
type Reader struct {
	f      fs.File
	r      *bufio.Reader
	offset int64
}

// Next reads the next record. It returns io.EOF at the clean end of the log.
func (r *Reader) Next() (*Record, error) {
	rec, n, err := Decode(r.r)
	if err == nil {
		r.offset += n
	}
	return rec, err
}

// Offset returns the end offset of the last record read successfully.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.f.Close()
}
