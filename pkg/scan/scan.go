// Package scan walks filesystem trees with a pool of workers and writes
// one raw usage record per inode into per-worker shard files.
//
// Directories are distributed through a shared queue so that large and
// small subtrees balance across the pool. Large directories are split
// into fixed-size pages of file paths so a single huge directory does
// not pin one worker.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sganis/dutopia/pkg/logging"
	"github.com/sganis/dutopia/pkg/row"
)

const (
	// fileChunk is the page size for splitting large directories.
	fileChunk = 2048

	// maxWarnings caps the retained warning list. Counters keep
	// counting past the cap.
	maxWarnings = 10000

	// idleChecks is how many consecutive zero readings of the
	// outstanding-task counter the watcher needs before it declares
	// the walk finished.
	idleChecks   = 5
	idleInterval = 100 * time.Millisecond
)

// Config controls a scan session.
type Config struct {
	// Workers is the pool size.
	Workers int
	// ShardDir is where shard files are written.
	ShardDir string
	// Format selects the shard record encoding.
	Format row.Format
	// Skip drops any path containing this substring. Skipped
	// directories are not descended into. Empty disables skipping.
	Skip string
	// NoAtime zeroes access times in emitted records so repeated
	// scans of an unchanged tree produce identical output.
	NoAtime bool
}

// DefaultConfig returns a config sized for the current machine.
func DefaultConfig() Config {
	w := 2 * runtime.NumCPU()
	if w < 4 {
		w = 4
	}
	if w > 48 {
		w = 48
	}
	return Config{
		Workers:  w,
		ShardDir: os.TempDir(),
		Format:   row.FormatText,
	}
}

// WarningClass categorizes a per-path failure.
type WarningClass string

const (
	WarnPermission WarningClass = "permission"
	WarnVanished   WarningClass = "vanished"
	WarnStat       WarningClass = "stat"
	WarnReadDir    WarningClass = "readdir"
)

// Warning is a path the scan could not fully process. The walk
// continues past warnings; they are reported at the end.
type Warning struct {
	Path  string
	Class WarningClass
}

// A task is either one directory to read or one page of file paths to
// stat. Exactly one of dir and files is set.
type task struct {
	dir   string
	files []string
}

// Session runs one scan and accumulates its counters and warnings.
// Counters are safe to read concurrently while the scan runs.
type Session struct {
	cfg Config

	files  atomic.Uint64
	dirs   atomic.Uint64
	bytes  atomic.Uint64
	errors atomic.Uint64

	// inflight counts enqueued-but-unfinished tasks. It is
	// incremented before a task enters the queue and decremented
	// after the worker finishes it, so zero means the walk is done.
	inflight atomic.Int64

	mu       sync.Mutex
	warnings []Warning
	runErr   error
}

// NewSession prepares a session. Run may be called once.
func NewSession(cfg Config) *Session {
	return &Session{cfg: cfg}
}

// Snapshot implements logging.Snapshotter.
func (s *Session) Snapshot() logging.Counts {
	return logging.Counts{
		Files:  s.files.Load() + s.dirs.Load(),
		Bytes:  s.bytes.Load(),
		Errors: s.errors.Load(),
	}
}

// Files returns the number of non-directory records emitted so far.
func (s *Session) Files() uint64 { return s.files.Load() }

// Dirs returns the number of directory records emitted so far.
func (s *Session) Dirs() uint64 { return s.dirs.Load() }

// Errors returns the number of paths that failed so far.
func (s *Session) Errors() uint64 { return s.errors.Load() }

// Warnings returns the retained per-path failures.
func (s *Session) Warnings() []Warning {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Warning, len(s.warnings))
	copy(out, s.warnings)
	return out
}

func (s *Session) warn(path string, class WarningClass) {
	s.errors.Add(1)
	s.mu.Lock()
	if len(s.warnings) < maxWarnings {
		s.warnings = append(s.warnings, Warning{Path: path, Class: class})
	}
	s.mu.Unlock()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.runErr == nil {
		s.runErr = err
	}
	s.mu.Unlock()
}

func classify(err error) WarningClass {
	switch {
	case os.IsPermission(err):
		return WarnPermission
	case os.IsNotExist(err):
		return WarnVanished
	default:
		return WarnStat
	}
}

// Run walks roots and returns the shard paths in worker order. Missing
// roots are an error before any worker starts. Cancelling ctx stops
// descending into new directories; already queued work is drained and
// the shards written so far remain valid.
func (s *Session) Run(ctx context.Context, roots []string) ([]string, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("scan: no roots given")
	}
	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		r = filepath.Clean(r)
		if _, err := os.Lstat(r); err != nil {
			return nil, fmt.Errorf("scan: root %s: %w", r, err)
		}
		cleaned = append(cleaned, r)
	}

	writers := make([]*shardWriter, s.cfg.Workers)
	shards := make([]string, s.cfg.Workers)
	for i := range writers {
		sw, err := newShardWriter(s.cfg.ShardDir, i, s.cfg.Format)
		if err != nil {
			for _, w := range writers[:i] {
				w.discard()
			}
			return nil, fmt.Errorf("scan: create shard: %w", err)
		}
		writers[i] = sw
		shards[i] = sw.path
	}

	q := newQueue()
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(sw *shardWriter) {
			defer wg.Done()
			s.worker(ctx, q, sw)
		}(writers[i])
	}

	for _, r := range cleaned {
		s.enqueue(q, task{dir: r})
	}
	go s.watch(q)
	wg.Wait()

	var closeErr error
	for _, w := range writers {
		if err := w.close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}

	s.mu.Lock()
	err := s.runErr
	s.mu.Unlock()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return shards, fmt.Errorf("scan: %w", err)
	}
	return shards, nil
}

// watch closes the queue once the outstanding-task counter has been
// observed at zero several times in a row. A single reading is not
// trusted because a worker may be between dequeuing a task and
// enqueuing its children.
func (s *Session) watch(q *queue) {
	t := time.NewTicker(idleInterval)
	defer t.Stop()
	zeros := 0
	for range t.C {
		if s.inflight.Load() == 0 {
			zeros++
		} else {
			zeros = 0
		}
		if zeros >= idleChecks {
			q.closeInput()
			return
		}
	}
}

func (s *Session) enqueue(q *queue, t task) {
	s.inflight.Add(1)
	q.push(t)
}

func (s *Session) worker(ctx context.Context, q *queue, sw *shardWriter) {
	for t := range q.out {
		if ctx.Err() == nil {
			if t.files != nil {
				s.scanFiles(sw, t.files)
			} else {
				s.scanDir(ctx, q, sw, t.dir)
			}
		}
		s.inflight.Add(-1)
	}
}

func (s *Session) scanDir(ctx context.Context, q *queue, sw *shardWriter, dir string) {
	rec, err := statRecord(dir)
	if err != nil {
		s.warn(dir, classify(err))
		return
	}
	s.emit(sw, &rec)
	s.dirs.Add(1)

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.warn(dir, WarnReadDir)
		return
	}

	var page []string
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if s.cfg.Skip != "" && strings.Contains(p, s.cfg.Skip) {
			continue
		}
		if e.IsDir() {
			if ctx.Err() == nil {
				s.enqueue(q, task{dir: p})
			}
			continue
		}
		page = append(page, p)
		if len(page) == fileChunk {
			s.enqueue(q, task{files: page})
			page = nil
		}
	}
	if len(page) > 0 {
		// Small tail pages are processed inline to keep locality.
		s.scanFiles(sw, page)
	}
}

func (s *Session) scanFiles(sw *shardWriter, paths []string) {
	for _, p := range paths {
		rec, err := statRecord(p)
		if err != nil {
			s.warn(p, classify(err))
			continue
		}
		s.emit(sw, &rec)
		s.files.Add(1)
		s.bytes.Add(rec.Disk)
	}
}

func (s *Session) emit(sw *shardWriter, rec *row.Record) {
	if s.cfg.NoAtime {
		rec.Atime = 0
	}
	if err := sw.add(rec); err != nil {
		s.fail(err)
	}
}
