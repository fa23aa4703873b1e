package sum

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sganis/dutopia/pkg/age"
	"github.com/sganis/dutopia/pkg/fileutil"
	"github.com/sganis/dutopia/pkg/row"
	"github.com/sganis/dutopia/pkg/users"
)

// Config controls one aggregation pass.
type Config struct {
	// Now is the reference time for age bucketing. Zero means the
	// wall clock at Run time. Pinning it makes repeated runs over
	// the same artifact byte-identical.
	Now int64
	// Ages holds the bucket boundaries in days.
	Ages age.Config
	// Cumulative attributes every record to its whole ancestor
	// chain instead of only its parent folder. Parent-only rows are
	// what the index rollup expects; cumulative output is a
	// self-contained report needing no further rollup.
	Cumulative bool
}

// DefaultConfig returns the standard aggregation settings.
func DefaultConfig() Config {
	return Config{Ages: age.DefaultConfig()}
}

// Result summarizes an aggregation pass.
type Result struct {
	Rows    uint64
	Skipped uint64
	Folders int
	Unknown []uint32
}

type inodeKey struct {
	dev, ino uint64
}

// Aggregator folds records into (folder, user, age) cells. It is
// single-threaded; the fold is one pass over a stream.
type Aggregator struct {
	cfg      Config
	resolver *users.Resolver
	folders  map[string]map[string]*[age.NumBuckets]Stats
	seen     map[inodeKey]struct{}
	rows     uint64
	skipped  uint64
}

// New returns an empty aggregator. A zero cfg.Now is pinned to the
// current time here.
func New(cfg Config) *Aggregator {
	if cfg.Now == 0 {
		cfg.Now = time.Now().Unix()
	}
	return &Aggregator{
		cfg:      cfg,
		resolver: users.NewResolver(),
		folders:  make(map[string]map[string]*[age.NumBuckets]Stats),
		seen:     make(map[inodeKey]struct{}),
	}
}

// FolderKey normalizes a record path into a folder key: forward
// slashes, a leading slash, no trailing slash. The root is "/".
func FolderKey(path []byte) string {
	p := strings.ReplaceAll(string(path), "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	return p
}

// Parent returns the folder containing key. The parent of "/" is "/".
func Parent(key string) string {
	if key == "/" {
		return "/"
	}
	i := strings.LastIndexByte(key, '/')
	if i <= 0 {
		return "/"
	}
	return key[:i]
}

// Add folds one record in.
func (a *Aggregator) Add(rec *row.Record) {
	a.rows++

	atime := age.SanitizeTime(a.cfg.Now, rec.Atime)
	mtime := age.SanitizeTime(a.cfg.Now, rec.Mtime)
	if rec.IsDir() {
		// the walk itself touches directory atimes
		atime = 0
	}
	bucket := a.cfg.Ages.BucketOf(a.cfg.Now, mtime)
	user := a.resolver.Resolve(rec.UID)

	key := inodeKey{dev: rec.Dev, ino: rec.Ino}
	var linked uint64
	if _, dup := a.seen[key]; !dup {
		a.seen[key] = struct{}{}
		linked = rec.Disk
	}

	folder := Parent(FolderKey(rec.Path))
	for {
		a.cell(folder, user, bucket).Add(rec.Size, rec.Disk, linked, atime, mtime)
		if !a.cfg.Cumulative || folder == "/" {
			return
		}
		folder = Parent(folder)
	}
}

func (a *Aggregator) cell(folder, user string, b age.Bucket) *Stats {
	byUser := a.folders[folder]
	if byUser == nil {
		byUser = make(map[string]*[age.NumBuckets]Stats)
		a.folders[folder] = byUser
	}
	buckets := byUser[user]
	if buckets == nil {
		buckets = new([age.NumBuckets]Stats)
		byUser[user] = buckets
	}
	return &buckets[b]
}

// Consume folds every record from r. Rows failing to parse are skipped
// and counted; any other read error is terminal. A stream that yields
// no parseable rows at all is an error, since serving an empty tree
// for a corrupt artifact would silently hide the corruption.
func (a *Aggregator) Consume(r *row.Reader) error {
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if errors.Is(err, row.ErrMalformed) {
			a.skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("read records: %w", err)
		}
		a.Add(&rec)
	}
	if a.rows == 0 {
		return fmt.Errorf("no parseable records (skipped %d)", a.skipped)
	}
	return nil
}

// Result reports totals for the records folded so far.
func (a *Aggregator) Result() Result {
	return Result{
		Rows:    a.rows,
		Skipped: a.skipped,
		Folders: len(a.folders),
		Unknown: a.resolver.Unresolved(),
	}
}

// Run aggregates the artifact at inPath into aggregated CSV at
// outPath. Unresolvable user ids additionally produce a sidecar file
// next to outPath listing them for operator reconciliation.
func Run(cfg Config, inPath, outPath string) (Result, error) {
	r, err := row.Open(inPath)
	if err != nil {
		return Result{}, fmt.Errorf("sum: %w", err)
	}
	a := New(cfg)
	if err := a.Consume(r); err != nil {
		r.Close()
		return Result{}, fmt.Errorf("sum: %s: %w", inPath, err)
	}
	if err := r.Close(); err != nil {
		return Result{}, fmt.Errorf("sum: %w", err)
	}
	if err := a.WriteCSV(outPath); err != nil {
		return Result{}, fmt.Errorf("sum: %w", err)
	}
	res := a.Result()
	if len(res.Unknown) > 0 {
		err := fileutil.WriteTmpThenMove(sidecarPath(outPath), func(tmp string) error {
			return writeUnknown(tmp, res.Unknown)
		})
		if err != nil {
			return res, fmt.Errorf("sum: %w", err)
		}
	}
	return res, nil
}
