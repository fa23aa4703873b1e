package index

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sganis/dutopia/pkg/row"
	"github.com/sganis/dutopia/pkg/sum"
	"github.com/sganis/dutopia/pkg/users"
)

// Load builds the serving tree from an aggregated artifact. Unlike
// aggregation, a malformed row here is fatal: a partially loaded tree
// would serve wrong subtree totals with no sign anything is missing.
func Load(aggPath string) (*Index, error) {
	f, err := os.Open(aggPath)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	defer f.Close()

	ix, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("index: %s: %w", aggPath, err)
	}
	return ix, nil
}

func read(src io.Reader) (*Index, error) {
	lr := row.NewLineReader(src)

	header, err := lr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty aggregated artifact")
	}
	if err != nil {
		return nil, err
	}
	if got := string(header); got != sum.Header {
		return nil, fmt.Errorf("invalid header %q (want %q)", got, sum.Header)
	}

	ix := &Index{root: newNode()}
	userSet := make(map[string]bool)
	lineNo := 1
	rows := 0
	for {
		line, err := lr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		lineNo++
		if len(line) == 0 {
			continue
		}
		r, err := sum.ParseRow(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		n := ix.root
		for _, seg := range segments(r.Path) {
			n = n.child(seg, true)
		}
		n.cell(r.User, true)[r.Age].Merge(&r.Stats)
		userSet[r.User] = true
		rows++
	}
	if rows == 0 {
		return nil, fmt.Errorf("aggregated artifact has no rows")
	}

	ix.root.rollup()
	ix.users = make([]string, 0, len(userSet))
	for u := range userSet {
		ix.users = append(ix.users, u)
	}
	sort.Strings(ix.users)
	return ix, nil
}

// LoadFiles attaches per-folder file listings from the raw scan
// artifact. Directory records are skipped; each remaining object is
// listed under its parent folder. Malformed records are fatal here for
// the same reason malformed aggregated rows are.
func (ix *Index) LoadFiles(rawPath string) error {
	r, err := row.Open(rawPath)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	defer r.Close()

	resolver := users.NewResolver()
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("index: %s: %w", rawPath, err)
		}
		if rec.IsDir() {
			continue
		}
		key := sum.FolderKey(rec.Path)
		n := ix.root
		for _, seg := range segments(sum.Parent(key)) {
			n = n.child(seg, true)
		}
		n.files = append(n.files, FileEntry{
			Path:     key,
			Owner:    resolver.Resolve(rec.UID),
			Size:     rec.Size,
			Disk:     rec.Disk,
			Accessed: rec.Atime,
			Modified: rec.Mtime,
		})
	}
}
