package scan

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sganis/dutopia/pkg/fileutil"
	"github.com/sganis/dutopia/pkg/row"
)

// MergeShards combines shard files into the final artifact at outPath
// and removes the shards. Unsorted merges are plain concatenation in
// shard order. Sorted merges decode every record, order by path, and
// re-encode; slower, but two sorted scans of an unchanged tree compare
// byte for byte.
func MergeShards(outPath string, shards []string, format row.Format, sorted bool) error {
	if sorted {
		return mergeSorted(outPath, shards, format)
	}
	return mergeConcat(outPath, shards, format)
}

func mergeConcat(outPath string, shards []string, format row.Format) error {
	err := fileutil.WriteTmpThenMove(outPath, func(tmpPath string) error {
		f, err := os.Create(tmpPath)
		if err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		bw := bufio.NewWriterSize(f, shardBufBytes)
		if format == row.FormatText {
			bw.WriteString(row.Header)
			bw.WriteByte('\n')
		}
		for _, p := range shards {
			sf, err := os.Open(p)
			if err != nil {
				f.Close()
				return fmt.Errorf("merge: %w", err)
			}
			_, err = io.Copy(bw, sf)
			sf.Close()
			if err != nil {
				f.Close()
				return fmt.Errorf("merge %s: %w", p, err)
			}
		}
		if err := bw.Flush(); err != nil {
			f.Close()
			return fmt.Errorf("merge: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	RemoveShards(shards)
	return nil
}

func mergeSorted(outPath string, shards []string, format row.Format) error {
	var recs []row.Record
	for _, p := range shards {
		r, err := row.NewShardReader(p, format)
		if err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		for {
			rec, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				r.Close()
				return fmt.Errorf("merge %s: %w", p, err)
			}
			recs = append(recs, rec)
		}
		r.Close()
	}
	sort.Slice(recs, func(i, j int) bool {
		return bytes.Compare(recs[i].Path, recs[j].Path) < 0
	})
	outFormat, err := row.DetectFormat(outPath)
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	err = fileutil.WriteTmpThenMove(outPath, func(tmpPath string) error {
		f, err := os.Create(tmpPath)
		if err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		w, err := row.NewWriter(f, outFormat)
		if err != nil {
			f.Close()
			return fmt.Errorf("merge: %w", err)
		}
		for i := range recs {
			if err := w.Write(&recs[i]); err != nil {
				f.Close()
				return fmt.Errorf("merge: %w", err)
			}
		}
		if err := w.Close(); err != nil {
			f.Close()
			return fmt.Errorf("merge: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	RemoveShards(shards)
	return nil
}

// RemoveShards deletes leftover shard files, ignoring ones already
// gone.
func RemoveShards(shards []string) {
	for _, p := range shards {
		os.Remove(p)
	}
}
