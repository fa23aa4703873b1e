package sum

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sganis/dutopia/pkg/age"
	"github.com/sganis/dutopia/pkg/fileutil"
	"github.com/sganis/dutopia/pkg/row"
)

// Header is the first line of an aggregated artifact.
const Header = "path,user,age,files,size,disk,linked,accessed,modified"

// Row is one aggregated line: the cell for (Path, User, Age).
type Row struct {
	Path string
	User string
	Age  age.Bucket
	Stats
}

// AppendRow encodes one aggregated line, newline included. The folder
// path is quoted when it contains delimiter or control bytes, the same
// rule the record codec uses.
func AppendRow(buf []byte, r *Row) []byte {
	buf = row.AppendQuoted(buf, []byte(r.Path))
	buf = append(buf, ',')
	buf = append(buf, r.User...)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, uint64(r.Age), 10)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, r.Files, 10)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, r.Size, 10)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, r.Disk, 10)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, r.Linked, 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, r.Accessed, 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, r.Modified, 10)
	buf = append(buf, '\n')
	return buf
}

// ParseRow parses one aggregated line. Failures wrap row.ErrMalformed.
func ParseRow(line []byte) (Row, error) {
	fields := row.SplitFields(line)
	if len(fields) != 9 {
		return Row{}, fmt.Errorf("%w: want 9 fields, got %d", row.ErrMalformed, len(fields))
	}
	var r Row
	r.Path = string(fields[0])
	if r.Path == "" {
		return Row{}, fmt.Errorf("%w: empty path", row.ErrMalformed)
	}
	r.User = string(fields[1])
	if r.User == "" {
		return Row{}, fmt.Errorf("%w: empty user", row.ErrMalformed)
	}
	b, err := strconv.ParseUint(string(fields[2]), 10, 8)
	if err != nil || b >= uint64(age.NumBuckets) {
		return Row{}, fmt.Errorf("%w: age %q", row.ErrMalformed, fields[2])
	}
	r.Age = age.Bucket(b)
	nums := [4]*uint64{&r.Stats.Files, &r.Stats.Size, &r.Stats.Disk, &r.Stats.Linked}
	for i, dst := range nums {
		v, err := strconv.ParseUint(string(fields[3+i]), 10, 64)
		if err != nil {
			return Row{}, fmt.Errorf("%w: field %d: %v", row.ErrMalformed, 3+i, err)
		}
		*dst = v
	}
	times := [2]*int64{&r.Stats.Accessed, &r.Stats.Modified}
	for i, dst := range times {
		v, err := strconv.ParseInt(string(fields[7+i]), 10, 64)
		if err != nil {
			return Row{}, fmt.Errorf("%w: field %d: %v", row.ErrMalformed, 7+i, err)
		}
		*dst = v
	}
	return r, nil
}

// WriteCSV writes every populated cell sorted by (path, user, age),
// published atomically so a serve process never loads a half-written
// artifact. The sort makes repeated runs over identical input
// byte-identical.
func (a *Aggregator) WriteCSV(path string) error {
	return fileutil.WriteTmpThenMove(path, a.writeCSVFile)
}

func (a *Aggregator) writeCSVFile(path string) error {
	folders := make([]string, 0, len(a.folders))
	for k := range a.folders {
		folders = append(folders, k)
	}
	sort.Strings(folders)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriterSize(f, 1<<20)
	bw.WriteString(Header)
	bw.WriteByte('\n')

	var buf []byte
	for _, folder := range folders {
		byUser := a.folders[folder]
		names := make([]string, 0, len(byUser))
		for u := range byUser {
			names = append(names, u)
		}
		sort.Strings(names)
		for _, u := range names {
			buckets := byUser[u]
			for b := range buckets {
				if buckets[b].Zero() {
					continue
				}
				r := Row{Path: folder, User: u, Age: age.Bucket(b), Stats: buckets[b]}
				buf = AppendRow(buf[:0], &r)
				if _, err := bw.Write(buf); err != nil {
					f.Close()
					return fmt.Errorf("write %s: %w", path, err)
				}
			}
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// sidecarPath is the unknown-uid report next to the aggregated output:
// out.csv -> out.unk.csv.
func sidecarPath(outPath string) string {
	ext := ".csv"
	stem := strings.TrimSuffix(outPath, ext)
	return stem + ".unk" + ext
}

func writeUnknown(path string, uids []uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	bw.WriteString("uid\n")
	for _, uid := range uids {
		fmt.Fprintf(bw, "%d\n", uid)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
