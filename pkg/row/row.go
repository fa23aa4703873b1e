// Package row implements the record wire format shared by every pipeline
// stage: one line of text per filesystem object, or an equivalent
// little-endian binary form carried in a zstd stream.
package row

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Header is the first line of every text artifact.
const Header = "INODE,ATIME,MTIME,UID,GID,MODE,SIZE,DISK,PATH"

// ErrMalformed marks a record that could not be parsed. Callers decide
// whether a malformed row is skippable (aggregation) or fatal (index load).
var ErrMalformed = errors.New("malformed record")

// Record describes a single filesystem object.
//
// Dev and Ino together form the composite inode id: they identify one
// physical object even when several hardlinked paths reference it. Path is
// raw bytes, not guaranteed to be valid UTF-8.
type Record struct {
	Dev   uint64
	Ino   uint64
	Atime int64
	Mtime int64
	UID   uint32
	GID   uint32
	Mode  uint32
	Size  uint64
	Disk  uint64
	Path  []byte
}

// Inode renders the composite inode id as "dev-ino".
func (r *Record) Inode() string {
	return strconv.FormatUint(r.Dev, 10) + "-" + strconv.FormatUint(r.Ino, 10)
}

const (
	modeTypeMask = 0o170000
	modeDir      = 0o040000
)

// IsDir reports whether the record describes a directory.
func (r *Record) IsDir() bool {
	return r.Mode&modeTypeMask == modeDir
}

// AppendText appends the record as one CSV line, including the trailing
// newline. The path is emitted raw unless it contains the delimiter, a
// quote or a line break, in which case it is quoted with "" escaping.
func AppendText(buf []byte, r *Record) []byte {
	buf = strconv.AppendUint(buf, r.Dev, 10)
	buf = append(buf, '-')
	buf = strconv.AppendUint(buf, r.Ino, 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, r.Atime, 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, r.Mtime, 10)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, uint64(r.UID), 10)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, uint64(r.GID), 10)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, uint64(r.Mode), 10)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, r.Size, 10)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, r.Disk, 10)
	buf = append(buf, ',')
	buf = AppendQuoted(buf, r.Path)
	return append(buf, '\n')
}

// AppendQuoted appends path bytes, quoting only when required by the
// delimiter, quotes or line breaks.
func AppendQuoted(buf, path []byte) []byte {
	if !bytes.ContainsAny(path, "\",\n\r") {
		return append(buf, path...)
	}
	buf = append(buf, '"')
	for _, b := range path {
		if b == '"' {
			buf = append(buf, '"', '"')
		} else {
			buf = append(buf, b)
		}
	}
	return append(buf, '"')
}

// SplitFields splits one CSV line into its raw byte fields, honoring
// quoting. The line must not include the trailing newline.
func SplitFields(line []byte) [][]byte {
	var fields [][]byte
	field := make([]byte, 0, 64)
	inQuotes := false
	for i := 0; i < len(line); i++ {
		b := line[i]
		switch {
		case b == '"' && !inQuotes:
			inQuotes = true
		case b == '"' && inQuotes:
			if i+1 < len(line) && line[i+1] == '"' {
				field = append(field, '"')
				i++
			} else {
				inQuotes = false
			}
		case b == ',' && !inQuotes:
			fields = append(fields, field)
			field = make([]byte, 0, 64)
		default:
			field = append(field, b)
		}
	}
	return append(fields, field)
}

// ParseText parses one CSV line (without the trailing newline) into a
// Record. The path field keeps its raw bytes.
func ParseText(line []byte) (Record, error) {
	fields := SplitFields(line)
	if len(fields) != 9 {
		return Record{}, fmt.Errorf("%w: want 9 fields, got %d", ErrMalformed, len(fields))
	}

	var rec Record
	dash := bytes.IndexByte(fields[0], '-')
	if dash < 0 {
		return Record{}, fmt.Errorf("%w: inode %q is not dev-ino", ErrMalformed, fields[0])
	}
	var err error
	if rec.Dev, err = parseUint(fields[0][:dash]); err != nil {
		return Record{}, fmt.Errorf("%w: dev: %v", ErrMalformed, err)
	}
	if rec.Ino, err = parseUint(fields[0][dash+1:]); err != nil {
		return Record{}, fmt.Errorf("%w: ino: %v", ErrMalformed, err)
	}
	if rec.Atime, err = parseInt(fields[1]); err != nil {
		return Record{}, fmt.Errorf("%w: atime: %v", ErrMalformed, err)
	}
	if rec.Mtime, err = parseInt(fields[2]); err != nil {
		return Record{}, fmt.Errorf("%w: mtime: %v", ErrMalformed, err)
	}
	if rec.UID, err = parseUint32(fields[3]); err != nil {
		return Record{}, fmt.Errorf("%w: uid: %v", ErrMalformed, err)
	}
	if rec.GID, err = parseUint32(fields[4]); err != nil {
		return Record{}, fmt.Errorf("%w: gid: %v", ErrMalformed, err)
	}
	if rec.Mode, err = parseUint32(fields[5]); err != nil {
		return Record{}, fmt.Errorf("%w: mode: %v", ErrMalformed, err)
	}
	if rec.Size, err = parseUint(fields[6]); err != nil {
		return Record{}, fmt.Errorf("%w: size: %v", ErrMalformed, err)
	}
	if rec.Disk, err = parseUint(fields[7]); err != nil {
		return Record{}, fmt.Errorf("%w: disk: %v", ErrMalformed, err)
	}
	rec.Path = fields[8]
	if len(rec.Path) == 0 {
		return Record{}, fmt.Errorf("%w: empty path", ErrMalformed)
	}
	return rec, nil
}

func parseUint(b []byte) (uint64, error) {
	return strconv.ParseUint(string(bytes.TrimSpace(b)), 10, 64)
}

func parseUint32(b []byte) (uint32, error) {
	v, err := strconv.ParseUint(string(bytes.TrimSpace(b)), 10, 32)
	return uint32(v), err
}

func parseInt(b []byte) (int64, error) {
	return strconv.ParseInt(string(bytes.TrimSpace(b)), 10, 64)
}
