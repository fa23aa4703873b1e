package row

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Binary layout per record, all little-endian:
// pathLen u32 | path bytes | dev u64 | ino u64 | atime i64 | mtime i64 |
// uid u32 | gid u32 | mode u32 | size u64 | disk u64.
const binFixedSize = 8 + 8 + 8 + 8 + 4 + 4 + 4 + 8 + 8

// maxPathLen bounds a single path field so a corrupt length prefix cannot
// drive an allocation of arbitrary size.
const maxPathLen = 1 << 20

// AppendBinary appends the record in binary form.
func AppendBinary(buf []byte, r *Record) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Path)))
	buf = append(buf, r.Path...)
	buf = binary.LittleEndian.AppendUint64(buf, r.Dev)
	buf = binary.LittleEndian.AppendUint64(buf, r.Ino)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.Atime))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.Mtime))
	buf = binary.LittleEndian.AppendUint32(buf, r.UID)
	buf = binary.LittleEndian.AppendUint32(buf, r.GID)
	buf = binary.LittleEndian.AppendUint32(buf, r.Mode)
	buf = binary.LittleEndian.AppendUint64(buf, r.Size)
	buf = binary.LittleEndian.AppendUint64(buf, r.Disk)
	return buf
}

// ReadBinary reads one binary record. It returns io.EOF cleanly at a
// record boundary and io.ErrUnexpectedEOF on a truncated record.
func ReadBinary(r io.Reader) (Record, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Record{}, fmt.Errorf("%w: truncated length prefix", ErrMalformed)
		}
		return Record{}, err
	}
	pathLen := binary.LittleEndian.Uint32(lenBuf[:])
	if pathLen > maxPathLen {
		return Record{}, fmt.Errorf("%w: path length %d exceeds limit", ErrMalformed, pathLen)
	}

	buf := make([]byte, int(pathLen)+binFixedSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Record{}, fmt.Errorf("%w: truncated record body", ErrMalformed)
	}

	rec := Record{Path: buf[:pathLen:pathLen]}
	b := buf[pathLen:]
	rec.Dev = binary.LittleEndian.Uint64(b[0:])
	rec.Ino = binary.LittleEndian.Uint64(b[8:])
	rec.Atime = int64(binary.LittleEndian.Uint64(b[16:]))
	rec.Mtime = int64(binary.LittleEndian.Uint64(b[24:]))
	rec.UID = binary.LittleEndian.Uint32(b[32:])
	rec.GID = binary.LittleEndian.Uint32(b[36:])
	rec.Mode = binary.LittleEndian.Uint32(b[40:])
	rec.Size = binary.LittleEndian.Uint64(b[44:])
	rec.Disk = binary.LittleEndian.Uint64(b[52:])
	if len(rec.Path) == 0 {
		return Record{}, fmt.Errorf("%w: empty path", ErrMalformed)
	}
	return rec, nil
}
