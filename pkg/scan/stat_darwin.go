//go:build darwin

package scan

import (
	"golang.org/x/sys/unix"

	"github.com/sganis/dutopia/pkg/row"
)

func statRecord(path string) (row.Record, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return row.Record{}, err
	}
	return row.Record{
		Dev:   uint64(st.Dev),
		Ino:   st.Ino,
		Atime: st.Atimespec.Sec,
		Mtime: st.Mtimespec.Sec,
		UID:   st.Uid,
		GID:   st.Gid,
		Mode:  uint32(st.Mode),
		Size:  uint64(st.Size),
		Disk:  uint64(st.Blocks) * 512,
		Path:  []byte(path),
	}, nil
}
