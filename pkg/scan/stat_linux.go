//go:build linux

package scan

import (
	"golang.org/x/sys/unix"

	"github.com/sganis/dutopia/pkg/row"
)

// statRecord lstats path and builds its raw record. Symlinks are
// recorded as themselves, never followed. Disk is st_blocks in
// 512-byte units.
func statRecord(path string) (row.Record, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return row.Record{}, err
	}
	return row.Record{
		Dev:   uint64(st.Dev),
		Ino:   st.Ino,
		Atime: st.Atim.Sec,
		Mtime: st.Mtim.Sec,
		UID:   st.Uid,
		GID:   st.Gid,
		Mode:  st.Mode,
		Size:  uint64(st.Size),
		Disk:  uint64(st.Blocks) * 512,
		Path:  []byte(path),
	}, nil
}
