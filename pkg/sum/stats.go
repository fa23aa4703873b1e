// Package sum folds raw scan records into per-(folder, user, age)
// accumulators and reads and writes the aggregated tabular form.
package sum

// Stats is one accumulator cell. Files, Size and Disk add across
// records; Linked adds a physical object's disk once no matter how
// many hardlinked paths reach it; Accessed and Modified keep maxima,
// so merging partial results in any order gives the same cell.
type Stats struct {
	Files    uint64
	Size     uint64
	Disk     uint64
	Linked   uint64
	Accessed int64
	Modified int64
}

// Add folds one record's fields in. linked is the deduplicated disk
// contribution, zero for an already-seen inode.
func (s *Stats) Add(size, disk, linked uint64, atime, mtime int64) {
	s.Files++
	s.Size += size
	s.Disk += disk
	s.Linked += linked
	if atime > s.Accessed {
		s.Accessed = atime
	}
	if mtime > s.Modified {
		s.Modified = mtime
	}
}

// Merge folds another accumulator in.
func (s *Stats) Merge(o *Stats) {
	s.Files += o.Files
	s.Size += o.Size
	s.Disk += o.Disk
	s.Linked += o.Linked
	if o.Accessed > s.Accessed {
		s.Accessed = o.Accessed
	}
	if o.Modified > s.Modified {
		s.Modified = o.Modified
	}
}

// Zero reports whether the cell has never been added to.
func (s *Stats) Zero() bool {
	return s.Files == 0
}
