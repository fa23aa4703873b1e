package sum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sganis/dutopia/pkg/age"
	"github.com/sganis/dutopia/pkg/row"
)

const day = int64(86400)

// testNow is an arbitrary pinned reference time.
const testNow = int64(1700000000)

func TestFolderKey(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"/", "/"},
		{"/data", "/data"},
		{"/data/", "/data"},
		{"data/x", "/data/x"},
		{"\\data\\x", "/data/x"},
		{"/data//", "/data"},
	}
	for _, c := range cases {
		if got := FolderKey([]byte(c.in)); got != c.want {
			t.Errorf("FolderKey(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParent(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"/", "/"},
		{"/data", "/"},
		{"/data/a", "/data"},
		{"/data/a/b", "/data/a"},
	}
	for _, c := range cases {
		if got := Parent(c.in); got != c.want {
			t.Errorf("Parent(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func rec(path string, ino uint64, size uint64, mtimeAgeDays int64, uid uint32) row.Record {
	return row.Record{
		Dev:   1,
		Ino:   ino,
		Atime: testNow - mtimeAgeDays*day,
		Mtime: testNow - mtimeAgeDays*day,
		UID:   uid,
		Size:  size,
		Disk:  size,
		Path:  []byte(path),
	}
}

func me(t *testing.T) (uint32, string) {
	t.Helper()
	uid := uint32(os.Getuid())
	a := New(Config{Now: testNow, Ages: age.DefaultConfig()})
	r := rec("/p/x", 999, 1, 1, uid)
	a.Add(&r)
	for _, byUser := range a.folders {
		for name := range byUser {
			return uid, name
		}
	}
	t.Fatal("no user resolved")
	return 0, ""
}

func testAgg(cumulative bool) *Aggregator {
	return New(Config{Now: testNow, Ages: age.DefaultConfig(), Cumulative: cumulative})
}

func addAll(a *Aggregator, recs []row.Record) {
	for i := range recs {
		a.Add(&recs[i])
	}
}

func TestDirectAttribution(t *testing.T) {
	uid, name := me(t)
	a := testAgg(false)
	addAll(a, []row.Record{
		rec("/data/a/f1", 10, 100, 10, uid),
		rec("/data/a/f1b", 10, 100, 10, uid),
		rec("/data/b/f2", 11, 200, 400, uid),
	})

	cell := a.folders["/data/a"][name][age.Recent]
	if cell.Files != 2 || cell.Size != 200 {
		t.Errorf("/data/a recent = %+v, want files=2 size=200", cell)
	}
	if cell.Linked != 100 {
		t.Errorf("/data/a linked = %d, want 100 (hardlink disk counted once)", cell.Linked)
	}
	if cell.Disk != 200 {
		t.Errorf("/data/a disk = %d, want 200 (each path costs its disk)", cell.Disk)
	}

	cellB := a.folders["/data/b"][name][age.Aging]
	if cellB.Files != 1 || cellB.Size != 200 {
		t.Errorf("/data/b aging = %+v, want files=1 size=200", cellB)
	}

	// parent-only rows: nothing attributed above the direct parent
	if a.folders["/data"] != nil {
		t.Error("direct mode attributed rows to /data")
	}
}

func TestCumulativeAttribution(t *testing.T) {
	uid, name := me(t)
	a := testAgg(true)
	addAll(a, []row.Record{
		rec("/data/a/f1", 10, 100, 10, uid),
		rec("/data/b/f2", 11, 200, 400, uid),
	})

	root := a.folders["/"][name]
	total := root[age.Recent].Files + root[age.Aging].Files
	if total != 2 {
		t.Errorf("root files = %d, want 2", total)
	}
	mid := a.folders["/data"][name]
	if mid[age.Recent].Size != 100 || mid[age.Aging].Size != 200 {
		t.Errorf("/data = %+v", mid)
	}
}

func TestModifiedMax(t *testing.T) {
	uid, name := me(t)
	a := testAgg(false)
	addAll(a, []row.Record{
		rec("/d/x", 1, 1, 50, uid),
		rec("/d/y", 2, 1, 5, uid),
	})
	cell := a.folders["/d"][name][age.Recent]
	if cell.Modified != testNow-5*day {
		t.Errorf("modified = %d, want %d", cell.Modified, testNow-5*day)
	}
}

func TestDirectoryAtimeIgnored(t *testing.T) {
	uid, name := me(t)
	a := testAgg(false)
	d := rec("/d/sub", 5, 0, 10, uid)
	d.Mode = 0o040755
	a.Add(&d)
	cell := a.folders["/d"][name][age.Recent]
	if cell.Accessed != 0 {
		t.Errorf("accessed = %d, want 0 for a directory record", cell.Accessed)
	}
	if cell.Modified != testNow-10*day {
		t.Errorf("modified = %d", cell.Modified)
	}
}

func writeArtifact(t *testing.T, dir string, recs []row.Record) string {
	t.Helper()
	p := filepath.Join(dir, "scan.csv")
	w, err := row.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	for i := range recs {
		if err := w.Write(&recs[i]); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRunIdempotent(t *testing.T) {
	uid, _ := me(t)
	dir := t.TempDir()
	in := writeArtifact(t, dir, []row.Record{
		rec("/data/a/f1", 10, 100, 10, uid),
		rec("/data/b/f2", 11, 200, 400, uid),
		rec("/data/old/f3", 12, 300, 700, uid),
	})
	cfg := Config{Now: testNow, Ages: age.DefaultConfig()}

	out1 := filepath.Join(dir, "agg1.csv")
	out2 := filepath.Join(dir, "agg2.csv")
	if _, err := Run(cfg, in, out1); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(cfg, in, out2); err != nil {
		t.Fatal(err)
	}
	b1, _ := os.ReadFile(out1)
	b2, _ := os.ReadFile(out2)
	if len(b1) == 0 || string(b1) != string(b2) {
		t.Error("repeated runs over identical input differ")
	}
	if !strings.HasPrefix(string(b1), Header+"\n") {
		t.Errorf("missing header in %q", string(b1[:min(len(b1), 60)]))
	}
}

func TestRunUnknownSidecar(t *testing.T) {
	dir := t.TempDir()
	in := writeArtifact(t, dir, []row.Record{
		rec("/d/x", 1, 10, 1, 4294900001),
		rec("/d/y", 2, 10, 1, 4294900000),
	})
	out := filepath.Join(dir, "agg.csv")
	res, err := Run(Config{Now: testNow, Ages: age.DefaultConfig()}, in, out)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Unknown) != 2 || res.Unknown[0] != 4294900000 {
		t.Fatalf("unknown = %v, want sorted pair", res.Unknown)
	}
	b, err := os.ReadFile(filepath.Join(dir, "agg.unk.csv"))
	if err != nil {
		t.Fatalf("sidecar: %v", err)
	}
	if string(b) != "uid\n4294900000\n4294900001\n" {
		t.Errorf("sidecar = %q", b)
	}
	agg, _ := os.ReadFile(out)
	if !strings.Contains(string(agg), ",UNK,") {
		t.Error("aggregated output has no UNK rows")
	}
}

func TestConsumeSkipsMalformed(t *testing.T) {
	input := row.Header + "\n" +
		"1-10,0,0,0,0,0,5,5,/d/ok\n" +
		"garbage line\n" +
		"1-11,0,0,0,0,0,5,5,/d/ok2\n"
	r, err := row.NewReader(strings.NewReader(input), row.FormatText)
	if err != nil {
		t.Fatal(err)
	}
	a := testAgg(false)
	if err := a.Consume(r); err != nil {
		t.Fatal(err)
	}
	res := a.Result()
	if res.Rows != 2 || res.Skipped != 1 {
		t.Errorf("rows=%d skipped=%d, want 2/1", res.Rows, res.Skipped)
	}
}

func TestConsumeAllCorruptFatal(t *testing.T) {
	input := row.Header + "\nnot,a,row\nstill no\n"
	r, err := row.NewReader(strings.NewReader(input), row.FormatText)
	if err != nil {
		t.Fatal(err)
	}
	a := testAgg(false)
	if err := a.Consume(r); err == nil {
		t.Fatal("expected error for artifact with no parseable rows")
	}
}

func TestRowCodecRoundTrip(t *testing.T) {
	in := Row{
		Path: "/data/with,comma",
		User: "alice",
		Age:  age.Aging,
		Stats: Stats{
			Files: 3, Size: 100, Disk: 200, Linked: 150,
			Accessed: 111, Modified: 222,
		},
	}
	line := AppendRow(nil, &in)
	got, err := ParseRow(line[:len(line)-1])
	if err != nil {
		t.Fatal(err)
	}
	if got != in {
		t.Errorf("round trip: got %+v, want %+v", got, in)
	}
}
