package row

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func sample() Record {
	return Record{
		Dev:   64768,
		Ino:   1234567,
		Atime: 1699000000,
		Mtime: 1698000000,
		UID:   1000,
		GID:   100,
		Mode:  0o100644,
		Size:  4096,
		Disk:  8192,
		Path:  []byte("/data/project/file.txt"),
	}
}

func recordsEqual(a, b Record) bool {
	return a.Dev == b.Dev && a.Ino == b.Ino && a.Atime == b.Atime &&
		a.Mtime == b.Mtime && a.UID == b.UID && a.GID == b.GID &&
		a.Mode == b.Mode && a.Size == b.Size && a.Disk == b.Disk &&
		bytes.Equal(a.Path, b.Path)
}

func TestInode(t *testing.T) {
	r := sample()
	if got := r.Inode(); got != "64768-1234567" {
		t.Errorf("Inode() = %q", got)
	}
}

func TestTextRoundTrip(t *testing.T) {
	paths := map[string][]byte{
		"plain":       []byte("/data/a"),
		"comma":       []byte("/data/a,b"),
		"quote":       []byte(`/data/"x"`),
		"newline":     []byte("/data/a\nb"),
		"cr":          []byte("/data/a\rb"),
		"spaces":      []byte("/data/with space"),
		"non-utf8":    {47, 'd', 0xff, 0xfe, 'x'},
		"mixed nasty": []byte("/d,\"q\"\n"),
	}
	for name, p := range paths {
		t.Run(name, func(t *testing.T) {
			in := sample()
			in.Path = p
			line := AppendText(nil, &in)
			if line[len(line)-1] != '\n' {
				t.Fatal("no trailing newline")
			}
			got, err := ParseText(line[:len(line)-1])
			if err != nil {
				t.Fatalf("ParseText: %v", err)
			}
			if !recordsEqual(got, in) {
				t.Errorf("got %+v, want %+v", got, in)
			}
		})
	}
}

func TestAppendQuoted(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"/plain", "/plain"},
		{"/with space", "/with space"},
		{"/a,b", `"/a,b"`},
		{`/a"b`, `"/a""b"`},
		{"/a\nb", "\"/a\nb\""},
	}
	for _, c := range cases {
		if got := string(AppendQuoted(nil, []byte(c.in))); got != c.want {
			t.Errorf("AppendQuoted(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseTextErrors(t *testing.T) {
	bad := []string{
		"",
		"1-2,3,4,5,6,7,8,9",
		"12,3,4,5,6,7,8,9,/p",
		"x-2,3,4,5,6,7,8,9,/p",
		"1-y,3,4,5,6,7,8,9,/p",
		"1-2,zz,4,5,6,7,8,9,/p",
		"1-2,3,4,5,6,7,8,9,",
		"1-2,3,4,5,6,7,8,9,/p,extra",
	}
	for _, line := range bad {
		if _, err := ParseText([]byte(line)); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseText(%q) = %v, want ErrMalformed", line, err)
		}
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	in := sample()
	in.Path = []byte{47, 'd', 0xff, 0x00, 'x'}
	var buf bytes.Buffer
	buf.Write(AppendBinary(nil, &in))
	buf.Write(AppendBinary(nil, &in))

	r := bytes.NewReader(buf.Bytes())
	for i := 0; i < 2; i++ {
		got, err := ReadBinary(r)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if !bytes.Equal(got.Path, in.Path) {
			t.Errorf("path = %v", got.Path)
		}
	}
	if _, err := ReadBinary(r); err != io.EOF {
		t.Errorf("end = %v, want io.EOF", err)
	}
}

func TestBinaryTruncated(t *testing.T) {
	in := sample()
	full := AppendBinary(nil, &in)
	for _, cut := range []int{1, 3, 5, len(full) - 1} {
		_, err := ReadBinary(bytes.NewReader(full[:cut]))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("cut at %d: %v, want ErrMalformed", cut, err)
		}
	}
}

func TestWriterReaderFile(t *testing.T) {
	for _, ext := range []string{".csv", ".zst"} {
		t.Run(ext, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "out"+ext)
			w, err := Create(p)
			if err != nil {
				t.Fatal(err)
			}
			recs := []Record{sample(), sample()}
			recs[1].Path = []byte("/data/other")
			recs[1].Ino = 42
			for i := range recs {
				if err := w.Write(&recs[i]); err != nil {
					t.Fatal(err)
				}
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}

			r, err := Open(p)
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()
			for i := range recs {
				got, err := r.Read()
				if err != nil {
					t.Fatalf("record %d: %v", i, err)
				}
				if !bytes.Equal(got.Path, recs[i].Path) || got.Ino != recs[i].Ino {
					t.Errorf("record %d = %+v", i, got)
				}
			}
			if _, err := r.Read(); err != io.EOF {
				t.Errorf("end = %v", err)
			}
		})
	}
}

func TestReaderMultilinePath(t *testing.T) {
	paths := [][]byte{
		[]byte("/data/a\nb"),
		[]byte("/data/\"q\"\r\nend"),
		[]byte("/data/trailing\n"),
		[]byte("/data/plain"),
	}
	var buf bytes.Buffer
	w, err := NewWriter(&buf, FormatText)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range paths {
		rec := sample()
		rec.Path = p
		if err := w.Write(&rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(bytes.NewReader(buf.Bytes()), FormatText)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range paths {
		got, err := r.Read()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if !bytes.Equal(got.Path, p) {
			t.Errorf("record %d: path = %q, want %q", i, got.Path, p)
		}
	}
	if _, err := r.Read(); err != io.EOF {
		t.Errorf("end = %v", err)
	}
}

func TestReaderHeaderValidation(t *testing.T) {
	r, err := NewReader(strings.NewReader("BAD,HEADER\n1-2,0,0,0,0,0,1,1,/p\n"), FormatText)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Read(); err == nil {
		t.Fatal("accepted bad header")
	}
}

func TestReaderSkipsBlankAndRecoversMalformed(t *testing.T) {
	input := Header + "\n" +
		"\n" +
		"1-1,0,0,0,0,0,1,1,/a\n" +
		"broken\n" +
		"1-2,0,0,0,0,0,1,1,/b\n"
	r, err := NewReader(strings.NewReader(input), FormatText)
	if err != nil {
		t.Fatal(err)
	}
	var paths []string
	var malformed int
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if errors.Is(err, ErrMalformed) {
			malformed++
			continue
		}
		if err != nil {
			t.Fatal(err)
		}
		paths = append(paths, string(rec.Path))
	}
	if malformed != 1 || len(paths) != 2 || paths[0] != "/a" || paths[1] != "/b" {
		t.Errorf("paths=%v malformed=%d", paths, malformed)
	}
}

func TestReaderNoTrailingNewline(t *testing.T) {
	input := Header + "\n1-1,0,0,0,0,0,1,1,/a"
	r, err := NewReader(strings.NewReader(input), FormatText)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := r.Read()
	if err != nil || string(rec.Path) != "/a" {
		t.Fatalf("rec=%+v err=%v", rec, err)
	}
	if _, err := r.Read(); err != io.EOF {
		t.Errorf("end = %v", err)
	}
}

func TestDetectFormat(t *testing.T) {
	if f, err := DetectFormat("x.csv"); err != nil || f != FormatText {
		t.Errorf("csv: %v %v", f, err)
	}
	if f, err := DetectFormat("x.zst"); err != nil || f != FormatBinary {
		t.Errorf("zst: %v %v", f, err)
	}
	if _, err := DetectFormat("x.parquet"); err == nil {
		t.Error("parquet accepted")
	}
}
