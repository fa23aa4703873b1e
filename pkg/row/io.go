package row

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Format selects the wire encoding of an artifact.
type Format int

const (
	// FormatText is line-oriented CSV with the standard header.
	FormatText Format = iota
	// FormatBinary is the fixed little-endian form in a zstd stream.
	FormatBinary
)

// DetectFormat maps a file extension to its wire format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatText, nil
	case ".zst", ".bin":
		return FormatBinary, nil
	default:
		return 0, fmt.Errorf("unsupported extension %q (expected .csv or .zst)", filepath.Ext(path))
	}
}

const (
	readBufSize  = 2 * 1024 * 1024
	writeBufSize = 8 * 1024 * 1024
)

// Reader decodes records from a text or binary artifact.
type Reader struct {
	format Format
	br     *bufio.Reader
	lr     *LineReader
	zr     *zstd.Decoder
	file   *os.File
	header bool
}

// Open opens path and returns a Reader for its detected format. Text
// artifacts have their header validated on the first Read.
func Open(path string) (*Reader, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	r, err := NewReader(f, format)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewShardReader opens a headerless intermediate file in the given
// format. Scan shards omit the text header; it is added at merge time.
func NewShardReader(path string, format Format) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	r, err := NewReader(f, format)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	r.header = true
	return r, nil
}

// NewReader wraps an io.Reader in the given format.
func NewReader(src io.Reader, format Format) (*Reader, error) {
	r := &Reader{format: format}
	if format == FormatBinary {
		zr, err := zstd.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		r.zr = zr
		r.br = bufio.NewReaderSize(zr, readBufSize)
	} else {
		r.lr = NewLineReader(src)
	}
	return r, nil
}

// Read returns the next record. Parse failures on individual rows wrap
// ErrMalformed and leave the reader positioned at the following row, so
// callers may skip and continue. All other errors are terminal; io.EOF
// signals a clean end of stream.
func (r *Reader) Read() (Record, error) {
	if r.format == FormatBinary {
		return ReadBinary(r.br)
	}
	if !r.header {
		r.header = true
		line, err := r.lr.Read()
		if err != nil {
			return Record{}, fmt.Errorf("read header: %w", err)
		}
		if got := string(line); got != Header {
			return Record{}, fmt.Errorf("invalid header %q (want %q)", got, Header)
		}
	}
	for {
		line, err := r.lr.Read()
		if err != nil {
			return Record{}, err
		}
		if len(line) == 0 {
			continue
		}
		return ParseText(line)
	}
}

// LineReader reads logical CSV lines, tolerating lines longer than its
// buffer. A newline inside an open quoted field belongs to the field,
// not the record terminator, so the read continues past it. Returned
// lines have their EOL trimmed and alias a buffer reused on the next
// call.
type LineReader struct {
	br   *bufio.Reader
	line []byte
}

// NewLineReader wraps src with the standard read buffer size.
func NewLineReader(src io.Reader) *LineReader {
	return &LineReader{br: bufio.NewReaderSize(src, readBufSize)}
}

// Read returns the next logical line. io.EOF with pending bytes yields
// those bytes.
func (l *LineReader) Read() ([]byte, error) {
	l.line = l.line[:0]
	inQuotes := false
	for {
		chunk, err := l.br.ReadSlice('\n')
		l.line = append(l.line, chunk...)
		for _, b := range chunk {
			if b == '"' {
				inQuotes = !inQuotes
			}
		}
		switch err {
		case nil:
			if inQuotes {
				continue
			}
			return trimEOL(l.line), nil
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			if len(l.line) > 0 {
				return trimEOL(l.line), nil
			}
			return nil, io.EOF
		default:
			return nil, err
		}
	}
}

func trimEOL(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}

// Close releases the underlying decoder and file, if any.
func (r *Reader) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Writer encodes records to a text or binary artifact.
type Writer struct {
	format Format
	bw     *bufio.Writer
	zw     *zstd.Encoder
	file   *os.File
	buf    []byte
}

// Create creates path and returns a Writer for its detected format.
func Create(path string) (*Writer, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	w, err := NewWriter(f, format)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// NewWriter wraps an io.Writer in the given format. Text output starts
// with the standard header line.
func NewWriter(dst io.Writer, format Format) (*Writer, error) {
	w := &Writer{format: format}
	if format == FormatBinary {
		zw, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		w.zw = zw
		w.bw = bufio.NewWriterSize(zw, writeBufSize)
	} else {
		w.bw = bufio.NewWriterSize(dst, writeBufSize)
		if _, err := w.bw.WriteString(Header + "\n"); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return w, nil
}

// Write encodes one record.
func (w *Writer) Write(rec *Record) error {
	w.buf = w.buf[:0]
	if w.format == FormatBinary {
		w.buf = AppendBinary(w.buf, rec)
	} else {
		w.buf = AppendText(w.buf, rec)
	}
	if _, err := w.bw.Write(w.buf); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// Close flushes buffers, finishes the zstd frame and closes the file.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if w.zw != nil {
		if err := w.zw.Close(); err != nil {
			return fmt.Errorf("finish zstd frame: %w", err)
		}
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
