package scan

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/sganis/dutopia/pkg/row"
)

const (
	// flushBytes is the in-memory record buffer threshold per shard.
	flushBytes = 4 << 20
	// shardBufBytes is the OS write buffer per shard file.
	shardBufBytes = 32 << 20
)

// shardWriter buffers encoded records for one worker and writes them
// to a temporary shard file. Text shards carry no header line; the
// merge step adds it. Binary shards are each a complete zstd stream,
// which keeps plain concatenation a valid merge.
type shardWriter struct {
	path   string
	format row.Format
	f      *os.File
	bw     *bufio.Writer
	zw     *zstd.Encoder
	out    io.Writer
	buf    []byte
	failed bool
}

func shardPrefix() string {
	host, err := os.Hostname()
	if err != nil {
		host = "local"
	}
	return fmt.Sprintf("shard_%s_%d", host, os.Getpid())
}

func shardName(id int) string {
	return fmt.Sprintf("%s_%d.tmp", shardPrefix(), id)
}

// ShardPattern is the glob matching this process's shard files. Cleanup
// uses it so shards of another scan sharing the directory are left alone.
func ShardPattern() string {
	return shardPrefix() + "_*.tmp"
}

func newShardWriter(dir string, id int, format row.Format) (*shardWriter, error) {
	p := filepath.Join(dir, shardName(id))
	f, err := os.Create(p)
	if err != nil {
		return nil, err
	}
	w := &shardWriter{
		path:   p,
		format: format,
		f:      f,
		bw:     bufio.NewWriterSize(f, shardBufBytes),
		buf:    make([]byte, 0, flushBytes),
	}
	w.out = w.bw
	if format == row.FormatBinary {
		zw, err := zstd.NewWriter(w.bw, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			f.Close()
			os.Remove(p)
			return nil, err
		}
		w.zw = zw
		w.out = zw
	}
	return w, nil
}

func (w *shardWriter) add(rec *row.Record) error {
	if w.failed {
		return nil
	}
	if w.format == row.FormatBinary {
		w.buf = row.AppendBinary(w.buf, rec)
	} else {
		w.buf = row.AppendText(w.buf, rec)
	}
	if len(w.buf) >= flushBytes {
		return w.flush()
	}
	return nil
}

func (w *shardWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	_, err := w.out.Write(w.buf)
	w.buf = w.buf[:0]
	if err != nil {
		w.failed = true
		return fmt.Errorf("shard %s: %w", w.path, err)
	}
	return nil
}

func (w *shardWriter) close() error {
	err := w.flush()
	if w.zw != nil {
		if e := w.zw.Close(); err == nil {
			err = e
		}
	}
	if e := w.bw.Flush(); err == nil {
		err = e
	}
	if e := w.f.Close(); err == nil {
		err = e
	}
	if err != nil {
		return fmt.Errorf("shard %s: %w", w.path, err)
	}
	return nil
}

// discard closes and removes a shard that will not be used.
func (w *shardWriter) discard() {
	w.f.Close()
	os.Remove(w.path)
}
