// Package flowio reads and writes flow-record streams. A stream is a small
// header followed by gob-encoded records; files may be gzip-compressed.
package flowio

import (
	"bufio"
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"FlowSieve/internal/model"
)

const (
	magic   uint32 = 0x464c5301 // "FLS" + format version byte
	version uint16 = 1
)

// ErrClosed is returned by Write after the stream has been closed.
var ErrClosed = errors.New("flowio: stream is closed")

type header struct {
	Magic   uint32
	Version uint16
}

// Reader decodes records from one open stream.
type Reader struct {
	name string
	src  io.Closer
	gz   *gzip.Reader
	dec  *gob.Decoder
}

// OpenReader opens the stream at path. "-" and "stdin" read standard input.
// Files ending in ".gz" are decompressed transparently.
func OpenReader(path string) (*Reader, error) {
	var f *os.File
	if path == "-" || path == "stdin" {
		f = os.Stdin
	} else {
		var err error
		f, err = os.Open(path)
		if err != nil {
			return nil, err
		}
	}

	r := &Reader{name: path, src: f}
	var in io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(in)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		r.gz = gz
		in = gz
	}

	r.dec = gob.NewDecoder(in)
	var h header
	if err := r.dec.Decode(&h); err != nil {
		r.Close()
		return nil, fmt.Errorf("open %s: bad stream header: %w", path, err)
	}
	if h.Magic != magic {
		r.Close()
		return nil, fmt.Errorf("open %s: not a flow stream", path)
	}
	if h.Version != version {
		r.Close()
		return nil, fmt.Errorf("open %s: unsupported stream version %d", path, h.Version)
	}
	return r, nil
}

// Name returns the path the reader was opened with.
func (r *Reader) Name() string {
	return r.name
}

// Read returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Read() (model.FlowRec, error) {
	var rec model.FlowRec
	if err := r.dec.Decode(&rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r.gz != nil {
		r.gz.Close()
	}
	if r.src == os.Stdin {
		return nil
	}
	return r.src.Close()
}

// Writer encodes records onto one output stream and counts what it wrote.
type Writer struct {
	name     string
	bw       *bufio.Writer
	closer   io.Closer
	enc      *gob.Encoder
	count    uint64
	terminal bool
	closed   bool
}

// Create opens a stream writer on path. "-" and "stdout" write standard
// output; at most one destination per process may do so.
func Create(path string) (*Writer, error) {
	if path == "-" || path == "stdout" {
		w, err := NewWriter(os.Stdout)
		if err != nil {
			return nil, err
		}
		w.name = "stdout"
		w.terminal = true
		return w, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.name = path
	return w, nil
}

// NewWriter wraps an open destination and writes the stream header.
func NewWriter(wc io.WriteCloser) (*Writer, error) {
	w := &Writer{
		bw:     bufio.NewWriter(wc),
		closer: wc,
	}
	if wc == os.Stdout {
		w.closer = nil
	}
	w.enc = gob.NewEncoder(w.bw)
	if err := w.enc.Encode(header{Magic: magic, Version: version}); err != nil {
		return nil, fmt.Errorf("write stream header: %w", err)
	}
	return w, nil
}

// Name returns the path the writer was created with.
func (w *Writer) Name() string {
	return w.name
}

// Terminal reports whether the writer targets standard output.
func (w *Writer) Terminal() bool {
	return w.terminal
}

// Count returns the number of records written so far.
func (w *Writer) Count() uint64 {
	return w.count
}

// Write encodes one record onto the stream.
func (w *Writer) Write(r *model.FlowRec) error {
	if w.closed {
		return ErrClosed
	}
	if err := w.enc.Encode(r); err != nil {
		return fmt.Errorf("write %s: %w", w.name, err)
	}
	w.count++
	return nil
}

// Close flushes buffered records and releases the underlying file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.bw.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
