// Package ingest turns RFB source files into warehouse tables: download,
// extract, transcode to UTF-8, convert to Parquet and materialize.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// sniffSize is how many bytes are sampled to decide the source encoding.
const sniffSize = 64 * 1024

// DetectUTF8 reports whether the first chunk of the file decodes as UTF-8.
// RFB drops are Latin-1, but sources prepared elsewhere may already be
// UTF-8, and pure-ASCII files satisfy both.
func DetectUTF8(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	buf = buf[:n]

	// The sample may end mid-rune; allow up to three trailing bytes of an
	// incomplete sequence.
	for cut := 0; cut <= 3 && cut <= len(buf); cut++ {
		if utf8.Valid(buf[:len(buf)-cut]) {
			return true, nil
		}
	}
	return false, nil
}

// TranscodeFile writes a UTF-8 copy of src at dst. Latin-1 sources are
// decoded through ISO 8859-1; sources that already look like UTF-8 are
// copied through unchanged.
func TranscodeFile(src, dst string) error {
	isUTF8, err := DetectUTF8(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	var reader io.Reader = bufio.NewReaderSize(in, 1<<20)
	if !isUTF8 {
		reader = transform.NewReader(reader, charmap.ISO8859_1.NewDecoder())
	}

	w := bufio.NewWriterSize(out, 1<<20)
	if _, err := io.Copy(w, reader); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to transcode %s: %w", src, err)
	}
	if err := w.Flush(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to flush %s: %w", dst, err)
	}
	return out.Close()
}
