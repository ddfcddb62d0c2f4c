package loader

import (
	"bytes"
	"io"
	"strings"

	"github.com/pierrec/lz4"
)

const lz4Suffix = ".lz4"

// decode unwraps an lz4 frame when rawURL carries the .lz4 suffix and
// returns the payload URL used for type detection.
func decode(rawURL string, data []byte) (string, []byte, error) {
	if !strings.HasSuffix(rawURL, lz4Suffix) {
		return rawURL, data, nil
	}
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return rawURL, nil, err
	}
	return strings.TrimSuffix(rawURL, lz4Suffix), out, nil
}

// Compress wraps data in an lz4 frame readable by the loader.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
