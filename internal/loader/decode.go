package loader

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/atikulmunna/loglens/internal/parser"
)

// decompress wraps r according to the file name suffix. The returned
// closer releases decoder resources; it does not close r.
func decompress(name string, r io.Reader) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".gz"):
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, func() { zr.Close() }, nil
	case strings.HasSuffix(strings.ToLower(name), ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return zr, zr.Close, nil
	default:
		return r, func() {}, nil
	}
}

// decodeCharset converts single-byte encodings to UTF-8.
func decodeCharset(name string, r io.Reader) (io.Reader, error) {
	enc, err := parser.Charset(name)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(r), nil
}
