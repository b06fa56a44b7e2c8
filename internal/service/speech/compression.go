package speech

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

func compressPayload(data []byte, method compression) ([]byte, error) {
	switch method {
	case noCompression:
		return data, nil
	case gzipCompression:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
}

func decompressPayload(data []byte, method compression) ([]byte, error) {
	switch method {
	case noCompression:
		return data, nil
	case gzipCompression:
		if len(data) == 0 {
			return nil, nil
		}
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("gzip read: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
}
