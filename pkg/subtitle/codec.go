package subtitle

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
)

// Encode serializes a set to its at-rest form: zlib-compressed JSON.
// Round-trips through Decode are lossless.
func Encode(set *Set) ([]byte, error) {
	if set == nil {
		return nil, fmt.Errorf("cannot encode a nil subtitle set")
	}

	raw, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize subtitle set: %w", err)
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress subtitle set: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress subtitle set: %w", err)
	}

	return buf.Bytes(), nil
}

// Decode restores a set from its at-rest form.
func Decode(data []byte) (*Set, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot decode an empty subtitle payload")
	}

	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress subtitle payload: %w", err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress subtitle payload: %w", err)
	}

	var set Set
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("failed to deserialize subtitle payload: %w", err)
	}
	if set.Items == nil {
		set.Items = []Item{}
	}

	return &set, nil
}
