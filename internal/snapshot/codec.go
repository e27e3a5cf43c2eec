package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/golang/snappy"
	apperrors "github.com/interntrack/interntrack/internal/errors"
	"github.com/interntrack/interntrack/pkg/types"
	"github.com/spaolacci/murmur3"
)

// Content types of encoded snapshots.
const (
	ContentTypeJSON   = "application/json"
	ContentTypeSnappy = "application/x-snappy-framed"
)

// snappyMagic opens every framed snappy stream.
var snappyMagic = []byte("\xff\x06\x00\x00sNaPpY")

// Codec encodes snapshots for the remote store.
type Codec struct {
	// Compress wraps the JSON document in a framed snappy stream.
	Compress bool
}

// ContentType returns the content type Encode produces.
func (c Codec) ContentType() string {
	if c.Compress {
		return ContentTypeSnappy
	}
	return ContentTypeJSON
}

// Encode serializes doc as indented JSON, optionally snappy-framed.
func (c Codec) Encode(doc *types.Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, apperrors.NewSnapshotError(apperrors.CodeEncodeFailed, "encode snapshot", err)
	}
	if !c.Compress {
		return data, nil
	}

	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, apperrors.NewSnapshotError(apperrors.CodeEncodeFailed, "compress snapshot", err)
	}
	if err := w.Close(); err != nil {
		return nil, apperrors.NewSnapshotError(apperrors.CodeEncodeFailed, "compress snapshot", err)
	}
	return buf.Bytes(), nil
}

// Checksum returns the hex murmur3-128 digest of an encoded payload.
func Checksum(data []byte) string {
	h1, h2 := murmur3.Sum128(data)
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// Decode parses an encoded snapshot. Compression is detected from the
// payload. Decoding is tolerant: a table whose value is not an array is
// dropped as if absent, a row that is not an object becomes an empty row,
// and a missing or malformed exportedAt yields the zero time.
func Decode(data []byte) (*types.Snapshot, error) {
	if bytes.HasPrefix(data, snappyMagic) {
		raw, err := io.ReadAll(snappy.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, apperrors.NewSnapshotError(apperrors.CodeDecodeFailed, "decompress snapshot", err)
		}
		data = raw
	}

	var envelope struct {
		ExportedAt json.RawMessage            `json:"exportedAt"`
		Version    json.RawMessage            `json:"version"`
		Tables     map[string]json.RawMessage `json:"tables"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, apperrors.NewSnapshotError(apperrors.CodeDecodeFailed, "decode snapshot", err)
	}

	doc := &types.Snapshot{
		Tables: make(map[string][]types.Row, len(envelope.Tables)),
	}

	var stamp string
	if json.Unmarshal(envelope.ExportedAt, &stamp) == nil {
		if ts, err := time.Parse(time.RFC3339Nano, stamp); err == nil {
			doc.ExportedAt = ts.UTC()
		}
	}
	_ = json.Unmarshal(envelope.Version, &doc.Version)

	for name, raw := range envelope.Tables {
		rows, ok := decodeRows(raw)
		if !ok {
			continue
		}
		doc.Tables[name] = rows
	}
	return doc, nil
}

func decodeRows(raw json.RawMessage) ([]types.Row, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, false
	}

	rows := make([]types.Row, 0, len(items))
	for _, item := range items {
		rows = append(rows, decodeRow(item))
	}
	return rows, true
}

func decodeRow(raw json.RawMessage) types.Row {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return types.Row{}
	}

	row := make(types.Row, len(fields))
	for col, v := range fields {
		row[col] = scalar(v)
	}
	return row
}

// scalar maps a decoded JSON value onto what the store accepts.
// Nested values are kept as their JSON text.
func scalar(v interface{}) interface{} {
	switch val := v.(type) {
	case nil, string:
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	default:
		text, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		return string(text)
	}
}
