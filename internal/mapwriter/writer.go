// Package mapwriter serializes map records to the JSON artifact read by the web viewer.
package mapwriter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"commentmap/internal/domain"
)

// ErrNonFinite means a NaN or infinite value reached the serializer.
var ErrNonFinite = errors.New("non-finite value in map records")

// Summary describes a written map.
type Summary struct {
	Path     string
	Records  int
	Clusters int
	Noise    int
}

// Summarize counts records, distinct non-negative cluster ids and noise records.
func Summarize(records []domain.Record) Summary {
	clusters := make(map[int]struct{})
	s := Summary{Records: len(records)}
	for _, r := range records {
		if r.ClusterID == domain.NoiseLabel {
			s.Noise++
			continue
		}
		if r.ClusterID >= 0 {
			clusters[r.ClusterID] = struct{}{}
		}
	}
	s.Clusters = len(clusters)
	return s
}

// Encode renders records as a two-space indented JSON array without HTML escaping.
func Encode(records []domain.Record) ([]byte, error) {
	if records == nil {
		records = []domain.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		var unsupported *json.UnsupportedValueError
		if errors.As(err, &unsupported) {
			return nil, errors.Wrapf(ErrNonFinite, "%s", unsupported.Str)
		}
		return nil, errors.Wrap(err, "encode map records")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Write encodes records and replaces path atomically. Nothing is written when encoding fails.
func Write(path string, records []domain.Record) (Summary, error) {
	data, err := Encode(records)
	if err != nil {
		return Summary{}, err
	}
	if err := WriteFileAtomic(path, data); err != nil {
		return Summary{}, err
	}
	s := Summarize(records)
	s.Path = path
	return s, nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "chmod %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "rename to %s", path)
	}
	return nil
}
