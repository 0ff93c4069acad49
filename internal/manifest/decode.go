package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
)

// ErrMalformed is returned for manifests that do not decode in the requested
// convention.
var ErrMalformed = errors.New("malformed manifest")

// Deserialise decodes the string convention: the manifest's own JSON text.
// Every dataset must be a full object.
func Deserialise(text string) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.Datasets == nil {
		return nil, fmt.Errorf("%w: missing datasets", ErrMalformed)
	}
	for name, ds := range m.Datasets {
		if ds == nil {
			return nil, fmt.Errorf("%w: dataset %q is null", ErrMalformed, name)
		}
		if ds.Name == "" {
			ds.Name = name
		}
		if ds.Files == nil {
			ds.Files = []Datafile{}
		}
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &m, nil
}

// FromMap decodes the map convention. A dataset value may be a full object or
// a bare path string; files given as bare strings are paths.
func FromMap(obj map[string]any) (*Manifest, error) {
	rawDatasets, ok := obj["datasets"]
	if !ok {
		return nil, fmt.Errorf("%w: missing datasets", ErrMalformed)
	}
	datasets, ok := rawDatasets.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: datasets is %T, want object", ErrMalformed, rawDatasets)
	}

	m := New()
	if id, ok := obj["id"].(string); ok {
		m.ID = id
	}
	for name, raw := range datasets {
		ds, err := datasetFromAny(name, raw)
		if err != nil {
			return nil, err
		}
		m.Datasets[name] = ds
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

func datasetFromAny(name string, raw any) (*Dataset, error) {
	switch v := raw.(type) {
	case string:
		return &Dataset{Name: name, Path: v, Files: []Datafile{}}, nil
	case map[string]any:
		ds := &Dataset{Name: name, Files: []Datafile{}}
		ds.Path, _ = v["path"].(string)
		ds.ID, _ = v["id"].(string)
		if n, ok := v["name"].(string); ok && n != "" {
			ds.Name = n
		}
		files, _ := v["files"].([]any)
		for i, rf := range files {
			f, err := datafileFromAny(rf)
			if err != nil {
				return nil, fmt.Errorf("%w: dataset %q file %d: %v", ErrMalformed, name, i, err)
			}
			ds.Files = append(ds.Files, f)
		}
		return ds, nil
	default:
		return nil, fmt.Errorf("%w: dataset %q is %T", ErrMalformed, name, raw)
	}
}

func datafileFromAny(raw any) (Datafile, error) {
	switch v := raw.(type) {
	case string:
		return Datafile{Name: filepath.Base(v), Path: v}, nil
	case map[string]any:
		path, ok := v["path"].(string)
		if !ok || path == "" {
			return Datafile{}, fmt.Errorf("missing path")
		}
		f := Datafile{Path: path, Name: filepath.Base(path)}
		if n, ok := v["name"].(string); ok && n != "" {
			f.Name = n
		}
		f.ID, _ = v["id"].(string)
		return f, nil
	default:
		return Datafile{}, fmt.Errorf("unexpected %T", raw)
	}
}
