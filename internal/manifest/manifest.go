// Package manifest describes the files a question refers to: datafiles
// grouped into named datasets, grouped into a manifest.
//
// Two serialised shapes exist in the wild. The string convention is the
// manifest's own JSON text, as newer SDK versions embed it. The map
// convention is an already-decoded object in which a dataset may be given
// either as a full object or as a bare path, as older versions accept it.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// ErrOutsideDataset is returned when a datafile path does not lie under its
// dataset's path.
var ErrOutsideDataset = errors.New("datafile is outside its dataset")

// ErrLocalFiles is returned by CheckLocal when local paths are not allowed.
var ErrLocalFiles = errors.New("manifest refers to local files")

// cloudPrefix marks paths that live in cloud storage rather than on disk.
const cloudPrefix = "gs://"

// Datafile is a single file.
type Datafile struct {
	ID     string            `json:"id,omitempty"`
	Name   string            `json:"name"`
	Path   string            `json:"path"`
	Tags   map[string]string `json:"tags,omitempty"`
	Labels []string          `json:"labels,omitempty"`
}

// IsLocal reports whether the file lives on local disk.
func (f Datafile) IsLocal() bool {
	return !strings.HasPrefix(f.Path, cloudPrefix)
}

// Dataset is a named group of files under a common root path.
type Dataset struct {
	ID    string     `json:"id,omitempty"`
	Name  string     `json:"name"`
	Path  string     `json:"path"`
	Files []Datafile `json:"files"`
}

// NewDataset builds a dataset rooted at path from file paths.
func NewDataset(name, path string, files ...string) *Dataset {
	ds := &Dataset{Name: name, Path: path, Files: []Datafile{}}
	for _, f := range files {
		ds.Files = append(ds.Files, Datafile{Name: filepath.Base(f), Path: f})
	}
	return ds
}

// FromDirectory builds a dataset from every regular file under dir, in
// lexical order.
func FromDirectory(name, dir string) (*Dataset, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dataset %s from %s: %w", name, dir, err)
	}
	return NewDataset(name, dir, files...), nil
}

// PathWithinDataset returns f's path relative to the dataset root, using
// forward slashes.
func (d *Dataset) PathWithinDataset(f Datafile) (string, error) {
	if strings.HasPrefix(d.Path, cloudPrefix) || strings.HasPrefix(f.Path, cloudPrefix) {
		root := strings.TrimSuffix(d.Path, "/") + "/"
		if !strings.HasPrefix(f.Path, root) {
			return "", fmt.Errorf("%w: %s not under %s", ErrOutsideDataset, f.Path, d.Path)
		}
		return strings.TrimPrefix(f.Path, root), nil
	}

	rel, err := filepath.Rel(d.Path, f.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrOutsideDataset, f.Path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s not under %s", ErrOutsideDataset, f.Path, d.Path)
	}
	return filepath.ToSlash(rel), nil
}

// Manifest is a set of datasets keyed by name.
type Manifest struct {
	ID       string              `json:"id,omitempty"`
	Datasets map[string]*Dataset `json:"datasets"`
}

// New returns a manifest holding datasets keyed by their names.
func New(datasets ...*Dataset) *Manifest {
	m := &Manifest{Datasets: map[string]*Dataset{}}
	for _, ds := range datasets {
		m.Datasets[ds.Name] = ds
	}
	return m
}

// Names returns dataset names, sorted.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Datasets))
	for name := range m.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every dataset is named consistently and every file lies
// within its dataset.
func (m *Manifest) Validate() error {
	for key, ds := range m.Datasets {
		if ds == nil {
			return fmt.Errorf("dataset %q is empty", key)
		}
		if ds.Name != "" && ds.Name != key {
			return fmt.Errorf("dataset %q is named %q", key, ds.Name)
		}
		for _, f := range ds.Files {
			if _, err := ds.PathWithinDataset(f); err != nil {
				return fmt.Errorf("dataset %q: %w", key, err)
			}
		}
	}
	return nil
}

// CheckLocal fails with ErrLocalFiles if any file is local and allowLocal is
// false.
func (m *Manifest) CheckLocal(allowLocal bool) error {
	if allowLocal {
		return nil
	}
	for _, name := range m.Names() {
		for _, f := range m.Datasets[name].Files {
			if f.IsLocal() {
				return fmt.Errorf("%w: %s", ErrLocalFiles, f.Path)
			}
		}
	}
	return nil
}

// Serialise renders the manifest as JSON text (the string convention).
func (m *Manifest) Serialise() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("serialise manifest: %w", err)
	}
	return data, nil
}

// ToMap renders the manifest as a decoded JSON object (the map convention).
func (m *Manifest) ToMap() (map[string]any, error) {
	data, err := m.Serialise()
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("serialise manifest: %w", err)
	}
	return out, nil
}
