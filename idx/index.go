// Package idx builds and serializes chunk indexes for HDF5 and netCDF4
// containers. A scan reads the container metadata once; the resulting
// index locates every chunk of every variable without touching the
// source again, so reads can go straight to the chunk bytes.
package idx

import (
	"os"
	"sort"
	"strings"
)

// Origin identifies the container an index was built from, used to
// detect stale serialized indexes.
type Origin struct {
	Path    string
	Size    int64
	ModTime int64 // unix nanoseconds
}

// Index is the chunk directory of one container. It is immutable after
// the scan and safe for concurrent use.
type Index struct {
	Origin Origin

	datasets map[string]*Dataset
	names    []string
	attrs    []Attr
}

func newIndex() *Index {
	return &Index{datasets: map[string]*Dataset{}}
}

func (x *Index) add(d *Dataset) {
	if _, exists := x.datasets[d.Name]; !exists {
		x.names = append(x.names, d.Name)
	}
	x.datasets[d.Name] = d
}

// ScanFile opens and scans the container at path, recording the file
// identity in the index origin.
func ScanFile(path string, opts ...Option) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	x, err := Scan(f, opts...)
	if err != nil {
		return nil, err
	}
	x.Origin = Origin{Path: path, Size: st.Size(), ModTime: st.ModTime().UnixNano()}
	return x, nil
}

// Dataset returns the named dataset, or nil. A leading slash is
// accepted and ignored.
func (x *Index) Dataset(name string) *Dataset {
	return x.datasets[strings.TrimPrefix(name, "/")]
}

// Datasets returns all dataset names in lexical order.
func (x *Index) Datasets() []string {
	names := append([]string(nil), x.names...)
	sort.Strings(names)
	return names
}

// Len returns the number of datasets.
func (x *Index) Len() int { return len(x.datasets) }

// Attrs returns the global attributes. Attributes of nested groups are
// included with their group path prefixed.
func (x *Index) Attrs() []Attr { return x.attrs }

// Attr returns the named global attribute, or nil.
func (x *Index) Attr(name string) *Attr {
	name = strings.TrimPrefix(name, "/")
	for i := range x.attrs {
		if x.attrs[i].Name == name {
			return &x.attrs[i]
		}
	}
	return nil
}

// Matches reports whether the index origin still describes the file at
// its recorded path.
func (x *Index) Matches() bool {
	if x.Origin.Path == "" {
		return false
	}
	st, err := os.Stat(x.Origin.Path)
	if err != nil {
		return false
	}
	return st.Size() == x.Origin.Size && st.ModTime().UnixNano() == x.Origin.ModTime
}
