// Inspection tool for indexed HDF5 and netCDF4 files
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/alexander-buerger-met-no/hidefix/idx"
)

func main() {
	writeIndex := flag.String("write-index", "", "serialize the index to this path")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: hfxinspect [-write-index out.idx] <file.nc|file.h5|file.idx>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	path := flag.Arg(0)

	x, err := loadIndex(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== %s ===\n", path)
	if x.Origin.Path != "" {
		fmt.Printf("Origin: %s (%d bytes)\n", x.Origin.Path, x.Origin.Size)
	}
	fmt.Printf("Datasets: %d\n\n", x.Len())

	for _, name := range x.Datasets() {
		printDataset(name, x.Dataset(name))
	}

	if *writeIndex != "" {
		if err := x.WriteFile(*writeIndex); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: write index: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Index written to %s\n", *writeIndex)
	}
}

// loadIndex reads a serialized index directly, or scans the container.
func loadIndex(path string) (*idx.Index, error) {
	if x, err := idx.ReadFile(path); err == nil {
		return x, nil
	}
	return idx.ScanFile(path)
}

func printDataset(name string, ds *idx.Dataset) {
	fmt.Printf("Dataset %q:\n", name)
	fmt.Printf("  Shape:  %v\n", ds.Dims)
	fmt.Printf("  Type:   %s (%d bytes)\n", ds.Dtype.Class, ds.Dtype.Size)

	switch ds.Layout {
	case idx.LayoutChunked:
		fmt.Printf("  Chunks: %v (%d stored)\n", ds.ChunkDims, ds.NumChunks())
	case idx.LayoutContiguous:
		fmt.Printf("  Layout: contiguous\n")
	case idx.LayoutCompact:
		fmt.Printf("  Layout: compact (%d bytes)\n", len(ds.CompactData))
	}

	if len(ds.Filters) > 0 {
		var ids []string
		for _, f := range ds.Filters {
			ids = append(ids, fmt.Sprintf("%d", f.ID))
		}
		fmt.Printf("  Filters: %s\n", strings.Join(ids, ", "))
	}
	for _, a := range ds.Attrs {
		fmt.Printf("  Attr %q: %s, %d bytes\n", a.Name, a.Dtype.Class, len(a.Raw))
	}
	if ds.Unsupported != "" {
		fmt.Printf("  UNSUPPORTED: %s\n", ds.Unsupported)
	}
	fmt.Println()
}
