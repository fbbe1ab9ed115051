// Package zip bundles job artifacts into a single archive.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
)

// Entry names one file inside the archive and the reader providing its
// content.
type Entry struct {
	Filename string
	Reader   io.Reader
}

// Archive streams the entries into w as a zip file. Entries are written in
// the given order; the caller owns closing the underlying readers.
func Archive(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	for _, entry := range entries {
		fw, err := zw.Create(entry.Filename)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", entry.Filename, err)
		}
		if _, err := io.Copy(fw, entry.Reader); err != nil {
			return fmt.Errorf("zip: write %s: %w", entry.Filename, err)
		}
	}
	return zw.Close()
}
