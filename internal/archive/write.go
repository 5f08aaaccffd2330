package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"time"
)

// Entry is one file to place in an archive.
type Entry struct {
	Name string
	Data []byte
}

// Write streams entries as a tar archive to w, gzip-compressed when
// compress is set. Entries keep their order.
func Write(w io.Writer, entries []Entry, compress bool) error {
	var gz *gzip.Writer
	out := w
	if compress {
		gz = gzip.NewWriter(w)
		out = gz
	}

	tw := tar.NewWriter(out)
	now := time.Now().UTC()
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.Name,
			Mode:     0o644,
			Size:     int64(len(e.Data)),
			ModTime:  now,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write header %s: %w", e.Name, err)
		}
		if _, err := tw.Write(e.Data); err != nil {
			return fmt.Errorf("write %s: %w", e.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if gz != nil {
		return gz.Close()
	}
	return nil
}
