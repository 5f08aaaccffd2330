package archive

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Extract unpacks a tar stream (optionally gzip-compressed, detected from
// the first bytes) into dir and returns the names of the regular files it
// wrote. Entries that would land outside dir are rejected. Links and
// device entries are skipped.
func Extract(ctx context.Context, r io.Reader, dir string) ([]string, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read archive header: %w", err)
	}

	var src io.Reader = br
	if len(head) == len(gzipMagic) && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create extract dir: %w", err)
	}

	tr := tar.NewReader(src)
	var written []string
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return written, fmt.Errorf("read tar entry: %w", err)
		}

		name, err := entryName(hdr.Name)
		if err != nil {
			return written, err
		}
		if name == "" {
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr); err != nil {
				return written, fmt.Errorf("extract %s: %w", name, err)
			}
			written = append(written, name)
		}
	}

	if len(written) == 0 {
		return nil, errors.New("archive contains no files")
	}
	return written, nil
}

// entryName normalizes a tar entry name to a slash path inside the
// extraction root. "" means the root itself.
func entryName(raw string) (string, error) {
	if strings.HasPrefix(raw, "/") || strings.Contains(raw, `\`) {
		return "", fmt.Errorf("unsafe archive entry %q", raw)
	}
	clean := path.Clean(raw)
	if clean == "." {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("unsafe archive entry %q", raw)
	}
	return clean, nil
}

func writeEntry(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// CheckComplete reports which RequiredFiles are missing from dir.
func CheckComplete(dir string) error {
	var missing []string
	for _, name := range RequiredFiles {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || info.IsDir() {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("archive is missing %s", strings.Join(missing, ", "))
	}
	return nil
}
