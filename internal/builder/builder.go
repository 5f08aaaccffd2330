// Package builder turns vector records into index archives.
package builder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Aman-CERP/annserve/internal/archive"
	"github.com/Aman-CERP/annserve/internal/provider"
	"github.com/Aman-CERP/annserve/pkg/version"
)

// maxLine bounds one JSONL record; 1 MiB holds ~100k float factors.
const maxLine = 1 << 20

// Record is one input line: {"id": "...", "factors": [...]}.
type Record struct {
	ID      string    `json:"id"`
	Factors []float32 `json:"factors"`
}

// Stage names reported through Options.OnProgress.
type Stage int

const (
	StageReading Stage = iota
	StageIndexing
	StagePackaging
)

// Progress is a build progress update. Total is zero when unknown.
type Progress struct {
	Stage   Stage
	Current int
	Total   int
}

// Options configures a build.
type Options struct {
	Metric    provider.Metric
	Kind      provider.Kind
	VecSource string
	Provider  provider.Options
	// Compress gzips the tar stream.
	Compress bool
	// Now stamps timestamp_utc; defaults to time.Now.
	Now func() time.Time

	// OnProgress, when set, receives progress updates.
	OnProgress func(Progress)
	// OnSkip, when set, is told about input lines that were skipped.
	OnSkip func(line int, err error)
}

// DefaultOptions builds a compressed angular hnsw archive.
func DefaultOptions() Options {
	return Options{
		Metric:   provider.Angular,
		Kind:     provider.KindHNSW,
		Provider: provider.DefaultOptions(),
		Compress: true,
	}
}

// Summary describes a finished build.
type Summary struct {
	Items   int
	Dims    int
	Skipped int
	Bytes   int64
}

// ReadRecords reads JSONL records from r. Blank lines are ignored. Lines
// that fail to parse, have no id, repeat an earlier id, or whose factor
// count differs from the first record are skipped and reported to
// opts.OnSkip.
func ReadRecords(ctx context.Context, r io.Reader, opts Options) ([]Record, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	var (
		records []Record
		skipped int
		dims    int
		seen    = make(map[string]struct{})
	)
	skip := func(line int, err error) {
		skipped++
		if opts.OnSkip != nil {
			opts.OnSkip(line, err)
		}
	}

	for line := 1; scanner.Scan(); line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, skipped, err
			}
			report(opts, StageReading, len(records), 0)
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			skip(line, fmt.Errorf("invalid record: %w", err))
			continue
		}
		switch {
		case rec.ID == "":
			skip(line, errors.New("record has no id"))
			continue
		case strings.ContainsAny(rec.ID, "\r\n"):
			skip(line, fmt.Errorf("id %q contains a line break", rec.ID))
			continue
		case len(rec.Factors) == 0:
			skip(line, fmt.Errorf("record %s has no factors", rec.ID))
			continue
		}
		if dims == 0 {
			dims = len(rec.Factors)
		} else if len(rec.Factors) != dims {
			skip(line, fmt.Errorf("record %s has %d factors, want %d", rec.ID, len(rec.Factors), dims))
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			skip(line, fmt.Errorf("duplicate id %s", rec.ID))
			continue
		}
		seen[rec.ID] = struct{}{}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read records: %w", err)
	}
	if len(records) == 0 {
		return nil, skipped, errors.New("no usable records in input")
	}
	report(opts, StageReading, len(records), len(records))
	return records, skipped, nil
}

// Entries renders the archive members for ids and vectors.
func Entries(ids []string, vectors [][]float32, opts Options) ([]archive.Entry, error) {
	if len(ids) == 0 {
		return nil, errors.New("no items to index")
	}
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("%d ids for %d vectors", len(ids), len(vectors))
	}
	dims := len(vectors[0])

	report(opts, StageIndexing, 0, len(vectors))
	var idx bytes.Buffer
	if err := provider.Build(&idx, opts.Kind, dims, opts.Metric, vectors, opts.Provider); err != nil {
		return nil, fmt.Errorf("build %s index: %w", opts.Kind, err)
	}
	report(opts, StageIndexing, len(vectors), len(vectors))

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	meta, err := json.Marshal(metadata{
		Dimensions:   dims,
		Metric:       opts.Metric,
		VecSource:    opts.VecSource,
		TimestampUTC: now().UTC().Format(time.RFC3339),
		IndexType:    opts.Kind,
		BuiltBy:      version.Builder(),
	})
	if err != nil {
		return nil, err
	}

	var text bytes.Buffer
	for _, id := range ids {
		text.WriteString(id)
		text.WriteByte('\n')
	}

	return []archive.Entry{
		{Name: archive.IndexFile, Data: idx.Bytes()},
		{Name: archive.IDsFile, Data: text.Bytes()},
		{Name: archive.MetadataFile, Data: meta},
	}, nil
}

// metadata mirrors metadata.json as the serving side parses it.
type metadata struct {
	Dimensions   int             `json:"n_dim"`
	Metric       provider.Metric `json:"metric"`
	VecSource    string          `json:"vec_src"`
	TimestampUTC string          `json:"timestamp_utc"`
	IndexType    provider.Kind   `json:"index_type"`
	BuiltBy      string          `json:"built_by,omitempty"`
}

// Build indexes records and writes the archive to w.
func Build(ctx context.Context, records []Record, w io.Writer, opts Options) (Summary, error) {
	ids := make([]string, len(records))
	vectors := make([][]float32, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		vectors[i] = rec.Factors
	}

	entries, err := Entries(ids, vectors, opts)
	if err != nil {
		return Summary{}, err
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	report(opts, StagePackaging, 0, 0)
	cw := &countingWriter{w: w}
	if err := archive.Write(cw, entries, opts.Compress); err != nil {
		return Summary{}, fmt.Errorf("write archive: %w", err)
	}
	return Summary{Items: len(ids), Dims: len(vectors[0]), Bytes: cw.n}, nil
}

func report(opts Options, stage Stage, current, total int) {
	if opts.OnProgress != nil {
		opts.OnProgress(Progress{Stage: stage, Current: current, Total: total})
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
