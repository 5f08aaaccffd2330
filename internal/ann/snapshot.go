package ann

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/annserve/internal/archive"
	"github.com/Aman-CERP/annserve/internal/provider"
)

// Metadata describes an index archive. It is read from metadata.json.
type Metadata struct {
	Dimensions   int             `json:"n_dim"`
	Metric       provider.Metric `json:"metric"`
	VecSource    string          `json:"vec_src"`
	TimestampUTC string          `json:"timestamp_utc"`
	IndexType    provider.Kind   `json:"index_type,omitempty"`
	BuiltBy      string          `json:"built_by,omitempty"`
}

// ParseMetadata decodes and validates metadata.json content.
func ParseMetadata(data []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("parse %s: %w", archive.MetadataFile, err)
	}
	if m.Dimensions <= 0 {
		return Metadata{}, fmt.Errorf("%s: n_dim must be positive, got %d", archive.MetadataFile, m.Dimensions)
	}
	metric, err := provider.ParseMetric(string(m.Metric))
	if err != nil {
		return Metadata{}, fmt.Errorf("%s: %w", archive.MetadataFile, err)
	}
	kind, err := provider.ParseKind(string(m.IndexType))
	if err != nil {
		return Metadata{}, fmt.Errorf("%s: %w", archive.MetadataFile, err)
	}
	m.Metric, m.IndexType = metric, kind
	return m, nil
}

// IDTable maps ordinals to ids and back.
type IDTable struct {
	ids []string
	ord map[string]int
}

// NewIDTable builds a table from ids in ordinal order. Ids must be unique
// and non-empty.
func NewIDTable(ids []string) (*IDTable, error) {
	ord := make(map[string]int, len(ids))
	for i, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("empty id at line %d", i+1)
		}
		if prev, dup := ord[id]; dup {
			return nil, fmt.Errorf("duplicate id %q at lines %d and %d", id, prev+1, i+1)
		}
		ord[id] = i
	}
	return &IDTable{ids: ids, ord: ord}, nil
}

// Len returns the number of ids.
func (t *IDTable) Len() int { return len(t.ids) }

// ID returns the id at ordinal i.
func (t *IDTable) ID(i int) string { return t.ids[i] }

// Ordinal returns the ordinal of id.
func (t *IDTable) Ordinal(id string) (int, bool) {
	i, ok := t.ord[id]
	return i, ok
}

// Head returns up to n ids from the start of the table.
func (t *IDTable) Head(n int) []string {
	if n > len(t.ids) {
		n = len(t.ids)
	}
	return append([]string(nil), t.ids[:n]...)
}

// Snapshot is one loaded, immutable version of an index.
type Snapshot struct {
	Metadata    Metadata
	Index       provider.Index
	IDs         *IDTable
	ExtractedAt time.Time
	Dir         string
}

// OpenSnapshot parses an extracted archive in dir. It checks that the id
// table and the index agree on the item count.
func OpenSnapshot(dir string, opts provider.Options) (*Snapshot, error) {
	if err := archive.CheckComplete(dir); err != nil {
		return nil, err
	}

	metaBytes, err := os.ReadFile(filepath.Join(dir, archive.MetadataFile))
	if err != nil {
		return nil, err
	}
	meta, err := ParseMetadata(metaBytes)
	if err != nil {
		return nil, err
	}

	ids, err := readIDs(filepath.Join(dir, archive.IDsFile))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, archive.IndexFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	idx, err := provider.Open(f, meta.IndexType, meta.Dimensions, meta.Metric, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", archive.IndexFile, err)
	}

	if ids.Len() != idx.Len() {
		return nil, fmt.Errorf("%s lists %d ids but the index holds %d items", archive.IDsFile, ids.Len(), idx.Len())
	}

	return &Snapshot{Metadata: meta, Index: idx, IDs: ids, Dir: dir}, nil
}

func readIDs(path string) (*IDTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		// Ids are taken verbatim; only a CRLF line ending is dropped.
		ids = append(ids, strings.TrimSuffix(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", archive.IDsFile, err)
	}
	table, err := NewIDTable(ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", archive.IDsFile, err)
	}
	return table, nil
}
