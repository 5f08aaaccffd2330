package ann

import (
	"context"
	"path"
	"strings"

	"github.com/Aman-CERP/annserve/internal/blob"
	"github.com/Aman-CERP/annserve/internal/config"
	serrors "github.com/Aman-CERP/annserve/internal/errors"
)

// Source is one discovered index archive.
type Source struct {
	Name string
	Key  string
}

// archiveExts are stripped from keys under relative naming, longest first.
var archiveExts = []string{".tar.gz", ".tgz", ".tar"}

// Discover lists archives matching pattern and derives a resource name for
// each. Two archives deriving the same name are a configuration error.
func Discover(ctx context.Context, store blob.Store, pattern, naming string) ([]Source, error) {
	objs, err := store.List(ctx, pattern)
	if err != nil {
		return nil, serrors.ConfigError("cannot list archives matching "+pattern, err)
	}

	seen := make(map[string]string, len(objs))
	out := make([]Source, 0, len(objs))
	for _, o := range objs {
		name, err := DeriveName(o.Key, naming)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[name]; dup {
			return nil, serrors.ConfigError("archives "+prev+" and "+o.Key+" both map to resource "+name, nil).
				WithSuggestion("Narrow sources.pattern or switch sources.naming to relative")
		}
		seen[name] = o.Key
		out = append(out, Source{Name: name, Key: o.Key})
	}
	return out, nil
}

// DeriveName maps a blob key to a resource name. Base naming keeps the file
// name up to its first dot; relative naming keeps the directory hierarchy
// and drops the archive extension.
func DeriveName(key, naming string) (string, error) {
	var name string
	switch naming {
	case config.NamingBase, "":
		name, _, _ = strings.Cut(path.Base(key), ".")
	case config.NamingRelative:
		name = key
		trimmed := false
		for _, ext := range archiveExts {
			if strings.HasSuffix(name, ext) {
				name = strings.TrimSuffix(name, ext)
				trimmed = true
				break
			}
		}
		if !trimmed {
			name = strings.TrimSuffix(name, path.Ext(name))
		}
	default:
		return "", serrors.ConfigError("unknown naming scheme "+naming, nil)
	}
	if name == "" {
		return "", serrors.ConfigError("cannot derive a resource name from "+key, nil)
	}
	return name, nil
}
