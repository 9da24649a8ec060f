package registry

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
)

// ManifestPattern matches manifest files anywhere below a catalog root.
const ManifestPattern = "**/manifest.{json,yaml,yml,toml}"

// DirSource serves a catalog from a directory tree. Each extension lives in
// its own directory holding a manifest file and the entry it names. An entry
// may be stored zstd-compressed as "<entry>.zst".
type DirSource struct {
	root string
}

// NewDirSource creates a source rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{root: dir}
}

type located struct {
	manifest manifest.Manifest
	dir      string
}

// scan walks the tree and decodes every manifest it finds. Manifests that
// fail to decode are reported together; valid ones are still returned.
func (s *DirSource) scan(ctx context.Context) (map[string]located, []error, error) {
	var (
		mu    sync.Mutex
		found = make(map[string]located)
		errs  []error
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, s.root, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil || d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return nil
		}
		if ok, _ := doublestar.Match(ManifestPattern, filepath.ToSlash(rel)); !ok {
			return nil
		}

		m, err := manifest.DecodeFile(p)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rel, err))
			return nil
		}
		if prev, dup := found[m.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate extension id %s (also in %s)", rel, m.ID, prev.dir))
			return nil
		}
		found[m.ID] = located{manifest: *m, dir: filepath.Dir(p)}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", s.root, err)
	}
	return found, errs, nil
}

// Catalog returns every valid manifest sorted by id.
func (s *DirSource) Catalog(ctx context.Context) ([]manifest.Manifest, error) {
	found, _, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]manifest.Manifest, 0, len(found))
	for _, l := range found {
		out = append(out, l.manifest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Problems lists manifests that could not be decoded.
func (s *DirSource) Problems(ctx context.Context) ([]error, error) {
	_, errs, err := s.scan(ctx)
	return errs, err
}

func (s *DirSource) Manifest(ctx context.Context, id string) (*manifest.Manifest, error) {
	found, _, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	l, ok := found[id]
	if !ok {
		return nil, fmt.Errorf("extension %s not found in %s", id, s.root)
	}
	m := l.manifest
	return &m, nil
}

func (s *DirSource) Payload(ctx context.Context, m manifest.Manifest) (*Payload, error) {
	found, _, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	l, ok := found[m.ID]
	if !ok {
		return nil, fmt.Errorf("extension %s not found in %s", m.ID, s.root)
	}

	body, err := readEntry(filepath.Join(l.dir, filepath.FromSlash(m.Entry)))
	if err != nil {
		return nil, err
	}

	return &Payload{
		ExtID:   l.manifest.ID,
		Version: l.manifest.Version,
		Kind:    l.manifest.Kind,
		Body:    body,
	}, nil
}

func readEntry(path string) ([]byte, error) {
	body, err := os.ReadFile(path)
	if err == nil {
		return body, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read entry: %w", err)
	}

	compressed, zerr := os.ReadFile(path + ".zst")
	if zerr != nil {
		return nil, fmt.Errorf("read entry: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	body, err = dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress entry: %w", err)
	}
	return body, nil
}
