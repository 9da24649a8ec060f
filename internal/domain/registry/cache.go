package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
)

// DiskCache keeps verified payloads on disk, zstd-compressed, keyed by
// id@version. Only manifests that pin an integrity digest are cached, and
// every read is re-verified against that digest.
type DiskCache struct {
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewDiskCache creates the cache directory if needed.
func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &DiskCache{dir: dir, enc: enc, dec: dec}, nil
}

func (c *DiskCache) path(m manifest.Manifest) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(m.ID + "@" + m.Version)
	return filepath.Join(c.dir, name+".zst")
}

// Get returns the cached body for m, or nil when absent or no longer valid.
func (c *DiskCache) Get(m manifest.Manifest) []byte {
	if m.Integrity == "" {
		return nil
	}
	compressed, err := os.ReadFile(c.path(m))
	if err != nil {
		return nil
	}
	body, err := c.dec.DecodeAll(compressed, nil)
	if err != nil || manifest.VerifyIntegrity(body, m.Integrity) != nil {
		_ = os.Remove(c.path(m))
		return nil
	}
	return body
}

// Put stores a verified body. Writes go through a temp file so a crash never
// leaves a truncated entry behind.
func (c *DiskCache) Put(m manifest.Manifest, body []byte) error {
	if m.Integrity == "" {
		return nil
	}
	tmp, err := os.CreateTemp(c.dir, ".payload-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(c.enc.EncodeAll(body, nil)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.path(m))
}

// Close releases the codec resources.
func (c *DiskCache) Close() {
	c.enc.Close()
	c.dec.Close()
}
