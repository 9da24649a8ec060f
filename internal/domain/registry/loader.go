package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/faults"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
)

// DefaultManifestTTL bounds how long a fetched manifest is reused.
const DefaultManifestTTL = 5 * time.Minute

// LoaderOptions configures a Loader. Zero values are usable.
type LoaderOptions struct {
	HostVersion string
	ManifestTTL time.Duration
	Disk        *DiskCache
	Clock       clock.Clock
	Metrics     *monitoring.Metrics
	Logger      *zap.Logger
}

type cachedManifest struct {
	manifest manifest.Manifest
	until    time.Time
}

// Loader is the validated, cached view of a Source.
type Loader struct {
	src  Source
	opts LoaderOptions

	mu        sync.Mutex
	manifests map[string]cachedManifest
	payloads  map[string]Payload // keyed id@version
}

// NewLoader wraps src.
func NewLoader(src Source, opts LoaderOptions) *Loader {
	if opts.ManifestTTL <= 0 {
		opts.ManifestTTL = DefaultManifestTTL
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Loader{
		src:       src,
		opts:      opts,
		manifests: make(map[string]cachedManifest),
		payloads:  make(map[string]Payload),
	}
}

func payloadKey(m manifest.Manifest) string {
	return m.ID + "@" + m.Version
}

func (l *Loader) fail(extID, op string, err error) error {
	return faults.New(faults.FetchFailure, extID, op, err)
}

// admit validates a manifest and checks it against the host version.
func (l *Loader) admit(m *manifest.Manifest) error {
	if err := manifest.Validate(m); err != nil {
		return err
	}
	if !m.CompatibleWith(l.opts.HostVersion) {
		return fmt.Errorf("requires host %s..%s, running %s",
			orAny(m.Engines.MinHostVersion), orAny(m.Engines.MaxHostVersion), l.opts.HostVersion)
	}
	return nil
}

func orAny(v string) string {
	if v == "" {
		return "*"
	}
	return v
}

// Catalog lists admissible extensions. Entries that fail validation or are
// incompatible with this host are skipped and logged.
func (l *Loader) Catalog(ctx context.Context) ([]manifest.Manifest, error) {
	timer := monitoring.NewTimer(l.opts.Metrics, "catalog")
	list, err := l.src.Catalog(ctx)
	if err != nil {
		timer.Stop("error")
		return nil, l.fail("", "catalog", err)
	}
	timer.Stop("ok")

	now := l.opts.Clock.Now()
	out := make([]manifest.Manifest, 0, len(list))

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range list {
		m := list[i]
		if err := l.admit(&m); err != nil {
			l.opts.Logger.Warn("Skipping catalog entry", zap.String("ext_id", m.ID), zap.Error(err))
			continue
		}
		l.manifests[m.ID] = cachedManifest{manifest: m.Clone(), until: now.Add(l.opts.ManifestTTL)}
		out = append(out, m)
	}
	return out, nil
}

// Manifest returns a validated manifest, from cache when fresh.
func (l *Loader) Manifest(ctx context.Context, id string) (manifest.Manifest, error) {
	now := l.opts.Clock.Now()

	l.mu.Lock()
	if c, ok := l.manifests[id]; ok && now.Before(c.until) {
		l.mu.Unlock()
		return c.manifest.Clone(), nil
	}
	l.mu.Unlock()

	timer := monitoring.NewTimer(l.opts.Metrics, "manifest")
	m, err := l.src.Manifest(ctx, id)
	if err != nil {
		timer.Stop("error")
		return manifest.Manifest{}, l.fail(id, "manifest", err)
	}
	timer.Stop("ok")

	if m.ID != id {
		return manifest.Manifest{}, l.fail(id, "manifest", fmt.Errorf("registry returned manifest for %q", m.ID))
	}
	if err := l.admit(m); err != nil {
		return manifest.Manifest{}, l.fail(id, "manifest", err)
	}

	l.mu.Lock()
	l.manifests[id] = cachedManifest{manifest: m.Clone(), until: now.Add(l.opts.ManifestTTL)}
	l.mu.Unlock()
	return m.Clone(), nil
}

// Payload returns the verified payload for m. Memory entries are reused until
// the registry's cacheUntil; the disk cache is consulted before the source.
func (l *Loader) Payload(ctx context.Context, m manifest.Manifest) (Payload, error) {
	key := payloadKey(m)
	now := l.opts.Clock.Now()

	l.mu.Lock()
	if p, ok := l.payloads[key]; ok && now.Before(p.CacheUntil) {
		l.mu.Unlock()
		return p, nil
	}
	l.mu.Unlock()

	if l.opts.Disk != nil {
		if body := l.opts.Disk.Get(m); body != nil {
			if mime, err := sniff(m.Kind, body); err == nil {
				return Payload{
					ExtID: m.ID, Version: m.Version, Kind: m.Kind,
					Body: body, Integrity: m.Integrity, MIME: mime,
				}, nil
			}
		}
	}

	timer := monitoring.NewTimer(l.opts.Metrics, "payload")
	p, err := l.src.Payload(ctx, m)
	if err != nil {
		timer.Stop("error")
		return Payload{}, l.fail(m.ID, "payload", err)
	}

	if err := l.verify(m, p); err != nil {
		timer.Stop("rejected")
		return Payload{}, l.fail(m.ID, "payload", err)
	}
	timer.Stop("ok")

	if !p.CacheUntil.IsZero() {
		l.mu.Lock()
		l.payloads[key] = *p
		l.mu.Unlock()
	}
	if l.opts.Disk != nil {
		if err := l.opts.Disk.Put(m, p.Body); err != nil {
			l.opts.Logger.Warn("Failed to cache payload", zap.String("ext_id", m.ID), zap.Error(err))
		}
	}
	return *p, nil
}

func (l *Loader) verify(m manifest.Manifest, p *Payload) error {
	if p.ExtID == "" {
		p.ExtID = m.ID
	}
	if p.ExtID != m.ID {
		return fmt.Errorf("payload is for %q", p.ExtID)
	}
	if p.Kind == "" {
		p.Kind = m.Kind
	}
	if p.Kind != m.Kind {
		return fmt.Errorf("payload kind %q does not match manifest kind %q", p.Kind, m.Kind)
	}
	if p.Version != "" && p.Version != m.Version {
		return fmt.Errorf("payload version %s does not match manifest version %s", p.Version, m.Version)
	}
	p.Version = m.Version

	if err := manifest.VerifyIntegrity(p.Body, p.Integrity); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	if err := manifest.VerifyIntegrity(p.Body, m.Integrity); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if p.Integrity == "" {
		p.Integrity = manifest.Digest(p.Body)
	}

	mime, err := sniff(m.Kind, p.Body)
	if err != nil {
		return err
	}
	p.MIME = mime
	return nil
}

// Load fetches a manifest and its payload.
func (l *Loader) Load(ctx context.Context, id string) (*Bundle, error) {
	m, err := l.Manifest(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := l.Payload(ctx, m)
	if err != nil {
		return nil, err
	}
	return &Bundle{Manifest: m, Payload: p}, nil
}

// InvalidatePayload drops the memory-cached payloads of one extension. The
// manifest stays cached.
func (l *Loader) InvalidatePayload(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, p := range l.payloads {
		if p.ExtID == id {
			delete(l.payloads, key)
		}
	}
}

// Invalidate drops everything cached for one extension.
func (l *Loader) Invalidate(id string) {
	l.InvalidatePayload(id)
	l.mu.Lock()
	delete(l.manifests, id)
	l.mu.Unlock()
}

// CheckUpdates compares loaded versions (id -> version) with the catalog.
func (l *Loader) CheckUpdates(ctx context.Context, loaded map[string]string) ([]Update, error) {
	catalog, err := l.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	var updates []Update
	for _, m := range catalog {
		current, ok := loaded[m.ID]
		if !ok || !m.NewerThan(current) {
			continue
		}
		updates = append(updates, Update{ExtID: m.ID, Current: current, Available: m.Version})
	}
	return updates, nil
}
