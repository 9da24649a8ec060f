package sandbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/faults"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
)

// Adapter starts and stops sandboxes. Both kinds share one contract; the
// only difference visible to extension code is the document global.
type Adapter struct {
	config  Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewAdapter creates an adapter. Zero config fields take their defaults.
func NewAdapter(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Adapter {
	def := DefaultConfig()
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = def.ScriptTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.MaxCallStackSize <= 0 {
		cfg.MaxCallStackSize = def.MaxCallStackSize
	}
	if cfg.MessageBuffer <= 0 {
		cfg.MessageBuffer = def.MessageBuffer
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{config: cfg, logger: logger.Named("sandbox"), metrics: metrics}
}

// Start constructs the sandbox for m and begins evaluating payload. The
// handshake arrives later as an extension.activated message.
func (a *Adapter) Start(ctx context.Context, m manifest.Manifest, payload []byte, init BridgeInit) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if init.ExtID == "" {
		init.ExtID = m.ID
	}
	if init.ExtID != m.ID {
		return nil, faults.Newf(faults.RuntimeFault, m.ID, "sandbox.start", "bridge bound to %q", init.ExtID)
	}

	logger := a.logger.With(zap.String("ext_id", m.ID), zap.String("kind", string(m.Kind)))

	switch m.Kind {
	case manifest.KindWorker:
		s := newSandbox(a.config, m, init, logger, a.metrics)
		s.startWorker(string(payload))
		logger.Debug("Worker sandbox started")
		return s, nil

	case manifest.KindIframe:
		doc, err := ParseDocument(payload)
		if err != nil {
			return nil, faults.New(faults.RuntimeFault, m.ID, "sandbox.start", err)
		}
		s := newSandbox(a.config, m, init, logger, a.metrics)
		s.doc = doc
		s.startIframe()
		logger.Debug("Iframe sandbox started", zap.String("sandbox", IframeSandbox))
		return s, nil

	default:
		return nil, faults.New(faults.RuntimeFault, m.ID, "sandbox.start", fmt.Errorf("unknown kind %q", m.Kind))
	}
}

// Stop tears h down and waits for its loop to exit. Pending calls reject
// with Disposed. Stopping twice is a no-op.
func (a *Adapter) Stop(h Handle) {
	s, ok := h.(*sandbox)
	if !ok || s == nil {
		return
	}
	s.stop()
	s.logger.Debug("Sandbox stopped")
}
