package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/faults"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/install"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/id"
)

// ErrNoPrompt is returned by Approve/Deny when the queue is empty or the
// given prompt is not the visible one.
var ErrNoPrompt = errors.New("no matching permission prompt")

// Requested is one permission shown in a prompt.
type Requested struct {
	Permission  manifest.Permission `json:"permission"`
	Description string              `json:"description"`
}

// Prompt asks the user to approve a permission delta.
type Prompt struct {
	ID          id.PromptID           `json:"id"`
	ExtID       string                `json:"extId"`
	ExtName     string                `json:"extName"`
	Permissions []manifest.Permission `json:"permissions"`
	Details     []Requested           `json:"details"`
	CreatedAt   time.Time             `json:"createdAt"`
}

type pending struct {
	prompt Prompt
	answer chan bool
}

// Manager owns the prompt queue.
type Manager struct {
	store   install.Store
	clock   clock.Clock
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	queue    []*pending
	onChange []func()
}

// NewManager creates a manager persisting through store.
func NewManager(store install.Store, clk clock.Clock, logger *zap.Logger, metrics *monitoring.Metrics) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		clock:   clk,
		logger:  logger.Named("permission"),
		metrics: metrics,
	}
}

// OnChange registers f to run whenever the queue changes. f runs without
// the manager's lock held.
func (m *Manager) OnChange(f func()) {
	m.mu.Lock()
	m.onChange = append(m.onChange, f)
	m.mu.Unlock()
}

func (m *Manager) changed() {
	m.mu.Lock()
	hooks := append([]func(){}, m.onChange...)
	n := len(m.queue)
	m.mu.Unlock()

	m.metrics.SetPromptsPending(n)
	for _, f := range hooks {
		f()
	}
}

// Approved returns the persisted approved set for an extension. A missing
// install record is an empty set.
func (m *Manager) Approved(ctx context.Context, extID string) (manifest.Set, error) {
	rec, err := m.store.Get(ctx, extID)
	if errors.Is(err, install.ErrNotFound) {
		return manifest.NewSet(), nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Approved(), nil
}

// Gate blocks until the manifest's permissions are approved. It returns the
// full approved set on success, a faults.PermissionDenied error when the user
// denies, ctx.Err() when ctx ends first, and a faults.FetchFailure error when
// the install store cannot be read or written.
func (m *Manager) Gate(ctx context.Context, man manifest.Manifest) (manifest.Set, error) {
	rec, err := m.store.Get(ctx, man.ID)
	if err != nil && !errors.Is(err, install.ErrNotFound) {
		return nil, faults.New(faults.FetchFailure, man.ID, "load install", err)
	}

	approved := manifest.NewSet()
	settings := map[string]any{}
	if rec != nil {
		approved = rec.Approved()
		if rec.Settings != nil {
			settings = rec.Settings
		}
	}

	delta := manifest.Delta(man.Permissions, approved)
	if len(delta) == 0 {
		return approved, nil
	}

	ok, err := m.ask(ctx, man, delta)
	if err != nil {
		return nil, err
	}
	if !ok {
		m.logger.Info("Permissions denied", zap.String("ext_id", man.ID), zap.Any("permissions", delta))
		return nil, faults.New(faults.PermissionDenied, man.ID, "activate", fmt.Errorf("user denied %v", delta))
	}

	merged := approved.Merge(manifest.NewSet(delta...))
	if _, err := m.store.Save(ctx, man.ID, merged.Slice(), settings); err != nil {
		return nil, faults.New(faults.FetchFailure, man.ID, "persist permissions", err)
	}

	m.logger.Info("Permissions approved", zap.String("ext_id", man.ID), zap.Any("permissions", delta))
	return merged, nil
}

func (m *Manager) ask(ctx context.Context, man manifest.Manifest, delta []manifest.Permission) (bool, error) {
	details := make([]Requested, len(delta))
	for i, p := range delta {
		details[i] = Requested{Permission: p, Description: p.Description()}
	}

	p := &pending{
		prompt: Prompt{
			ID:          id.NewPromptID(),
			ExtID:       man.ID,
			ExtName:     man.Name,
			Permissions: delta,
			Details:     details,
			CreatedAt:   m.clock.Now(),
		},
		answer: make(chan bool, 1),
	}

	m.mu.Lock()
	m.queue = append(m.queue, p)
	m.mu.Unlock()
	m.changed()

	m.logger.Debug("Permission prompt queued",
		zap.String("ext_id", man.ID),
		zap.String("prompt_id", p.prompt.ID.String()),
		zap.Any("permissions", delta))

	select {
	case ok := <-p.answer:
		return ok, nil
	case <-ctx.Done():
		if m.remove(p) {
			m.changed()
			return false, ctx.Err()
		}
		// Answered concurrently with cancellation
		return <-p.answer, nil
	}
}

func (m *Manager) remove(target *pending) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.queue {
		if p == target {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Current returns the visible prompt, if any.
func (m *Manager) Current() (Prompt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Prompt{}, false
	}
	return m.queue[0].prompt, true
}

// Pending returns every queued prompt, head first.
func (m *Manager) Pending() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Prompt, len(m.queue))
	for i, p := range m.queue {
		out[i] = p.prompt
	}
	return out
}

// Approve answers the visible prompt. An empty promptID answers whatever is
// visible; otherwise it must match the head.
func (m *Manager) Approve(promptID id.PromptID) error {
	return m.answer(promptID, true)
}

// Deny answers the visible prompt negatively.
func (m *Manager) Deny(promptID id.PromptID) error {
	return m.answer(promptID, false)
}

func (m *Manager) answer(promptID id.PromptID, ok bool) error {
	m.mu.Lock()
	if len(m.queue) == 0 || (promptID != "" && m.queue[0].prompt.ID != promptID) {
		m.mu.Unlock()
		return ErrNoPrompt
	}
	head := m.queue[0]
	m.queue = m.queue[1:]
	m.mu.Unlock()

	head.answer <- ok
	m.changed()
	return nil
}

// DenyAll answers every queued prompt negatively. Used on shutdown.
func (m *Manager) DenyAll() {
	m.mu.Lock()
	queue := m.queue
	m.queue = nil
	m.mu.Unlock()

	for _, p := range queue {
		p.answer <- false
	}
	if len(queue) > 0 {
		m.changed()
	}
}
