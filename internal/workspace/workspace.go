package workspace

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/previewfs/previewfs/internal/store"
	"github.com/previewfs/previewfs/internal/vfs"
	"github.com/sirupsen/logrus"
)

// Workspace binds one project's tree to an executor and serializes all
// access. Commands apply strictly in arrival order, one at a time to
// completion; snapshots are taken only between commands, so an exported
// snapshot never observes a half-applied edit.
type Workspace struct {
	// ID identifies this in-memory instance, not the project; a
	// restarted server gives the same project a fresh instance ID.
	ID      string
	Project string

	mu       sync.Mutex
	tree     *vfs.Tree
	executor *Executor
	logger   *logrus.Logger
}

// New creates an empty workspace for a project.
func New(project string, logger *logrus.Logger) *Workspace {
	tree := vfs.New()
	return &Workspace{
		ID:       uuid.New().String(),
		Project:  project,
		tree:     tree,
		executor: NewExecutor(tree, logger),
		logger:   logger,
	}
}

// NewFromSnapshot creates a workspace restored from a snapshot.
func NewFromSnapshot(project string, snap vfs.Snapshot, logger *logrus.Logger) (*Workspace, error) {
	tree, err := vfs.Decode(snap)
	if err != nil {
		return nil, err
	}
	return &Workspace{
		ID:       uuid.New().String(),
		Project:  project,
		tree:     tree,
		executor: NewExecutor(tree, logger),
		logger:   logger,
	}, nil
}

// SetLimits bounds subsequent mutating commands. The tool boundary
// refreshes these from the live configuration on every call, so a
// config reload takes effect without restarting the workspace.
func (w *Workspace) SetLimits(l Limits) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.executor.limits = l
}

// Apply executes one command under the workspace lock.
func (w *Workspace) Apply(cmd Command) CommandResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.executor.Apply(cmd)
}

// ApplyStream replays a JSON command stream under the workspace lock.
// The whole stream holds the lock, so another caller cannot interleave
// commands into someone else's replay.
func (w *Workspace) ApplyStream(r io.Reader) ([]CommandResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.executor.ReplayStream(r)
}

// Snapshot captures the tree between commands.
func (w *Workspace) Snapshot() vfs.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return vfs.Encode(w.tree)
}

// Restore replaces the tree wholesale with the decoded snapshot. The
// snapshot is fully decoded before the swap, so a malformed one leaves
// the current tree untouched.
func (w *Workspace) Restore(snap vfs.Snapshot) error {
	tree, err := vfs.Decode(snap)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	limits := w.executor.limits
	w.tree = tree
	w.executor = NewExecutor(tree, w.logger)
	w.executor.limits = limits
	return nil
}

// Len reports the number of entries in the tree.
func (w *Workspace) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tree.Len()
}

// Manager hands out live workspaces keyed by project and keeps them in
// the shared tool cache so the editor and manager tools operate on the
// same instance. Loading is decode-or-create: a project with a persisted
// snapshot is restored from it, anything else starts empty.
type Manager struct {
	cache  *sync.Map
	store  *store.Store
	logger *logrus.Logger
}

// NewManager creates a manager over the shared cache. store may be nil
// when persistence is disabled.
func NewManager(cache *sync.Map, st *store.Store, logger *logrus.Logger) *Manager {
	return &Manager{cache: cache, store: st, logger: logger}
}

func cacheKey(project string) string {
	return "workspace:" + project
}

// Get returns the live workspace for a project, loading or creating it
// on first use. A persisted record that no longer decodes is logged and
// discarded rather than bricking the project.
func (m *Manager) Get(project string) (*Workspace, error) {
	if cached, ok := m.cache.Load(cacheKey(project)); ok {
		if ws, ok := cached.(*Workspace); ok {
			return ws, nil
		}
	}

	ws, err := m.load(project)
	if err != nil {
		return nil, err
	}
	// Another goroutine may have loaded the same project concurrently;
	// the first stored instance wins so both callers share one lock.
	actual, loaded := m.cache.LoadOrStore(cacheKey(project), ws)
	if loaded {
		if cached, ok := actual.(*Workspace); ok {
			return cached, nil
		}
		// A foreign value occupies the key; replace it with ours.
		m.cache.Store(cacheKey(project), ws)
	}
	return ws, nil
}

func (m *Manager) load(project string) (*Workspace, error) {
	if m.store == nil {
		return New(project, m.logger), nil
	}
	rec, err := m.store.Load(project)
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace for project %s: %w", project, err)
	}
	ws, err := NewFromSnapshot(project, rec.Snapshot, m.logger)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"project": project,
			"error":   err,
		}).Warn("Persisted snapshot is malformed, starting with an empty workspace")
		return New(project, m.logger), nil
	}
	return ws, nil
}

// Persist saves the workspace's current snapshot. It is a no-op when
// persistence is disabled.
func (m *Manager) Persist(ws *Workspace, meta json.RawMessage) error {
	if m.store == nil {
		return nil
	}
	return m.store.Save(ws.Project, ws.Snapshot(), meta)
}

// Backup copies the persisted record aside before a destructive
// replacement. It is a no-op when persistence is disabled.
func (m *Manager) Backup(project string) error {
	if m.store == nil {
		return nil
	}
	return m.store.Backup(project)
}

// Drop evicts a project's live workspace, forcing the next Get to
// reload from the store.
func (m *Manager) Drop(project string) {
	m.cache.Delete(cacheKey(project))
}
