package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

type State int32

const (
	StateNew State = iota
	StateInstalled
	StateActivated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateInstalled:
		return "INSTALLED"
	case StateActivated:
		return "ACTIVATED"
	default:
		return "UNKNOWN"
	}
}

var ErrNotInstalled = errors.New("lifecycle: activate called before install")

// Report summarizes one activation. Err joins every cleanup failure; it is
// informational and never stops activation.
type Report struct {
	Current string
	Deleted []string
	Failed  []string
	Err     error
}

// Manager drives install and activation for one cache namespace version.
type Manager struct {
	logger    *slog.Logger
	store     Store
	cacheName string

	mutex sync.Mutex
	state atomic.Int32
}

func NewManager(logger *slog.Logger, store Store, cacheName string) (*Manager, error) {
	if store == nil {
		return nil, errors.New("lifecycle: store is required")
	}
	if cacheName == "" {
		return nil, ErrEmptyNamespace
	}

	return &Manager{
		logger:    logger,
		store:     store,
		cacheName: cacheName,
	}, nil
}

// Install is the prepare phase. It touches no stored state and may be
// called any number of times. Activation is never deferred to idle pages:
// the caller may Activate immediately afterwards.
func (m *Manager) Install(_ context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if State(m.state.Load()) == StateNew {
		m.state.Store(int32(StateInstalled))
		m.logger.Info("Interceptor installed, skipping wait",
			slog.String("cache", m.cacheName))
	}

	return nil
}

// Activate is the commit phase. Every namespace other than the current one
// is deleted; a failed deletion is logged and does not block the others.
// Control is claimed whatever the cleanup outcome.
func (m *Manager) Activate(ctx context.Context) (Report, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	report := Report{Current: m.cacheName}

	if State(m.state.Load()) == StateNew {
		return report, ErrNotInstalled
	}

	var errs []error

	names, err := m.store.Namespaces(ctx)
	if err != nil {
		m.logger.Error("Failed to list cache namespaces", slog.Any("err", err))
		errs = append(errs, err)
	}

	deleted, failed, deleteErrs := m.deleteStale(ctx, names)
	report.Deleted = deleted
	report.Failed = failed
	errs = append(errs, deleteErrs...)

	if err := m.store.Open(ctx, m.cacheName); err != nil {
		m.logger.Error("Failed to open current cache namespace",
			slog.String("cache", m.cacheName),
			slog.Any("err", err))
		errs = append(errs, err)
	}

	m.state.Store(int32(StateActivated))
	report.Err = errors.Join(errs...)

	m.logger.Info("Interceptor activated and controlling traffic",
		slog.String("cache", m.cacheName),
		slog.Any("deleted", report.Deleted),
		slog.Int("failed", len(report.Failed)))

	return report, nil
}

// Start installs and activates in one step.
func (m *Manager) Start(ctx context.Context) (Report, error) {
	if err := m.Install(ctx); err != nil {
		return Report{Current: m.cacheName}, err
	}
	return m.Activate(ctx)
}

// Controlling reports whether activation has completed.
func (m *Manager) Controlling() bool {
	return m.State() == StateActivated
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

// CacheName returns the namespace owned by this version.
func (m *Manager) CacheName() string {
	return m.cacheName
}

// deleteStale deletes every stale namespace concurrently. Results are sorted.
func (m *Manager) deleteStale(ctx context.Context, names []string) (deleted, failed []string, errs []error) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, name := range names {
		if name == m.cacheName {
			continue
		}

		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			err := m.store.Delete(ctx, name)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				m.logger.Warn("Failed to delete stale cache namespace",
					slog.String("cache", name),
					slog.Any("err", err))
				failed = append(failed, name)
				errs = append(errs, fmt.Errorf("delete %q: %w", name, err))
				return
			}

			m.logger.Info("Deleted stale cache namespace", slog.String("cache", name))
			deleted = append(deleted, name)
		}(name)
	}

	wg.Wait()

	sort.Strings(deleted)
	sort.Strings(failed)

	return deleted, failed, errs
}
