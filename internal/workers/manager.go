package workers

import (
	"fmt"
	"log/slog"
	"sync"
)

type Manager struct {
	workers []Worker
	logger  *slog.Logger

	mu      sync.Mutex
	running []Worker
}

func NewManager(logger *slog.Logger, workers ...Worker) *Manager {
	return &Manager{
		workers: workers,
		logger:  logger,
	}
}

// Start starts every worker. If one fails, the ones already running are stopped.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Starting workers", "worker_count", len(m.workers))

	for _, worker := range m.workers {
		if err := worker.Start(); err != nil {
			m.stopRunning()
			return fmt.Errorf("failed to start worker %s: %w", worker.Name(), err)
		}
		m.running = append(m.running, worker)
		m.logger.Info("Worker started", "name", worker.Name())
	}
	return nil
}

// Stop stops running workers in reverse start order. Safe to call more than once.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Stopping workers", "worker_count", len(m.running))
	m.stopRunning()
}

func (m *Manager) stopRunning() {
	for i := len(m.running) - 1; i >= 0; i-- {
		m.running[i].Stop()
		m.logger.Info("Worker stopped", "name", m.running[i].Name())
	}
	m.running = nil
}
