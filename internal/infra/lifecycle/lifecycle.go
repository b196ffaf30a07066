// Package lifecycle — менеджер управляемых подсистем приложения.
// Узлы (кэш, профили бэкендов) регистрируются в порядке запуска;
// каждый получает дочерний контекст корня и останавливается в обратном
// порядке при Shutdown. Ошибки остановки агрегируются, запуск прерывается на
// первом сбое — частично поднятое приложение гасится целиком.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"nchat/internal/infra/logger"
)

// StartFunc запускает узел. На момент вызова контекст узла активен; отмена
// контекста — сигнал фоновым горутинам узла завершиться.
type StartFunc func(ctx context.Context) error

// StopFunc останавливает узел. Контекст узла уже отменён.
type StopFunc func() error

type node struct {
	name   string
	start  StartFunc
	stop   StopFunc
	cancel context.CancelFunc
	up     bool
}

// Manager ведёт список узлов и их порядок. Потокобезопасен.
type Manager struct {
	mu      sync.Mutex
	rootCtx context.Context
	nodes   []*node
}

// New создаёт менеджер с корневым контекстом (nil → Background).
func New(rootCtx context.Context) *Manager {
	if rootCtx == nil {
		rootCtx = context.Background()
	}
	return &Manager{rootCtx: rootCtx}
}

// Register добавляет узел в хвост порядка запуска. Имена должны быть
// уникальны; start/stop могут быть nil.
func (m *Manager) Register(name string, start StartFunc, stop StopFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.nodes {
		if n.name == name {
			return fmt.Errorf("lifecycle: node %q already registered", name)
		}
	}
	m.nodes = append(m.nodes, &node{name: name, start: start, stop: stop})
	return nil
}

// StartAll запускает узлы в порядке регистрации. Первый сбой прерывает
// запуск; уже поднятые узлы останавливаются в обратном порядке.
func (m *Manager) StartAll() error {
	m.mu.Lock()
	nodes := append([]*node(nil), m.nodes...)
	rootCtx := m.rootCtx
	m.mu.Unlock()

	for _, n := range nodes {
		ctx, cancel := context.WithCancel(rootCtx)
		logger.Debugf("starting node %s", n.name)
		if n.start != nil {
			if err := n.start(ctx); err != nil {
				cancel()
				logger.Errorf("failed to start node %s: %v", n.name, err)
				_ = m.Shutdown()
				return fmt.Errorf("lifecycle: start %s: %w", n.name, err)
			}
		}
		m.mu.Lock()
		n.cancel = cancel
		n.up = true
		m.mu.Unlock()
		logger.Debugf("node %s is running", n.name)
	}
	return nil
}

// Shutdown останавливает поднятые узлы в порядке, обратном запуску.
// Возвращает объединённую ошибку stop-хуков.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	nodes := append([]*node(nil), m.nodes...)
	m.mu.Unlock()

	var errs error
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		m.mu.Lock()
		up := n.up
		n.up = false
		m.mu.Unlock()
		if !up {
			continue
		}
		logger.Debugf("stopping node %s", n.name)
		// Сначала отменяем контекст — корректный сигнал фоновым горутинам.
		if n.cancel != nil {
			n.cancel()
		}
		if n.stop != nil {
			if err := n.stop(); err != nil {
				logger.Errorf("node %s stopped with error: %v", n.name, err)
				errs = errors.Join(errs, fmt.Errorf("lifecycle: stop %s: %w", n.name, err))
				continue
			}
		}
		logger.Debugf("node %s stopped", n.name)
	}
	return errs
}
