// File guard.go: дисциплина владения мьютексом модели.
//
// Модель защищена одним НЕрекурсивным мьютексом. Вместо рекурсивного захвата
// (как в оригинале) каждый «locked»-метод принимает явный *Guard — маркер
// удержания блокировки, так что «метод требует лока» проверяется системой
// типов ещё при компиляции. Публичные методы захватывают мьютекс сами и
// делегируют locked-вариантам; вью и диалоги, уже держащие лок, зовут
// locked-варианты напрямую.
package model

import (
	"sync"
	"sync/atomic"

	"nchat/internal/infra/logger"
)

// Guard — свидетельство удержания мьютекса модели. Получить его можно только
// через Lock/With; хранить за пределами критической секции нельзя.
type Guard struct {
	m *Model
}

// Lock захватывает мьютекс модели и возвращает guard.
func (m *Model) Lock() *Guard {
	m.mu.Lock()
	m.lockHeld.Store(true)
	return &Guard{m: m}
}

// Unlock освобождает мьютекс. Guard после вызова использовать нельзя.
func (m *Model) Unlock(g *Guard) {
	m.assertLocked(g)
	g.m = nil
	m.lockHeld.Store(false)
	m.mu.Unlock()
}

// With выполняет fn под мьютексом модели.
func (m *Model) With(fn func(g *Guard)) {
	g := m.Lock()
	defer m.Unlock(g)
	fn(g)
}

// assertLocked проверяет, что guard принадлежит этой модели и лок удержан.
// При assert_abort=1 нарушение приводит к панике (debug-режим), иначе —
// к записи в лог и продолжению работы.
func (m *Model) assertLocked(g *Guard) {
	if g != nil && g.m == m && m.lockHeld.Load() {
		return
	}
	if m.assertAbort {
		panic("model: method called without holding the model lock")
	}
	logger.Error("model: method called without holding the model lock")
}

// mutexState — внутренние поля синхронизации модели; вынесены отдельным
// типом, чтобы встраивание в Model не засоряло его определение.
type mutexState struct {
	mu       sync.Mutex
	lockHeld atomic.Bool
}
