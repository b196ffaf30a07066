// File typing.go: трансляция собственного статуса «печатает».
//
// Отправка start-typing ограничена лимитером до одного раза в 2.5 с на чат;
// stop-typing уходит, когда клавиатура молчит 3 с. Если бэкенд не имеет
// FeatureTypingTimeout (его статус не гаснет сам), продления подавляются —
// достаточно единственного start.
package model

import (
	"time"

	"golang.org/x/time/rate"

	"nchat/internal/protocol"
)

const (
	// typingRefreshInterval — минимальный интервал между start-typing.
	typingRefreshInterval = 2500 * time.Millisecond
	// typingStopDelay — тишина клавиатуры, после которой уходит stop-typing.
	typingStopDelay = 3 * time.Second
)

// typingState — состояние трансляции набора по одному чату.
type typingState struct {
	limiter   *rate.Limiter
	active    bool
	stopTimer *time.Timer
}

// onEntryActivity вызывается при каждом клавиатурном событии строки ввода
// текущего чата: транслирует start-typing (с учётом лимита) и перезаводит
// таймер остановки.
func (m *Model) onEntryActivity(g *Guard) {
	m.assertLocked(g)
	if !m.currentSet || !m.settings.UI.GetBool("typing_status_share") {
		return
	}
	key := m.current
	cs := m.chat(key)
	ps := m.profileState(key.ProfileID)
	if cs == nil || ps == nil {
		return
	}

	ts := &cs.typing
	if ts.limiter == nil {
		ts.limiter = rate.NewLimiter(rate.Every(typingRefreshInterval), 1)
	}

	refreshable := ps.proto.HasFeature(protocol.FeatureTypingTimeout)
	needStart := !ts.active || refreshable
	if needStart && ts.limiter.Allow() {
		m.sendRequest(key.ProfileID, protocol.SendTypingRequest{
			ChatID:   key.ChatID,
			IsTyping: true,
		})
		ts.active = true
	}

	// Перезаводим таймер остановки: молчание typingStopDelay → stop-typing.
	if ts.stopTimer != nil {
		ts.stopTimer.Stop()
	}
	ts.stopTimer = time.AfterFunc(typingStopDelay, func() {
		m.With(func(g *Guard) { m.stopTyping(g, key) })
	})
}

// stopTyping шлёт stop-typing, если набор был активен, и сбрасывает состояние.
func (m *Model) stopTyping(g *Guard, key ChatKey) {
	m.assertLocked(g)
	cs := m.chat(key)
	if cs == nil || !cs.typing.active {
		return
	}
	cs.typing.active = false
	m.sendRequest(key.ProfileID, protocol.SendTypingRequest{
		ChatID:   key.ChatID,
		IsTyping: false,
	})
}
