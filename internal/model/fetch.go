// File fetch.go: цикл подгрузки истории.
//
// Пусть H — высота окна истории. Для текущего чата neededHistory =
// messageOffset + 1 + ⌈2H/3⌉. Как только neededHistory превышает число
// известных сообщений, модель выпускает не более одного запроса страницы с
// курсором oldestMsgID; дубли с тем же курсором подавляются множеством
// fetchInFlight. Пока кэш чата не исчерпан, страницы берутся из кэша
// (cached=true), затем — у бэкенда.
package model

import "nchat/internal/protocol"

// fetchMinLimit — нижняя граница размера страницы: некоторые бэкенды
// группируют до десятка сообщений в одну миллисекунду, и меньший лимит
// рискует вернуть «ту же» страницу.
const fetchMinLimit = 12

// neededHistory вычисляет требуемую глубину истории для чата.
func (m *Model) neededHistory(cs *chatState) int {
	h := m.historyViewLines
	return cs.messageOffset + 1 + (2*h+2)/3
}

// fetchHistoryIfNeeded выпускает (максимум один) запрос следующей страницы
// истории чата, если видимому окну не хватает сообщений. firstPageOnly
// ограничивает подгрузку первой страницей (префетч следующего чата).
func (m *Model) fetchHistoryIfNeeded(g *Guard, key ChatKey, firstPageOnly bool) {
	m.assertLocked(g)
	cs := m.chat(key)
	if cs == nil {
		cs = m.ensureChat(key)
		if cs == nil {
			return
		}
	}
	if cs.fetchedAll {
		return
	}
	if firstPageOnly && len(cs.messageVec) > 0 {
		return
	}

	needed := m.neededHistory(cs)
	have := len(cs.messageVec)
	if needed <= have && !firstPageOnly {
		return
	}

	from := cs.oldestMsgID // пусто на первом запросе
	if _, inflight := cs.fetchInFlight[from]; inflight {
		return
	}
	limit := needed - have
	if limit < fetchMinLimit {
		limit = fetchMinLimit
	}

	cs.fetchInFlight[from] = struct{}{}
	if m.cacheUsable() && !cs.cacheDrained {
		m.store.FetchMessagesFrom(key.ProfileID, key.ChatID, from, limit)
		return
	}
	m.sendRequest(key.ProfileID, protocol.GetMessagesRequest{
		ChatID:    key.ChatID,
		FromMsgID: from,
		Limit:     int32(limit),
	})
}

// cacheUsable сообщает, подключён ли кэш и включён ли он конфигурацией.
func (m *Model) cacheUsable() bool {
	return m.store != nil && m.settings.App.GetBool("cache_enabled")
}

// prefetchNextChat подгружает первую страницу чата, который станет текущим
// по next_chat, — к переключению история уже на месте.
func (m *Model) prefetchNextChat(g *Guard) {
	m.assertLocked(g)
	next, ok := m.adjacentChat(1)
	if !ok {
		return
	}
	m.fetchHistoryIfNeeded(g, next, true)
}

// adjacentChat возвращает чат на delta позиций от текущего в chatVec.
func (m *Model) adjacentChat(delta int) (ChatKey, bool) {
	if len(m.chatVec) == 0 {
		return ChatKey{}, false
	}
	if !m.currentSet {
		return m.chatVec[0], true
	}
	for i, k := range m.chatVec {
		if k == m.current {
			idx := (i + delta%len(m.chatVec) + len(m.chatVec)) % len(m.chatVec)
			return m.chatVec[idx], true
		}
	}
	return m.chatVec[0], true
}

// startHomeFetchAll запускает фоновый прогон пагинации до начала истории:
// пока каждая пачка NewMessages приносит ≥ 2 сообщений, выпускается
// следующий запрос; пустая пачка или любая клавиша останавливают прогон.
func (m *Model) startHomeFetchAll(g *Guard) {
	m.assertLocked(g)
	if !m.currentSet {
		return
	}
	m.homeFetch = true
	m.homeFetchKey = m.current
	m.continueHomeFetch(g)
}

// continueHomeFetch выпускает очередной запрос прогона.
func (m *Model) continueHomeFetch(g *Guard) {
	m.assertLocked(g)
	cs := m.chat(m.homeFetchKey)
	if cs == nil || cs.fetchedAll {
		m.homeFetch = false
		return
	}
	from := cs.oldestMsgID
	if _, inflight := cs.fetchInFlight[from]; inflight {
		return
	}
	cs.fetchInFlight[from] = struct{}{}
	if m.cacheUsable() && !cs.cacheDrained {
		m.store.FetchMessagesFrom(m.homeFetchKey.ProfileID, m.homeFetchKey.ChatID, from, fetchMinLimit)
		return
	}
	m.sendRequest(m.homeFetchKey.ProfileID, protocol.GetMessagesRequest{
		ChatID:    m.homeFetchKey.ChatID,
		FromMsgID: from,
		Limit:     fetchMinLimit,
	})
}

// stopHomeFetch прерывает прогон (любая клавиша пользователя).
func (m *Model) stopHomeFetch(g *Guard) {
	m.assertLocked(g)
	m.homeFetch = false
}

// onMessagesBatch обрабатывает завершение запроса истории: снимает
// дедупликацию курсора, помечает исчерпание кэша/истории и продолжает
// home-fetch-all, пока пачки достаточно крупные.
func (m *Model) onMessagesBatch(g *Guard, key ChatKey, fromMsgID string, batchLen int, cached bool) {
	m.assertLocked(g)
	cs := m.chat(key)
	if cs == nil {
		return
	}
	delete(cs.fetchInFlight, fromMsgID)

	if batchLen == 0 {
		if cached {
			// Кэш исчерпан: дальнейшие страницы — у бэкенда.
			cs.cacheDrained = true
			m.fetchHistoryIfNeeded(g, key, false)
		} else {
			cs.fetchedAll = true
		}
	}

	if m.homeFetch && key == m.homeFetchKey {
		switch {
		case batchLen == 0 && cached && !cs.fetchedAll:
			// Кэш кончился — прогон продолжается уже у бэкенда.
			m.continueHomeFetch(g)
		case batchLen >= 2:
			m.continueHomeFetch(g)
		default:
			m.homeFetch = false
		}
	}
}
