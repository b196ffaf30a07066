// File markread.go: политика пометки прочитанного.
//
// Сообщение m помечается прочитанным тогда и только тогда, когда:
//   - m было непрочитанным, ЛИБО бэкенд имеет FeatureMarkReadEveryView;
//   - включён mark_read_on_view, ЛИБО пользователь только что выполнил
//     действие «конец истории» (page-down, End, отправка);
//   - терминал в фокусе (или включён mark_read_when_inactive);
//   - текущий чат выбран (или включён mark_read_any_chat);
//   - m попадает в отображаемый срез истории.
package model

import "nchat/internal/protocol"

// markVisibleRead проходит отображаемый срез чата и отправляет
// MarkMessageRead для всего, что политика позволяет пометить.
// endOfHistoryAction=true для действий «конец истории».
func (m *Model) markVisibleRead(g *Guard, key ChatKey, endOfHistoryAction bool) {
	m.assertLocked(g)
	cs := m.chat(key)
	ps := m.profileState(key.ProfileID)
	if cs == nil || ps == nil {
		return
	}

	if !m.settings.UI.GetBool("mark_read_on_view") && !endOfHistoryAction {
		return
	}
	if !m.terminalActive && !m.settings.UI.GetBool("mark_read_when_inactive") {
		return
	}
	if !(m.currentSet && m.current == key) && !m.settings.UI.GetBool("mark_read_any_chat") {
		return
	}

	everyView := ps.proto.HasFeature(protocol.FeatureMarkReadEveryView)

	// Отображаемый срез: H сообщений начиная с messageOffset.
	lo := cs.messageOffset
	hi := lo + m.historyViewLines
	if hi > len(cs.messageVec) {
		hi = len(cs.messageVec)
	}
	for i := lo; i < hi; i++ {
		msg := cs.messages[cs.messageVec[i]]
		if msg == nil || msg.IsOutgoing || msg.IsSponsored() {
			continue
		}
		if msg.IsRead && !everyView {
			continue
		}
		m.sendRequest(key.ProfileID, protocol.MarkMessageReadRequest{
			ChatID:   key.ChatID,
			SenderID: msg.SenderID,
			MsgID:    msg.ID,
		})
		msg.IsRead = true
	}
	m.recomputeChatMeta(cs)
	m.sortChats(g)
}
