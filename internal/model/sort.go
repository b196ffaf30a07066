// File sort.go: инварианты порядка — сортировка списка чатов и вставка
// сообщений в messageVec.
//
// Чаты: закреплённые раньше незакреплённых; внутри класса закрепления больший
// lastMessageTime раньше; ничьи — по id по возрастанию. Отдельная ручка
// ui.conf muted_position_by_timestamp=0 опускает замьюченные чаты ниже
// остальных независимо от времени.
//
// Сообщения: messageVec по убыванию timeSent; при равном времени
// неспонсорские раньше спонсорских, далее id по убыванию для стабильности.
package model

import (
	"sort"

	"nchat/internal/protocol"
)

// recomputeChatMeta пересчитывает производные поля чата после мутации:
// lastMessageTime (самое свежее неспонсорское сообщение либо время
// закрепления) и isUnread по тому же сообщению.
func (m *Model) recomputeChatMeta(cs *chatState) {
	if cs.info.IsPinned && cs.timePinned > 0 {
		cs.info.LastMessageTime = cs.timePinned
	} else if newest := newestRegular(cs); newest != nil {
		cs.info.LastMessageTime = newest.TimeSent
	}
	if newest := newestRegular(cs); newest != nil {
		cs.info.IsUnread = !newest.IsRead && !newest.IsOutgoing
	}
}

// newestRegular возвращает самое свежее неспонсорское сообщение чата.
// Спонсорские записи сортируются в messageVec по тому же полю, но из
// вычислений «самого свежего» исключаются.
func newestRegular(cs *chatState) *protocol.ChatMessage {
	for _, id := range cs.messageVec {
		msg := cs.messages[id]
		if msg != nil && !msg.IsSponsored() {
			return msg
		}
	}
	return nil
}

// sortChats пересортировывает chatVec согласно инварианту порядка.
// Выбор текущего чата сохраняется по id (он адресуется ключом, не индексом).
func (m *Model) sortChats(g *Guard) {
	m.assertLocked(g)

	demoteMuted := !m.settings.UI.GetBool("muted_position_by_timestamp")

	sort.SliceStable(m.chatVec, func(i, j int) bool {
		a := m.chat(m.chatVec[i])
		b := m.chat(m.chatVec[j])
		if a == nil || b == nil {
			return a != nil
		}
		if a.info.IsPinned != b.info.IsPinned {
			return a.info.IsPinned
		}
		if demoteMuted && a.info.IsMuted != b.info.IsMuted {
			return !a.info.IsMuted
		}
		if a.info.LastMessageTime != b.info.LastMessageTime {
			return a.info.LastMessageTime > b.info.LastMessageTime
		}
		if m.chatVec[i].ProfileID != m.chatVec[j].ProfileID {
			return m.chatVec[i].ProfileID < m.chatVec[j].ProfileID
		}
		return m.chatVec[i].ChatID < m.chatVec[j].ChatID
	})
	m.MarkDirty(DirtyChats)
}

// ensureChatListed добавляет чат в chatVec при первом появлении.
func (m *Model) ensureChatListed(key ChatKey) {
	for _, k := range m.chatVec {
		if k == key {
			return
		}
	}
	m.chatVec = append(m.chatVec, key)
}

// removeChatListed убирает чат из chatVec (удаление чата).
func (m *Model) removeChatListed(key ChatKey) {
	for i, k := range m.chatVec {
		if k == key {
			m.chatVec = append(m.chatVec[:i], m.chatVec[i+1:]...)
			return
		}
	}
}

// messageLess — порядок messageVec: время по убыванию, неспонсорские раньше
// спонсорских при равном времени, далее id по убыванию.
func messageLess(a, b *protocol.ChatMessage) bool {
	if a.TimeSent != b.TimeSent {
		return a.TimeSent > b.TimeSent
	}
	if a.IsSponsored() != b.IsSponsored() {
		return !a.IsSponsored()
	}
	return a.ID > b.ID
}

// insertMessage помещает сообщение в messages и messageVec, сохраняя порядок.
// Уже известный id вызывает пересортировку позиции (правка может менять
// отображаемое время у некоторых бэкендов).
func (cs *chatState) insertMessage(msg *protocol.ChatMessage) {
	_, known := cs.messages[msg.ID]
	cs.messages[msg.ID] = msg
	if known {
		cs.resortMessage(msg.ID)
		return
	}
	idx := sort.Search(len(cs.messageVec), func(i int) bool {
		return !messageLess(cs.messages[cs.messageVec[i]], msg)
	})
	cs.messageVec = append(cs.messageVec, "")
	copy(cs.messageVec[idx+1:], cs.messageVec[idx:])
	cs.messageVec[idx] = msg.ID
	cs.updateOldest()
}

// removeMessage удаляет сообщение из messages и messageVec.
func (cs *chatState) removeMessage(msgID string) {
	if _, ok := cs.messages[msgID]; !ok {
		return
	}
	delete(cs.messages, msgID)
	for i, id := range cs.messageVec {
		if id == msgID {
			cs.messageVec = append(cs.messageVec[:i], cs.messageVec[i+1:]...)
			break
		}
	}
	if cs.messageOffset >= len(cs.messageVec) && cs.messageOffset > 0 {
		cs.messageOffset = len(cs.messageVec) - 1
	}
	cs.updateOldest()
}

// resortMessage восстанавливает позицию сообщения после изменения его полей.
func (cs *chatState) resortMessage(msgID string) {
	for i, id := range cs.messageVec {
		if id == msgID {
			cs.messageVec = append(cs.messageVec[:i], cs.messageVec[i+1:]...)
			break
		}
	}
	msg := cs.messages[msgID]
	idx := sort.Search(len(cs.messageVec), func(i int) bool {
		return !messageLess(cs.messages[cs.messageVec[i]], msg)
	})
	cs.messageVec = append(cs.messageVec, "")
	copy(cs.messageVec[idx+1:], cs.messageVec[idx:])
	cs.messageVec[idx] = msgID
	cs.updateOldest()
}

// updateOldest пересчитывает id самого старого известного неспонсорского
// сообщения — курсор для безграничной обратной пагинации.
func (cs *chatState) updateOldest() {
	cs.oldestMsgID = ""
	for i := len(cs.messageVec) - 1; i >= 0; i-- {
		msg := cs.messages[cs.messageVec[i]]
		if msg != nil && !msg.IsSponsored() {
			cs.oldestMsgID = msg.ID
			return
		}
	}
}
