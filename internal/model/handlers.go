// File handlers.go: применение сервисных сообщений бэкендов к состоянию.
//
// HandleServiceMessage вызывается из потоков бэкендов и кэша; каждое
// сообщение применяется атомарно под мьютексом модели до начала следующего.
// Сбой частной операции (промах кэша, неуспех запроса) логируется и
// пропускается best-effort: видимый симптом — недостающий кусок данных,
// но не падение.
package model

import (
	"nchat/internal/cache"
	"nchat/internal/infra/logger"
	"nchat/internal/protocol"
)

// HandleServiceMessage — вход шины уведомлений. Потокобезопасен.
func (m *Model) HandleServiceMessage(msg protocol.ServiceMessage) {
	m.With(func(g *Guard) {
		m.handleServiceMessage(g, msg)
	})
}

// handleServiceMessage — locked-диспетчер по вариантам таксономии.
func (m *Model) handleServiceMessage(g *Guard, msg protocol.ServiceMessage) {
	m.assertLocked(g)
	profileID := msg.Profile()

	switch ev := msg.(type) {
	case protocol.ConnectNotify:
		m.handleConnect(g, profileID, ev)
	case protocol.NewContactsNotify:
		m.handleNewContacts(g, profileID, ev)
	case protocol.NewChatsNotify:
		m.handleNewChats(g, profileID, ev)
	case protocol.NewMessagesNotify:
		m.handleNewMessages(g, profileID, ev)
	case protocol.SendMessageNotify:
		m.handleSendMessage(g, profileID, ev)
	case protocol.MarkMessageReadNotify:
		m.handleMarkMessageRead(g, profileID, ev)
	case protocol.DeleteMessageNotify:
		m.handleDeleteMessage(g, profileID, ev)
	case protocol.DeleteChatNotify:
		m.handleDeleteChat(g, profileID, ev)
	case protocol.SendTypingNotify:
		if !ev.Success {
			logger.Warnf("model: send typing failed %s/%s", profileID, ev.ChatID)
		}
	case protocol.SetStatusNotify:
		if !ev.Success {
			logger.Warnf("model: set status failed %s", profileID)
		}
	case protocol.CreateChatNotify:
		m.handleCreateChat(g, profileID, ev)
	case protocol.ReceiveTypingNotify:
		m.handleReceiveTyping(g, profileID, ev)
	case protocol.ReceiveStatusNotify:
		m.handleReceiveStatus(g, profileID, ev)
	case protocol.NewMessageStatusNotify:
		m.handleNewMessageStatus(g, profileID, ev)
	case protocol.NewMessageFileNotify:
		m.handleNewMessageFile(g, profileID, ev)
	case protocol.UpdateMuteNotify:
		m.handleUpdateMute(g, profileID, ev)
	case protocol.UpdatePinNotify:
		m.handleUpdatePin(g, profileID, ev)
	case protocol.NewMessageReactionsNotify:
		m.handleNewMessageReactions(g, profileID, ev)
	case protocol.AvailableReactionsNotify:
		m.handleAvailableReactions(g, profileID, ev)
	case protocol.FindMessageNotify:
		m.handleFindMessage(g, profileID, ev)
	case protocol.ProtocolUiControlNotify:
		m.handleUiControl(g, profileID, ev)
	case protocol.RequestAppExitNotify:
		logger.Infof("model: app exit requested by %s", profileID)
		m.Quit()
	default:
		logger.Warnf("model: unhandled service message %T from %s", msg, profileID)
	}
}

func (m *Model) handleConnect(g *Guard, profileID string, ev protocol.ConnectNotify) {
	ps := m.profileState(profileID)
	if ps == nil {
		return
	}
	if !ev.Success {
		logger.Warnf("model: connect failed %s", profileID)
		ps.connected = false
		m.MarkDirty(DirtyStatus)
		return
	}
	ps.connected = true
	ps.connectTime = m.now().UnixMilli()

	// Бэкенды без автопуша получают явные запросы списков.
	if !ps.proto.HasFeature(protocol.FeatureAutoGetChatsOnLogin) {
		m.sendRequest(profileID, protocol.GetChatsRequest{})
	}
	if !ps.proto.HasFeature(protocol.FeatureAutoGetContactsOnLogin) {
		m.sendRequest(profileID, protocol.GetContactsRequest{})
	}
	m.MarkDirty(DirtyStatus | DirtyTop)
}

func (m *Model) handleNewContacts(g *Guard, profileID string, ev protocol.NewContactsNotify) {
	ps := m.profileState(profileID)
	if ps == nil {
		return
	}
	if ev.FullSync {
		ps.contacts = make(map[string]protocol.ContactInfo, len(ev.ContactInfos))
	}
	for _, ci := range ev.ContactInfos {
		ps.contacts[ci.ID] = ci
	}
	if m.cacheUsable() {
		m.store.AddContacts(profileID, ev.ContactInfos)
	}
	m.MarkDirty(DirtyChats)
}

func (m *Model) handleNewChats(g *Guard, profileID string, ev protocol.NewChatsNotify) {
	if !ev.Success {
		logger.Warnf("model: get chats failed %s", profileID)
		return
	}
	for _, info := range ev.ChatInfos {
		key := ChatKey{ProfileID: profileID, ChatID: info.ID}
		cs := m.ensureChat(key)
		if cs == nil {
			continue
		}
		// Производный lastMessageTime не затираем пустым значением бэкенда.
		last := cs.info.LastMessageTime
		cs.info = info
		if info.LastMessageTime < last {
			cs.info.LastMessageTime = last
		}
		m.ensureChatListed(key)
	}
	if m.cacheUsable() {
		m.store.AddChats(profileID, ev.ChatInfos)
	}
	m.sortChats(g)
}

func (m *Model) handleNewMessages(g *Guard, profileID string, ev protocol.NewMessagesNotify) {
	if !ev.Success {
		logger.Warnf("model: get messages failed %s/%s", profileID, ev.ChatID)
		m.onMessagesBatch(g, ChatKey{ProfileID: profileID, ChatID: ev.ChatID}, ev.FromMsgID, 0, ev.Cached)
		return
	}
	key := ChatKey{ProfileID: profileID, ChatID: ev.ChatID}
	cs := m.ensureChat(key)
	ps := m.profileState(profileID)
	if cs == nil || ps == nil {
		return
	}
	m.ensureChatListed(key)

	var persist []protocol.ChatMessage
	for _, incoming := range ev.ChatMessages {
		existing := cs.messages[incoming.ID]
		if ev.Cached && existing != nil {
			// Живая версия уже в памяти: кэшированная копия не может ни
			// уменьшить timeSent, ни стереть реакции.
			continue
		}

		msg := incoming
		if msg.Reactions.NeedConsolidationWithCache {
			if existing != nil {
				msg.Reactions = cache.MergeReactions(existing.Reactions, msg.Reactions)
			} else {
				msg.Reactions = cache.MergeReactions(protocol.Reactions{}, msg.Reactions)
			}
		}

		// Эхо собственной отправки замещает временную запись.
		if !ev.Cached && msg.IsOutgoing && existing == nil && len(cs.tempMsgIDs) > 0 {
			tempID := cs.tempMsgIDs[0]
			cs.tempMsgIDs = cs.tempMsgIDs[1:]
			cs.removeMessage(tempID)
		}

		wasUnread := cs.info.IsUnread
		fresh := existing == nil
		cs.insertMessage(&msg)
		if !ev.Cached && !msg.IsSponsored() {
			persist = append(persist, msg)
		}

		// Уведомления: только свежие непрочитанные входящие из живого потока.
		if fresh && !ev.Cached && !msg.IsOutgoing && !msg.IsRead && !msg.IsSponsored() {
			m.maybeNotify(g, key, cs, msg, wasUnread)
		}

		// Автовыбор чата: до первого выбора пользователем свежая доставка
		// (после момента подключения) фокусирует чат-получатель.
		if !m.currentSet && !ev.Cached && ps.connectTime > 0 && msg.TimeSent >= ps.connectTime {
			m.current = key
			m.currentSet = true
			m.sendRequest(profileID, protocol.SetCurrentChatRequest{ChatID: key.ChatID})
		}
	}

	if m.cacheUsable() && len(persist) > 0 {
		m.store.AddMessages(profileID, ev.ChatID, persist)
	}

	m.onMessagesBatch(g, key, ev.FromMsgID, len(ev.ChatMessages), ev.Cached)
	m.recomputeChatMeta(cs)
	m.sortChats(g)

	if m.currentSet && m.current == key {
		m.markVisibleRead(g, key, false)
		m.MarkDirty(DirtyHistory)
	}
}

// maybeNotify решает, уведомлять ли о непрочитанном входящем.
func (m *Model) maybeNotify(g *Guard, key ChatKey, cs *chatState, msg protocol.ChatMessage, wasUnread bool) {
	if m.notifier == nil {
		return
	}
	if cs.info.IsMuted && !m.settings.UI.GetBool("muted_notify_unread") {
		return
	}
	if wasUnread && !m.settings.UI.GetBool("notify_every_unread") {
		return
	}
	senderName := msg.SenderID
	if ps := m.profileState(key.ProfileID); ps != nil {
		if ci, ok := ps.contacts[msg.SenderID]; ok && ci.Name != "" {
			senderName = ci.Name
		}
	}
	isCurrent := m.currentSet && m.current == key
	m.notifier.OnUnreadMessage(senderName, msg.Text, m.terminalActive, isCurrent)
}

func (m *Model) handleSendMessage(g *Guard, profileID string, ev protocol.SendMessageNotify) {
	if !ev.Success {
		logger.Warnf("model: send message failed %s/%s", profileID, ev.ChatID)
		return
	}
	key := ChatKey{ProfileID: profileID, ChatID: ev.ChatID}
	cs := m.ensureChat(key)
	if cs == nil {
		return
	}
	// Эхо отправки: временная запись уступает место подтверждённому id.
	if len(cs.tempMsgIDs) > 0 {
		tempID := cs.tempMsgIDs[0]
		cs.tempMsgIDs = cs.tempMsgIDs[1:]
		cs.removeMessage(tempID)
	}
	msg := ev.ChatMessage
	cs.insertMessage(&msg)
	if m.cacheUsable() && !msg.IsSponsored() {
		m.store.AddMessages(profileID, ev.ChatID, []protocol.ChatMessage{msg})
	}
	m.recomputeChatMeta(cs)
	m.sortChats(g)
	m.MarkDirty(DirtyHistory)
}

func (m *Model) handleMarkMessageRead(g *Guard, profileID string, ev protocol.MarkMessageReadNotify) {
	if !ev.Success {
		logger.Warnf("model: mark read failed %s/%s", profileID, ev.MsgID)
		return
	}
	key := ChatKey{ProfileID: profileID, ChatID: ev.ChatID}
	cs := m.chat(key)
	if cs == nil {
		return
	}
	if msg := cs.messages[ev.MsgID]; msg != nil {
		msg.IsRead = true
		if m.cacheUsable() {
			m.store.UpdateMessage(profileID, ev.ChatID, *msg)
		}
	}
	m.recomputeChatMeta(cs)
	m.sortChats(g)
}

func (m *Model) handleDeleteMessage(g *Guard, profileID string, ev protocol.DeleteMessageNotify) {
	if !ev.Success {
		logger.Warnf("model: delete message failed %s/%s", profileID, ev.MsgID)
		return
	}
	if ev.ChatID == "" {
		// Уведомление без чата: ищем сообщение по всем чатам профиля.
		if ps := m.profileState(profileID); ps != nil {
			for chatID, c := range ps.chats {
				if _, ok := c.messages[ev.MsgID]; ok {
					ev.ChatID = chatID
					break
				}
			}
		}
	}
	key := ChatKey{ProfileID: profileID, ChatID: ev.ChatID}
	cs := m.chat(key)
	if cs == nil {
		return
	}
	cs.removeMessage(ev.MsgID)
	if m.cacheUsable() {
		m.store.DeleteMessage(profileID, ev.ChatID, ev.MsgID)
	}
	m.recomputeChatMeta(cs)
	m.sortChats(g)
	m.MarkDirty(DirtyHistory)
}

func (m *Model) handleDeleteChat(g *Guard, profileID string, ev protocol.DeleteChatNotify) {
	if !ev.Success {
		logger.Warnf("model: delete chat failed %s/%s", profileID, ev.ChatID)
		return
	}
	key := ChatKey{ProfileID: profileID, ChatID: ev.ChatID}
	ps := m.profileState(profileID)
	if ps == nil {
		return
	}
	delete(ps.chats, ev.ChatID)
	m.removeChatListed(key)
	if m.cacheUsable() {
		m.store.DeleteChat(profileID, ev.ChatID)
	}
	if m.currentSet && m.current == key {
		m.currentSet = false
		m.mode = ModeDefault
	}
	m.MarkDirty(DirtyChats | DirtyHistory)
}

func (m *Model) handleCreateChat(g *Guard, profileID string, ev protocol.CreateChatNotify) {
	if !ev.Success {
		logger.Warnf("model: create chat failed %s", profileID)
		return
	}
	key := ChatKey{ProfileID: profileID, ChatID: ev.ChatInfo.ID}
	cs := m.ensureChat(key)
	if cs == nil {
		return
	}
	cs.info = ev.ChatInfo
	m.ensureChatListed(key)
	m.sortChats(g)
	// Созданный чат сразу становится текущим: пользователь начал диалог.
	m.current = key
	m.currentSet = true
	m.sendRequest(profileID, protocol.SetCurrentChatRequest{ChatID: key.ChatID})
	m.fetchHistoryIfNeeded(g, key, false)
	m.MarkDirty(DirtyAll)
}

func (m *Model) handleReceiveTyping(g *Guard, profileID string, ev protocol.ReceiveTypingNotify) {
	key := ChatKey{ProfileID: profileID, ChatID: ev.ChatID}
	cs := m.ensureChat(key)
	if cs == nil {
		return
	}
	if ev.IsTyping {
		cs.usersTyping[ev.UserID] = struct{}{}
	} else {
		delete(cs.usersTyping, ev.UserID)
	}
	m.MarkDirty(DirtyStatus)
}

func (m *Model) handleReceiveStatus(g *Guard, profileID string, ev protocol.ReceiveStatusNotify) {
	ps := m.profileState(profileID)
	if ps == nil {
		return
	}
	ps.userOnline[ev.UserID] = onlineStatus{isOnline: ev.IsOnline, timeSeen: ev.TimeSeen}
	m.MarkDirty(DirtyStatus)
}

func (m *Model) handleNewMessageStatus(g *Guard, profileID string, ev protocol.NewMessageStatusNotify) {
	key := ChatKey{ProfileID: profileID, ChatID: ev.ChatID}
	cs := m.chat(key)
	if cs == nil {
		return
	}
	msg := cs.messages[ev.MsgID]
	if msg == nil {
		return
	}
	msg.IsRead = ev.IsRead
	if m.cacheUsable() {
		m.store.UpdateMessage(profileID, ev.ChatID, *msg)
	}
	m.recomputeChatMeta(cs)
	m.sortChats(g)
	m.MarkDirty(DirtyHistory)
}

func (m *Model) handleNewMessageFile(g *Guard, profileID string, ev protocol.NewMessageFileNotify) {
	key := ChatKey{ProfileID: profileID, ChatID: ev.ChatID}
	cs := m.chat(key)
	if cs == nil {
		return
	}
	msg := cs.messages[ev.MsgID]
	if msg == nil {
		return
	}
	msg.FileInfo = ev.FileInfo
	if m.cacheUsable() {
		m.store.UpdateMessage(profileID, ev.ChatID, *msg)
	}
	// Действие после скачивания исполняется вне лока: ставим в очередь,
	// главный цикл заберёт её через DrainFileActions.
	if ev.Action != protocol.DownloadFileActionNone {
		fi := protocol.FileInfoFromHex(ev.FileInfo)
		if fi.FileStatus == protocol.FileStatusDownloaded && fi.FilePath != "" {
			m.fileActions = append(m.fileActions, FileAction{Path: fi.FilePath, Action: ev.Action})
		}
	}
	m.MarkDirty(DirtyHistory)
}

func (m *Model) handleUpdateMute(g *Guard, profileID string, ev protocol.UpdateMuteNotify) {
	if !ev.Success {
		return
	}
	key := ChatKey{ProfileID: profileID, ChatID: ev.ChatID}
	cs := m.ensureChat(key)
	if cs == nil {
		return
	}
	cs.info.IsMuted = ev.IsMuted
	m.sortChats(g)
}

func (m *Model) handleUpdatePin(g *Guard, profileID string, ev protocol.UpdatePinNotify) {
	if !ev.Success {
		return
	}
	key := ChatKey{ProfileID: profileID, ChatID: ev.ChatID}
	cs := m.ensureChat(key)
	if cs == nil {
		return
	}
	cs.info.IsPinned = ev.IsPinned
	cs.timePinned = ev.TimePinned
	m.ensureChatListed(key)
	m.recomputeChatMeta(cs)
	m.sortChats(g)
}

func (m *Model) handleNewMessageReactions(g *Guard, profileID string, ev protocol.NewMessageReactionsNotify) {
	key := ChatKey{ProfileID: profileID, ChatID: ev.ChatID}
	cs := m.chat(key)
	if cs == nil {
		return
	}
	msg := cs.messages[ev.MsgID]
	if msg == nil {
		return
	}
	msg.Reactions = cache.MergeReactions(msg.Reactions, ev.Reactions)
	if m.cacheUsable() {
		m.store.UpdateMessage(profileID, ev.ChatID, *msg)
	}
	m.MarkDirty(DirtyHistory)
}

func (m *Model) handleAvailableReactions(g *Guard, profileID string, ev protocol.AvailableReactionsNotify) {
	key := ChatKey{ProfileID: profileID, ChatID: ev.ChatID}
	cs := m.ensureChat(key)
	if cs == nil {
		return
	}
	cs.availableEmojis = ev.Emojis
	m.MarkDirty(DirtyStatus)
}

func (m *Model) handleFindMessage(g *Guard, profileID string, ev protocol.FindMessageNotify) {
	if !ev.Success {
		m.alertText = "Message not found"
		m.MarkDirty(DirtyStatus)
		return
	}
	key := ChatKey{ProfileID: profileID, ChatID: ev.ChatID}
	cs := m.chat(key)
	if cs == nil {
		return
	}
	for i, id := range cs.messageVec {
		if id == ev.MsgID {
			m.mode = ModeSelectMessage
			cs.messageOffset = i
			m.MarkDirty(DirtyHistory)
			return
		}
	}
}

func (m *Model) handleUiControl(g *Guard, profileID string, ev protocol.ProtocolUiControlNotify) {
	if ev.IsTakeControl {
		if !m.takeUiControl(g, profileID) {
			// Отказ: терминалом владеет другой профиль; владельца не трогаем.
			logger.Warnf("model: ui control denied for %s (held by %s)", profileID, m.uiControlOwner)
		}
		return
	}
	m.releaseUiControl(g, profileID)
}
