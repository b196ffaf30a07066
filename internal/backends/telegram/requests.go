// File requests.go: горутина-диспетчер запросов ядра.
//
// Запросы исполняются последовательно в порядке постановки — тем самым
// MarkMessageRead и SendMessage по одному чату сохраняют порядок выдачи.
// Ошибки RPC транслируются как success=false в соответствующем сервисном
// сообщении; состояние ядра при этом не меняется.
package telegram

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"strconv"

	"github.com/gotd/td/tg"

	"nchat/internal/infra/logger"
	"nchat/internal/protocol"
)

// dispatchRequests — цикл диспетчера; живёт, пока жив контекст клиента.
func (b *Backend) dispatchRequests(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-b.requests:
			b.handleRequest(ctx, req)
		}
	}
}

// handleRequest исполняет один запрос ядра.
func (b *Backend) handleRequest(ctx context.Context, req protocol.Request) {
	base := protocol.ServiceBase{ProfileID: b.profileID}
	switch r := req.(type) {
	case protocol.GetContactsRequest:
		b.getContacts(ctx)
	case protocol.GetChatsRequest:
		b.fetchDialogs(ctx)
	case protocol.GetMessagesRequest:
		b.getMessages(ctx, r)
	case protocol.GetMessageRequest:
		b.getMessages(ctx, protocol.GetMessagesRequest{
			ChatID: r.ChatID, FromMsgID: "", Limit: 1,
		})
	case protocol.SendMessageRequest:
		b.sendMessage(ctx, r)
	case protocol.EditMessageRequest:
		b.editMessage(ctx, r)
	case protocol.MarkMessageReadRequest:
		b.markMessageRead(ctx, r)
	case protocol.DeleteMessageRequest:
		b.deleteMessage(ctx, r)
	case protocol.DeleteChatRequest:
		b.deleteChat(ctx, r)
	case protocol.SendTypingRequest:
		b.sendTyping(ctx, r)
	case protocol.SetStatusRequest:
		_, err := b.api.AccountUpdateStatus(ctx, !r.IsOnline)
		b.notify(protocol.SetStatusNotify{ServiceBase: base, Success: err == nil, IsOnline: r.IsOnline})
	case protocol.CreateChatRequest:
		// 1:1 чаты в Telegram неявные: чат с пользователем — его же id.
		b.notify(protocol.CreateChatNotify{
			ServiceBase: base,
			Success:     true,
			ChatInfo:    protocol.ChatInfo{ID: r.UserID},
		})
	case protocol.SetCurrentChatRequest:
		// Telegram не требует уведомлять сервер о текущем чате.
	case protocol.SendReactionRequest:
		b.sendReaction(ctx, r)
	case protocol.GetAvailableReactionsRequest:
		b.getAvailableReactions(ctx, r)
	case protocol.FindMessageRequest:
		b.findMessage(ctx, r)
	case protocol.ReinitRequest:
		b.fetchDialogs(ctx)
	case protocol.DeferNotifyRequest:
		// Отложенная доставка в порядке очереди бэкенда.
		b.notify(r.ServiceMessage)
	default:
		logger.Debugf("telegram: unsupported request %T", req)
	}
}

// getContacts запрашивает полный список контактов.
func (b *Backend) getContacts(ctx context.Context) {
	res, err := b.api.ContactsGetContacts(ctx, 0)
	if err != nil {
		logger.Errorf("telegram: get contacts: %v", err)
		return
	}
	contacts, ok := res.(*tg.ContactsContacts)
	if !ok {
		return
	}
	b.peerCache.collectUsers(contacts.Users)
	b.notify(protocol.NewContactsNotify{
		ServiceBase:  protocol.ServiceBase{ProfileID: b.profileID},
		FullSync:     true,
		ContactInfos: mapUsers(contacts.Users, b.selfID),
	})
}

// getMessages запрашивает страницу истории чата (messages.getHistory).
func (b *Backend) getMessages(ctx context.Context, r protocol.GetMessagesRequest) {
	base := protocol.ServiceBase{ProfileID: b.profileID}
	fail := func(err error) {
		logger.Errorf("telegram: get messages %s: %v", r.ChatID, err)
		b.notify(protocol.NewMessagesNotify{
			ServiceBase: base, Success: false, ChatID: r.ChatID, FromMsgID: r.FromMsgID,
		})
	}

	peer, err := b.peerCache.inputPeer(r.ChatID)
	if err != nil {
		fail(err)
		return
	}
	offsetID := 0
	if r.FromMsgID != "" {
		if v, convErr := strconv.Atoi(r.FromMsgID); convErr == nil {
			offsetID = v
		}
	}
	res, err := b.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     peer,
		OffsetID: offsetID,
		Limit:    int(r.Limit),
	})
	if err != nil {
		fail(err)
		return
	}

	var raw []tg.MessageClass
	switch msgs := res.(type) {
	case *tg.MessagesMessages:
		b.peerCache.collectUsers(msgs.Users)
		b.peerCache.collectChats(msgs.Chats)
		raw = msgs.Messages
	case *tg.MessagesMessagesSlice:
		b.peerCache.collectUsers(msgs.Users)
		b.peerCache.collectChats(msgs.Chats)
		raw = msgs.Messages
	case *tg.MessagesChannelMessages:
		b.peerCache.collectUsers(msgs.Users)
		b.peerCache.collectChats(msgs.Chats)
		raw = msgs.Messages
	}

	out := make([]protocol.ChatMessage, 0, len(raw))
	for _, mc := range raw {
		if cm, ok := b.mapMessage(mc); ok {
			out = append(out, cm)
		}
	}
	b.notify(protocol.NewMessagesNotify{
		ServiceBase:  base,
		Success:      true,
		ChatID:       r.ChatID,
		ChatMessages: out,
		FromMsgID:    r.FromMsgID,
	})
}

// sendMessage отправляет текстовое сообщение и транслирует эхо.
func (b *Backend) sendMessage(ctx context.Context, r protocol.SendMessageRequest) {
	base := protocol.ServiceBase{ProfileID: b.profileID}
	peer, err := b.peerCache.inputPeer(r.ChatID)
	if err != nil {
		logger.Errorf("telegram: send message %s: %v", r.ChatID, err)
		b.notify(protocol.SendMessageNotify{ServiceBase: base, Success: false, ChatID: r.ChatID})
		return
	}
	res, err := b.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  r.ChatMessage.Text,
		RandomID: randomID(),
	})
	if err != nil {
		logger.Errorf("telegram: send message %s: %v", r.ChatID, err)
		b.notify(protocol.SendMessageNotify{ServiceBase: base, Success: false, ChatID: r.ChatID})
		return
	}

	echo := r.ChatMessage
	echo.SenderID = b.SelfID()
	echo.IsOutgoing = true
	echo.IsRead = true
	if sent, ok := res.(*tg.UpdateShortSentMessage); ok {
		echo.ID = strconv.Itoa(sent.ID)
		echo.TimeSent = int64(sent.Date) * 1000
	}
	b.notify(protocol.SendMessageNotify{
		ServiceBase: base,
		Success:     true,
		ChatID:      r.ChatID,
		ChatMessage: echo,
	})
}

// editMessage заменяет текст сообщения.
func (b *Backend) editMessage(ctx context.Context, r protocol.EditMessageRequest) {
	peer, err := b.peerCache.inputPeer(r.ChatID)
	if err != nil {
		logger.Errorf("telegram: edit message %s: %v", r.ChatID, err)
		return
	}
	msgID, _ := strconv.Atoi(r.MsgID)
	if _, err := b.api.MessagesEditMessage(ctx, &tg.MessagesEditMessageRequest{
		Peer:    peer,
		ID:      msgID,
		Message: r.ChatMessage.Text,
	}); err != nil {
		logger.Errorf("telegram: edit message %s/%s: %v", r.ChatID, r.MsgID, err)
	}
}

// markMessageRead помечает историю прочитанной до msgID: для пользователей и
// групп — messages.readHistory, для каналов — channels.readHistory.
func (b *Backend) markMessageRead(ctx context.Context, r protocol.MarkMessageReadRequest) {
	base := protocol.ServiceBase{ProfileID: b.profileID}
	peer, err := b.peerCache.inputPeer(r.ChatID)
	if err != nil {
		logger.Errorf("telegram: mark read %s: %v", r.ChatID, err)
		b.notify(protocol.MarkMessageReadNotify{
			ServiceBase: base, Success: false, ChatID: r.ChatID, MsgID: r.MsgID,
		})
		return
	}
	maxID, _ := strconv.Atoi(r.MsgID)

	switch p := peer.(type) {
	case *tg.InputPeerChannel:
		_, err = b.api.ChannelsReadHistory(ctx, &tg.ChannelsReadHistoryRequest{
			Channel: &tg.InputChannel{ChannelID: p.ChannelID, AccessHash: p.AccessHash},
			MaxID:   maxID,
		})
	default:
		_, err = b.api.MessagesReadHistory(ctx, &tg.MessagesReadHistoryRequest{
			Peer:  peer,
			MaxID: maxID,
		})
	}
	if err != nil {
		logger.Errorf("telegram: mark read %s/%s: %v", r.ChatID, r.MsgID, err)
	}
	b.notify(protocol.MarkMessageReadNotify{
		ServiceBase: base, Success: err == nil, ChatID: r.ChatID, MsgID: r.MsgID,
	})
}

// deleteMessage удаляет сообщение у обеих сторон.
func (b *Backend) deleteMessage(ctx context.Context, r protocol.DeleteMessageRequest) {
	base := protocol.ServiceBase{ProfileID: b.profileID}
	msgID, _ := strconv.Atoi(r.MsgID)
	_, err := b.api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
		Revoke: true,
		ID:     []int{msgID},
	})
	if err != nil {
		logger.Errorf("telegram: delete message %s: %v", r.MsgID, err)
	}
	b.notify(protocol.DeleteMessageNotify{
		ServiceBase: base, Success: err == nil, ChatID: r.ChatID, MsgID: r.MsgID,
	})
}

// deleteChat удаляет историю диалога.
func (b *Backend) deleteChat(ctx context.Context, r protocol.DeleteChatRequest) {
	base := protocol.ServiceBase{ProfileID: b.profileID}
	peer, err := b.peerCache.inputPeer(r.ChatID)
	if err == nil {
		_, err = b.api.MessagesDeleteHistory(ctx, &tg.MessagesDeleteHistoryRequest{
			Peer:   peer,
			Revoke: true,
		})
	}
	if err != nil {
		logger.Errorf("telegram: delete chat %s: %v", r.ChatID, err)
	}
	b.notify(protocol.DeleteChatNotify{
		ServiceBase: base, Success: err == nil, ChatID: r.ChatID,
	})
}

// sendTyping транслирует статус набора.
func (b *Backend) sendTyping(ctx context.Context, r protocol.SendTypingRequest) {
	base := protocol.ServiceBase{ProfileID: b.profileID}
	peer, err := b.peerCache.inputPeer(r.ChatID)
	if err != nil {
		b.notify(protocol.SendTypingNotify{
			ServiceBase: base, Success: false, ChatID: r.ChatID, IsTyping: r.IsTyping,
		})
		return
	}
	var action tg.SendMessageActionClass = &tg.SendMessageTypingAction{}
	if !r.IsTyping {
		action = &tg.SendMessageCancelAction{}
	}
	_, err = b.api.MessagesSetTyping(ctx, &tg.MessagesSetTypingRequest{
		Peer:   peer,
		Action: action,
	})
	b.notify(protocol.SendTypingNotify{
		ServiceBase: base, Success: err == nil, ChatID: r.ChatID, IsTyping: r.IsTyping,
	})
}

// sendReaction ставит или снимает реакцию.
func (b *Backend) sendReaction(ctx context.Context, r protocol.SendReactionRequest) {
	peer, err := b.peerCache.inputPeer(r.ChatID)
	if err != nil {
		logger.Errorf("telegram: send reaction %s: %v", r.ChatID, err)
		return
	}
	msgID, _ := strconv.Atoi(r.MsgID)
	var reactions []tg.ReactionClass
	if r.Emoji != "" {
		reactions = append(reactions, &tg.ReactionEmoji{Emoticon: r.Emoji})
	}
	if _, err := b.api.MessagesSendReaction(ctx, &tg.MessagesSendReactionRequest{
		Peer:     peer,
		MsgID:    msgID,
		Reaction: reactions,
	}); err != nil {
		logger.Errorf("telegram: send reaction %s/%s: %v", r.ChatID, r.MsgID, err)
	}
}

// getAvailableReactions возвращает допустимые реакции чата.
func (b *Backend) getAvailableReactions(ctx context.Context, r protocol.GetAvailableReactionsRequest) {
	res, err := b.api.MessagesGetAvailableReactions(ctx, 0)
	if err != nil {
		logger.Errorf("telegram: get available reactions: %v", err)
		return
	}
	emojis := make(map[string]struct{})
	if avail, ok := res.(*tg.MessagesAvailableReactions); ok {
		for _, reaction := range avail.Reactions {
			if !reaction.Inactive {
				emojis[reaction.Reaction] = struct{}{}
			}
		}
	}
	b.notify(protocol.AvailableReactionsNotify{
		ServiceBase: protocol.ServiceBase{ProfileID: b.profileID},
		ChatID:      r.ChatID,
		MsgID:       r.MsgID,
		Emojis:      emojis,
	})
}

// findMessage ищет сообщение по тексту (messages.search).
func (b *Backend) findMessage(ctx context.Context, r protocol.FindMessageRequest) {
	base := protocol.ServiceBase{ProfileID: b.profileID}
	fail := func(err error) {
		logger.Errorf("telegram: find message %s: %v", r.ChatID, err)
		b.notify(protocol.FindMessageNotify{ServiceBase: base, Success: false, ChatID: r.ChatID})
	}

	if r.FindMsgID != "" {
		// Известный id: поиск не нужен.
		b.notify(protocol.FindMessageNotify{
			ServiceBase: base, Success: true, ChatID: r.ChatID, MsgID: r.FindMsgID,
		})
		return
	}

	peer, err := b.peerCache.inputPeer(r.ChatID)
	if err != nil {
		fail(err)
		return
	}
	res, err := b.api.MessagesSearch(ctx, &tg.MessagesSearchRequest{
		Peer:   peer,
		Q:      r.FindText,
		Filter: &tg.InputMessagesFilterEmpty{},
		Limit:  1,
	})
	if err != nil {
		fail(err)
		return
	}

	var raw []tg.MessageClass
	switch msgs := res.(type) {
	case *tg.MessagesMessages:
		raw = msgs.Messages
	case *tg.MessagesMessagesSlice:
		raw = msgs.Messages
	case *tg.MessagesChannelMessages:
		raw = msgs.Messages
	}
	for _, mc := range raw {
		if msg, ok := mc.(*tg.Message); ok {
			b.notify(protocol.FindMessageNotify{
				ServiceBase: base, Success: true, ChatID: r.ChatID, MsgID: strconv.Itoa(msg.ID),
			})
			return
		}
	}
	b.notify(protocol.FindMessageNotify{ServiceBase: base, Success: false, ChatID: r.ChatID})
}

// randomID генерирует случайный идентификатор отправки MTProto.
func randomID() int64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return int64(binary.LittleEndian.Uint64(buf[:]))
}
