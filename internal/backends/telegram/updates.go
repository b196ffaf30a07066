// File updates.go: трансляция апдейтов Telegram в сервисные сообщения ядра.
// Entities каждого апдейта пополняют локальный peer-кэш, чтобы последующие
// запросы ядра разрешались без RPC.
package telegram

import (
	"context"
	"strconv"

	"github.com/gotd/td/tg"

	"nchat/internal/protocol"
)

// registerUpdateHandlers подписывает обработчики на диспетчер gotd.
func (b *Backend) registerUpdateHandlers() {
	b.dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		b.peerCache.collectEntities(e)
		b.onNewMessage(u.Message)
		return nil
	})
	b.dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		b.peerCache.collectEntities(e)
		b.onNewMessage(u.Message)
		return nil
	})
	b.dispatcher.OnEditMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditMessage) error {
		b.peerCache.collectEntities(e)
		b.onNewMessage(u.Message)
		return nil
	})
	b.dispatcher.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
		b.peerCache.collectEntities(e)
		b.onNewMessage(u.Message)
		return nil
	})
	b.dispatcher.OnDeleteMessages(func(ctx context.Context, e tg.Entities, u *tg.UpdateDeleteMessages) error {
		for _, id := range u.Messages {
			// Апдейт не несёт peer: ядро сопоставит id по своим индексам.
			b.notify(protocol.DeleteMessageNotify{
				ServiceBase: protocol.ServiceBase{ProfileID: b.profileID},
				Success:     true,
				MsgID:       strconv.Itoa(id),
			})
		}
		return nil
	})
	b.dispatcher.OnUserTyping(func(ctx context.Context, e tg.Entities, u *tg.UpdateUserTyping) error {
		_, isTyping := u.Action.(*tg.SendMessageTypingAction)
		b.notify(protocol.ReceiveTypingNotify{
			ServiceBase: protocol.ServiceBase{ProfileID: b.profileID},
			ChatID:      strconv.FormatInt(u.UserID, 10),
			UserID:      strconv.FormatInt(u.UserID, 10),
			IsTyping:    isTyping,
		})
		return nil
	})
	b.dispatcher.OnChatUserTyping(func(ctx context.Context, e tg.Entities, u *tg.UpdateChatUserTyping) error {
		_, isTyping := u.Action.(*tg.SendMessageTypingAction)
		userID := ""
		if from, ok := u.FromID.(*tg.PeerUser); ok {
			userID = strconv.FormatInt(from.UserID, 10)
		}
		b.notify(protocol.ReceiveTypingNotify{
			ServiceBase: protocol.ServiceBase{ProfileID: b.profileID},
			ChatID:      peerKey(&tg.PeerChat{ChatID: u.ChatID}),
			UserID:      userID,
			IsTyping:    isTyping,
		})
		return nil
	})
	b.dispatcher.OnUserStatus(func(ctx context.Context, e tg.Entities, u *tg.UpdateUserStatus) error {
		isOnline := false
		timeSeen := protocol.TimeSeenNone
		switch u.Status.(type) {
		case *tg.UserStatusOnline:
			isOnline = true
		case *tg.UserStatusLastWeek:
			timeSeen = protocol.TimeSeenLastWeek
		case *tg.UserStatusLastMonth:
			timeSeen = protocol.TimeSeenLastMonth
		}
		b.notify(protocol.ReceiveStatusNotify{
			ServiceBase: protocol.ServiceBase{ProfileID: b.profileID},
			UserID:      strconv.FormatInt(u.UserID, 10),
			IsOnline:    isOnline,
			TimeSeen:    timeSeen,
		})
		return nil
	})
	b.dispatcher.OnReadHistoryOutbox(func(ctx context.Context, e tg.Entities, u *tg.UpdateReadHistoryOutbox) error {
		b.notify(protocol.NewMessageStatusNotify{
			ServiceBase: protocol.ServiceBase{ProfileID: b.profileID},
			ChatID:      peerKey(u.Peer),
			MsgID:       strconv.Itoa(u.MaxID),
			IsRead:      true,
		})
		return nil
	})
	b.dispatcher.OnDialogPinned(func(ctx context.Context, e tg.Entities, u *tg.UpdateDialogPinned) error {
		if dp, ok := u.Peer.(*tg.DialogPeer); ok {
			b.notify(protocol.UpdatePinNotify{
				ServiceBase: protocol.ServiceBase{ProfileID: b.profileID},
				Success:     true,
				ChatID:      peerKey(dp.Peer),
				IsPinned:    u.Pinned,
			})
		}
		return nil
	})
}

// onNewMessage транслирует новое/изменённое сообщение как пачку из одного
// элемента.
func (b *Backend) onNewMessage(mc tg.MessageClass) {
	cm, ok := b.mapMessage(mc)
	if !ok {
		return
	}
	chatID := ""
	if msg, isMsg := mc.(*tg.Message); isMsg {
		chatID = peerKey(msg.PeerID)
	}
	if chatID == "" {
		return
	}
	b.notify(protocol.NewMessagesNotify{
		ServiceBase:  protocol.ServiceBase{ProfileID: b.profileID},
		Success:      true,
		ChatID:       chatID,
		ChatMessages: []protocol.ChatMessage{cm},
	})
}

// mapMessage переводит tg.Message в ChatMessage ядра. Служебные сообщения
// (вступления в группу и т.п.) пропускаются.
func (b *Backend) mapMessage(mc tg.MessageClass) (protocol.ChatMessage, bool) {
	msg, ok := mc.(*tg.Message)
	if !ok {
		return protocol.ChatMessage{}, false
	}

	senderID := ""
	if from, isUser := msg.FromID.(*tg.PeerUser); isUser {
		senderID = strconv.FormatInt(from.UserID, 10)
	} else if msg.Out {
		senderID = b.SelfID()
	} else {
		senderID = peerKey(msg.PeerID)
	}

	cm := protocol.ChatMessage{
		ID:         strconv.Itoa(msg.ID),
		SenderID:   senderID,
		Text:       msg.Message,
		TimeSent:   int64(msg.Date) * 1000,
		IsOutgoing: msg.Out,
		IsRead:     msg.Out || !isUnread(msg),
	}
	if reply, isReply := msg.ReplyTo.(*tg.MessageReplyHeader); isReply {
		cm.QuotedID = strconv.Itoa(reply.ReplyToMsgID)
	}
	if doc := documentFileInfo(msg.Media); doc != nil {
		cm.FileInfo = protocol.FileInfoToHex(*doc)
	}
	if len(msg.Reactions.Results) > 0 {
		counts := make(map[string]int, len(msg.Reactions.Results))
		for _, rc := range msg.Reactions.Results {
			if emoji, isEmoji := rc.Reaction.(*tg.ReactionEmoji); isEmoji {
				counts[emoji.Emoticon] = rc.Count
			}
		}
		cm.Reactions = protocol.Reactions{EmojiCounts: counts, ReplaceCount: true}
	}
	return cm, true
}

// isUnread оценивает непрочитанность входящего: точная отметка приходит
// отдельными апдейтами, здесь достаточно консервативного значения.
func isUnread(msg *tg.Message) bool {
	return !msg.Out && msg.MediaUnread
}

// documentFileInfo извлекает сведения о вложении, если оно есть.
func documentFileInfo(media tg.MessageMediaClass) *protocol.FileInfo {
	doc, ok := media.(*tg.MessageMediaDocument)
	if !ok {
		return nil
	}
	d, ok := doc.Document.(*tg.Document)
	if !ok {
		return nil
	}
	return &protocol.FileInfo{
		FileStatus: protocol.FileStatusNotDownloaded,
		FileID:     strconv.FormatInt(d.ID, 10),
		FileType:   d.MimeType,
	}
}
