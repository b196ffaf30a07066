// File peercache.go: локальный кэш InputPeer для быстрого разрешения
// адресатов без лишних RPC. Источники — списки users/chats из ответов API и
// entities апдейтов. Access hash обязателен для пользователей и каналов;
// обычные группы обходятся без него.
package telegram

import (
	"strconv"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
)

// peerCache хранит разрешённые InputPeer по видам. Потокобезопасен.
type peerCache struct {
	mu       sync.RWMutex
	users    map[int64]*tg.InputPeerUser
	chats    map[int64]*tg.InputPeerChat
	channels map[int64]*tg.InputPeerChannel
}

func (c *peerCache) init() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = make(map[int64]*tg.InputPeerUser)
	c.chats = make(map[int64]*tg.InputPeerChat)
	c.channels = make(map[int64]*tg.InputPeerChannel)
}

// collectUsers заполняет кэш из списка пользователей API-ответа.
func (c *peerCache) collectUsers(users []tg.UserClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, uc := range users {
		if u, ok := uc.(*tg.User); ok {
			c.users[u.ID] = &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}
		}
	}
}

// collectChats заполняет кэш из списка чатов/каналов API-ответа.
func (c *peerCache) collectChats(chats []tg.ChatClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cc := range chats {
		switch ch := cc.(type) {
		case *tg.Chat:
			c.chats[ch.ID] = &tg.InputPeerChat{ChatID: ch.ID}
		case *tg.Channel:
			c.channels[ch.ID] = &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
		}
	}
}

// collectEntities заполняет кэш из entities апдейта.
func (c *peerCache) collectEntities(e tg.Entities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, u := range e.Users {
		c.users[id] = &tg.InputPeerUser{UserID: id, AccessHash: u.AccessHash}
	}
	for id := range e.Chats {
		c.chats[id] = &tg.InputPeerChat{ChatID: id}
	}
	for id, ch := range e.Channels {
		c.channels[id] = &tg.InputPeerChannel{ChannelID: id, AccessHash: ch.AccessHash}
	}
}

// inputPeer разрешает строковый идентификатор чата ядра в InputPeer.
// Формат идентификаторов: "<id>" — пользователь, "-<id>" — группа,
// "-100<id>" — канал.
func (c *peerCache) inputPeer(chatID string) (tg.InputPeerClass, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case strings.HasPrefix(chatID, "-100"):
		id, err := strconv.ParseInt(chatID[4:], 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "parse channel id")
		}
		if p, ok := c.channels[id]; ok {
			return p, nil
		}
		return nil, errors.Errorf("unknown channel %d", id)
	case strings.HasPrefix(chatID, "-"):
		id, err := strconv.ParseInt(chatID[1:], 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "parse chat id")
		}
		if p, ok := c.chats[id]; ok {
			return p, nil
		}
		return nil, errors.Errorf("unknown chat %d", id)
	default:
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "parse user id")
		}
		if p, ok := c.users[id]; ok {
			return p, nil
		}
		return nil, errors.Errorf("unknown user %d", id)
	}
}
