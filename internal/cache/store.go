// Package cache — долговременное per-profile хранилище контактов, чатов и
// сообщений поверх bbolt. Вся работа с базой идёт через одну фоновую
// горутину-воркер: публичные методы только ставят операции в очередь, а
// fetch-операции отвечают сервисными сообщениями (cached=true) через общий
// MessageHandler — тем же каналом, что и живые события бэкендов.
//
// Записи сообщений буферизуются и сбрасываются пачками по порогу количества
// либо по таймеру, чтобы поток входящей истории не превращался в поток
// одиночных транзакций.
package cache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"nchat/internal/infra/logger"
	"nchat/internal/protocol"
)

const (
	bucketContacts = "contacts"
	bucketChats    = "chats"
	bucketMessages = "messages" // вложенные бакеты по chatID
	bucketMsgIndex = "msgindex" // вложенные бакеты по chatID: msgID -> ключ сообщения

	dbOpenTimeout             = time.Second
	dbFileMode    os.FileMode = 0o600

	// Порог сброса пачки и максимальный возраст буфера.
	flushMaxPending = 32
	flushInterval   = time.Second
)

// cachedMessage — сериализованная форма ChatMessage. Флаги консолидации
// реакций не персистируются: они описывают транзитное состояние.
type cachedMessage struct {
	ID           string            `json:"id"`
	SenderID     string            `json:"senderId"`
	Text         string            `json:"text"`
	QuotedID     string            `json:"quotedId,omitempty"`
	QuotedText   string            `json:"quotedText,omitempty"`
	QuotedSender string            `json:"quotedSender,omitempty"`
	FileInfo     string            `json:"fileInfo,omitempty"`
	SenderEmojis map[string]string `json:"senderEmojis,omitempty"`
	EmojiCounts  map[string]int    `json:"emojiCounts,omitempty"`
	TimeSent     int64             `json:"timeSent"`
	IsOutgoing   bool              `json:"isOutgoing"`
	IsRead       bool              `json:"isRead"`
}

func toCached(m protocol.ChatMessage) cachedMessage {
	return cachedMessage{
		ID:           m.ID,
		SenderID:     m.SenderID,
		Text:         m.Text,
		QuotedID:     m.QuotedID,
		QuotedText:   m.QuotedText,
		QuotedSender: m.QuotedSender,
		FileInfo:     m.FileInfo,
		SenderEmojis: m.Reactions.SenderEmojis,
		EmojiCounts:  m.Reactions.EmojiCounts,
		TimeSent:     m.TimeSent,
		IsOutgoing:   m.IsOutgoing,
		IsRead:       m.IsRead,
	}
}

func fromCached(c cachedMessage) protocol.ChatMessage {
	return protocol.ChatMessage{
		ID:           c.ID,
		SenderID:     c.SenderID,
		Text:         c.Text,
		QuotedID:     c.QuotedID,
		QuotedText:   c.QuotedText,
		QuotedSender: c.QuotedSender,
		FileInfo:     c.FileInfo,
		Reactions: protocol.Reactions{
			SenderEmojis: c.SenderEmojis,
			EmojiCounts:  c.EmojiCounts,
		},
		TimeSent:   c.TimeSent,
		IsOutgoing: c.IsOutgoing,
		IsRead:     c.IsRead,
	}
}

// msgKey строит ключ сообщения: big-endian (MaxInt64 - timeSent) ++ msgID.
// Прямой обход бакета даёт порядок по убыванию времени; msgID в хвосте
// разрешает коллизии одинаковых таймстампов.
func msgKey(timeSent int64, msgID string) []byte {
	key := make([]byte, 8+len(msgID))
	binary.BigEndian.PutUint64(key[:8], uint64(math.MaxInt64-timeSent))
	copy(key[8:], msgID)
	return key
}

// profileDB — открытая база одного профиля плюс буфер несброшенных сообщений.
type profileDB struct {
	db      *bbolt.DB
	pending map[string][]protocol.ChatMessage // chatID -> буфер добавлений
	npend   int
	dirtyAt time.Time
}

// Store — асинхронное хранилище всех профилей.
type Store struct {
	handler  protocol.MessageHandler
	readOnly bool

	mu       sync.Mutex
	profiles map[string]*profileDB

	// Очередь операций не ограничена по ёмкости: постановка никогда не
	// блокирует вызывающего (модель может держать свой мьютекс, пока воркер
	// доставляет ей уведомление — ограниченный канал дал бы взаимную
	// блокировку). wake будит воркер после постановки.
	opsMu  sync.Mutex
	opsQ   []func()
	wake   chan struct{}
	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

// NewStore создаёт хранилище и запускает воркер. handler получает ответы
// fetch-операций; readOnly запрещает мутации (cache_read_only).
func NewStore(handler protocol.MessageHandler, readOnly bool) *Store {
	s := &Store{
		handler:  handler,
		readOnly: readOnly,
		profiles: make(map[string]*profileDB),
		wake:     make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	s.wg.Go(s.run)
	return s
}

// run — цикл воркера: исполняет операции и по таймеру сбрасывает буферы.
func (s *Store) run() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		for _, op := range s.takeOps() {
			op()
		}
		select {
		case <-s.closed:
			// Дорабатываем хвост очереди перед выходом.
			for _, op := range s.takeOps() {
				op()
			}
			s.flushAll(true)
			return
		case <-s.wake:
		case <-ticker.C:
			s.flushAll(false)
		}
	}
}

// takeOps забирает накопленную очередь целиком.
func (s *Store) takeOps() []func() {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()
	ops := s.opsQ
	s.opsQ = nil
	return ops
}

// post ставит операцию в очередь воркера; после Close операции отбрасываются.
// Никогда не блокирует.
func (s *Store) post(op func()) {
	select {
	case <-s.closed:
		return
	default:
	}
	s.opsMu.Lock()
	s.opsQ = append(s.opsQ, op)
	s.opsMu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Close сбрасывает буферы, закрывает все базы и останавливает воркер.
func (s *Store) Close() {
	s.once.Do(func() { close(s.closed) })
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.profiles {
		if err := p.db.Close(); err != nil {
			logger.Warnf("cache: close %s: %v", id, err)
		}
		delete(s.profiles, id)
	}
}

// AddProfile идемпотентно открывает (или создаёт) базу профиля указанной
// версии: cache-v<dbVersion>.db в каталоге профиля. Синхронная операция —
// вызывается на старте до запуска потока событий.
func (s *Store) AddProfile(profileDir string, profileID string, dbVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profileID]; ok {
		return nil
	}

	path := filepath.Join(profileDir, fmt.Sprintf("cache-v%d.db", dbVersion))
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("cache: ensure dir: %w", err)
	}
	db, err := bbolt.Open(path, dbFileMode, &bbolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return fmt.Errorf("cache: open db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketContacts, bucketChats, bucketMessages, bucketMsgIndex} {
			if _, bErr := tx.CreateBucketIfNotExists([]byte(name)); bErr != nil {
				return bErr
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("cache: init buckets: %w", err)
	}

	s.profiles[profileID] = &profileDB{
		db:      db,
		pending: make(map[string][]protocol.ChatMessage),
	}
	return nil
}

// profile возвращает открытую базу профиля (nil, если профиль не добавлен).
func (s *Store) profile(profileID string) *profileDB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[profileID]
}

// notify доставляет сервисное сообщение получателю, если handler установлен.
func (s *Store) notify(msg protocol.ServiceMessage) {
	if s.handler != nil {
		s.handler(msg)
	}
}

// AddContacts сохраняет контакты профиля.
func (s *Store) AddContacts(profileID string, contacts []protocol.ContactInfo) {
	if s.readOnly {
		return
	}
	s.post(func() {
		p := s.profile(profileID)
		if p == nil {
			return
		}
		err := p.db.Update(func(tx *bbolt.Tx) error {
			b := tx.Bucket([]byte(bucketContacts))
			for _, ci := range contacts {
				data, mErr := json.Marshal(ci)
				if mErr != nil {
					return mErr
				}
				if pErr := b.Put([]byte(ci.ID), data); pErr != nil {
					return pErr
				}
			}
			return nil
		})
		if err != nil {
			logger.Warnf("cache: add contacts %s: %v", profileID, err)
		}
	})
}

// AddChats сохраняет чаты профиля.
func (s *Store) AddChats(profileID string, chats []protocol.ChatInfo) {
	if s.readOnly {
		return
	}
	s.post(func() {
		p := s.profile(profileID)
		if p == nil {
			return
		}
		err := p.db.Update(func(tx *bbolt.Tx) error {
			b := tx.Bucket([]byte(bucketChats))
			for _, ci := range chats {
				data, mErr := json.Marshal(ci)
				if mErr != nil {
					return mErr
				}
				if pErr := b.Put([]byte(ci.ID), data); pErr != nil {
					return pErr
				}
			}
			return nil
		})
		if err != nil {
			logger.Warnf("cache: add chats %s: %v", profileID, err)
		}
	})
}

// AddMessages буферизует добавление сообщений; реальная запись происходит при
// достижении порога либо по таймеру. Спонсорские сообщения не кэшируются.
func (s *Store) AddMessages(profileID string, chatID string, messages []protocol.ChatMessage) {
	if s.readOnly {
		return
	}
	s.post(func() {
		p := s.profile(profileID)
		if p == nil {
			return
		}
		for _, m := range messages {
			if m.IsSponsored() {
				continue
			}
			p.pending[chatID] = append(p.pending[chatID], m)
			p.npend++
		}
		if p.dirtyAt.IsZero() {
			p.dirtyAt = time.Now()
		}
		if p.npend >= flushMaxPending {
			s.flushProfile(profileID, p)
		}
	})
}

// UpdateMessage перезаписывает одно сообщение (правка текста, статус файла,
// консолидированные реакции).
func (s *Store) UpdateMessage(profileID string, chatID string, message protocol.ChatMessage) {
	s.AddMessages(profileID, chatID, []protocol.ChatMessage{message})
}

// DeleteMessage удаляет сообщение из кэша.
func (s *Store) DeleteMessage(profileID string, chatID string, msgID string) {
	if s.readOnly {
		return
	}
	s.post(func() {
		p := s.profile(profileID)
		if p == nil {
			return
		}
		s.flushProfile(profileID, p)
		err := p.db.Update(func(tx *bbolt.Tx) error {
			idx := tx.Bucket([]byte(bucketMsgIndex)).Bucket([]byte(chatID))
			msgs := tx.Bucket([]byte(bucketMessages)).Bucket([]byte(chatID))
			if idx == nil || msgs == nil {
				return nil
			}
			key := idx.Get([]byte(msgID))
			if key == nil {
				return nil
			}
			if dErr := msgs.Delete(key); dErr != nil {
				return dErr
			}
			return idx.Delete([]byte(msgID))
		})
		if err != nil {
			logger.Warnf("cache: delete message %s/%s: %v", profileID, msgID, err)
		}
	})
}

// DeleteChat удаляет чат со всеми сообщениями.
func (s *Store) DeleteChat(profileID string, chatID string) {
	if s.readOnly {
		return
	}
	s.post(func() {
		p := s.profile(profileID)
		if p == nil {
			return
		}
		delete(p.pending, chatID)
		err := p.db.Update(func(tx *bbolt.Tx) error {
			if dErr := tx.Bucket([]byte(bucketChats)).Delete([]byte(chatID)); dErr != nil {
				return dErr
			}
			for _, name := range []string{bucketMessages, bucketMsgIndex} {
				b := tx.Bucket([]byte(name))
				if b.Bucket([]byte(chatID)) != nil {
					if dErr := b.DeleteBucket([]byte(chatID)); dErr != nil {
						return dErr
					}
				}
			}
			return nil
		})
		if err != nil {
			logger.Warnf("cache: delete chat %s/%s: %v", profileID, chatID, err)
		}
	})
}

// FetchContacts асинхронно читает контакты и отвечает NewContactsNotify с
// fullSync=true.
func (s *Store) FetchContacts(profileID string) {
	s.post(func() {
		p := s.profile(profileID)
		if p == nil {
			return
		}
		var contacts []protocol.ContactInfo
		err := p.db.View(func(tx *bbolt.Tx) error {
			return tx.Bucket([]byte(bucketContacts)).ForEach(func(_, v []byte) error {
				var ci protocol.ContactInfo
				if uErr := json.Unmarshal(v, &ci); uErr != nil {
					return uErr
				}
				contacts = append(contacts, ci)
				return nil
			})
		})
		if err != nil {
			logger.Warnf("cache: fetch contacts %s: %v", profileID, err)
			return
		}
		s.notify(protocol.NewContactsNotify{
			ServiceBase:  protocol.ServiceBase{ProfileID: profileID},
			FullSync:     true,
			ContactInfos: contacts,
		})
	})
}

// FetchChats асинхронно читает чаты и отвечает NewChatsNotify.
func (s *Store) FetchChats(profileID string) {
	s.post(func() {
		p := s.profile(profileID)
		if p == nil {
			return
		}
		var chats []protocol.ChatInfo
		err := p.db.View(func(tx *bbolt.Tx) error {
			return tx.Bucket([]byte(bucketChats)).ForEach(func(_, v []byte) error {
				var ci protocol.ChatInfo
				if uErr := json.Unmarshal(v, &ci); uErr != nil {
					return uErr
				}
				chats = append(chats, ci)
				return nil
			})
		})
		if err != nil {
			logger.Warnf("cache: fetch chats %s: %v", profileID, err)
			return
		}
		s.notify(protocol.NewChatsNotify{
			ServiceBase: protocol.ServiceBase{ProfileID: profileID},
			Success:     true,
			ChatInfos:   chats,
		})
	})
}

// FetchMessagesFrom асинхронно читает страницу истории: limit сообщений
// старше fromMsgID (пустой — от самого свежего) и отвечает NewMessagesNotify
// с cached=true. Промах кэша — это не ошибка: приходит пустая пачка.
func (s *Store) FetchMessagesFrom(profileID string, chatID string, fromMsgID string, limit int) {
	s.post(func() {
		p := s.profile(profileID)
		if p == nil {
			return
		}
		// Сначала сливаем буфер, чтобы выборка видела свежие добавления.
		s.flushProfile(profileID, p)

		var out []protocol.ChatMessage
		err := p.db.View(func(tx *bbolt.Tx) error {
			msgs := tx.Bucket([]byte(bucketMessages)).Bucket([]byte(chatID))
			idx := tx.Bucket([]byte(bucketMsgIndex)).Bucket([]byte(chatID))
			if msgs == nil || idx == nil {
				return nil
			}
			c := msgs.Cursor()
			var k, v []byte
			if fromMsgID == "" {
				k, v = c.First()
			} else {
				fromKey := idx.Get([]byte(fromMsgID))
				if fromKey == nil {
					return nil
				}
				c.Seek(fromKey)
				k, v = c.Next() // строго старше курсора
			}
			for ; k != nil && len(out) < limit; k, v = c.Next() {
				var cm cachedMessage
				if uErr := json.Unmarshal(v, &cm); uErr != nil {
					return uErr
				}
				out = append(out, fromCached(cm))
			}
			return nil
		})
		if err != nil {
			logger.Warnf("cache: fetch messages %s/%s: %v", profileID, chatID, err)
			return
		}
		s.notify(protocol.NewMessagesNotify{
			ServiceBase:  protocol.ServiceBase{ProfileID: profileID},
			Success:      true,
			ChatID:       chatID,
			ChatMessages: out,
			FromMsgID:    fromMsgID,
			Cached:       true,
		})
	})
}

// FetchMessage асинхронно читает одно сообщение; при промахе ничего не шлёт,
// давая модели возможность запросить живую версию у бэкенда.
func (s *Store) FetchMessage(profileID string, chatID string, msgID string, onMiss func()) {
	s.post(func() {
		p := s.profile(profileID)
		if p == nil {
			return
		}
		s.flushProfile(profileID, p)

		var found *protocol.ChatMessage
		err := p.db.View(func(tx *bbolt.Tx) error {
			msgs := tx.Bucket([]byte(bucketMessages)).Bucket([]byte(chatID))
			idx := tx.Bucket([]byte(bucketMsgIndex)).Bucket([]byte(chatID))
			if msgs == nil || idx == nil {
				return nil
			}
			key := idx.Get([]byte(msgID))
			if key == nil {
				return nil
			}
			v := msgs.Get(key)
			if v == nil {
				return nil
			}
			var cm cachedMessage
			if uErr := json.Unmarshal(v, &cm); uErr != nil {
				return uErr
			}
			m := fromCached(cm)
			found = &m
			return nil
		})
		if err != nil {
			logger.Warnf("cache: fetch message %s/%s: %v", profileID, msgID, err)
			return
		}
		if found == nil {
			if onMiss != nil {
				onMiss()
			}
			return
		}
		s.notify(protocol.NewMessagesNotify{
			ServiceBase:  protocol.ServiceBase{ProfileID: profileID},
			Success:      true,
			ChatID:       chatID,
			ChatMessages: []protocol.ChatMessage{*found},
			Cached:       true,
		})
	})
}

// flushAll сбрасывает буферы всех профилей; force игнорирует возраст буфера.
func (s *Store) flushAll(force bool) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		p := s.profile(id)
		if p == nil || p.npend == 0 {
			continue
		}
		if force || time.Since(p.dirtyAt) >= flushInterval {
			s.flushProfile(id, p)
		}
	}
}

// flushProfile записывает буфер профиля одной транзакцией. Запись по msgID:
// существующая версия удаляется по индексу, чтобы смена timeSent не оставляла
// дубликат под старым ключом.
func (s *Store) flushProfile(profileID string, p *profileDB) {
	if p.npend == 0 {
		return
	}
	err := p.db.Update(func(tx *bbolt.Tx) error {
		for chatID, msgs := range p.pending {
			mb, bErr := tx.Bucket([]byte(bucketMessages)).CreateBucketIfNotExists([]byte(chatID))
			if bErr != nil {
				return bErr
			}
			ib, bErr := tx.Bucket([]byte(bucketMsgIndex)).CreateBucketIfNotExists([]byte(chatID))
			if bErr != nil {
				return bErr
			}
			for _, m := range msgs {
				if old := ib.Get([]byte(m.ID)); old != nil {
					if dErr := mb.Delete(old); dErr != nil {
						return dErr
					}
				}
				key := msgKey(m.TimeSent, m.ID)
				data, mErr := json.Marshal(toCached(m))
				if mErr != nil {
					return mErr
				}
				if pErr := mb.Put(key, data); pErr != nil {
					return pErr
				}
				if pErr := ib.Put([]byte(m.ID), key); pErr != nil {
					return pErr
				}
			}
		}
		return nil
	})
	if err != nil {
		logger.Warnf("cache: flush %s: %v", profileID, err)
	}
	p.pending = make(map[string][]protocol.ChatMessage)
	p.npend = 0
	p.dirtyAt = time.Time{}
}

// Snapshot — синхронный срез содержимого профиля для --query-cache и экспорта.
// Сообщения каждого чата отсортированы по убыванию времени.
type Snapshot struct {
	ProfileID string
	Contacts  []protocol.ContactInfo
	Chats     []protocol.ChatInfo
	Messages  map[string][]protocol.ChatMessage
}

// Query синхронно собирает срез профиля. Выполняется через очередь воркера,
// чтобы не конфликтовать с буфером записи.
func (s *Store) Query(profileID string) (Snapshot, error) {
	type result struct {
		snap Snapshot
		err  error
	}
	done := make(chan result, 1)
	s.post(func() {
		p := s.profile(profileID)
		if p == nil {
			done <- result{err: fmt.Errorf("cache: unknown profile %s", profileID)}
			return
		}
		s.flushProfile(profileID, p)

		snap := Snapshot{ProfileID: profileID, Messages: make(map[string][]protocol.ChatMessage)}
		err := p.db.View(func(tx *bbolt.Tx) error {
			if fErr := tx.Bucket([]byte(bucketContacts)).ForEach(func(_, v []byte) error {
				var ci protocol.ContactInfo
				if uErr := json.Unmarshal(v, &ci); uErr != nil {
					return uErr
				}
				snap.Contacts = append(snap.Contacts, ci)
				return nil
			}); fErr != nil {
				return fErr
			}
			if fErr := tx.Bucket([]byte(bucketChats)).ForEach(func(_, v []byte) error {
				var ci protocol.ChatInfo
				if uErr := json.Unmarshal(v, &ci); uErr != nil {
					return uErr
				}
				snap.Chats = append(snap.Chats, ci)
				return nil
			}); fErr != nil {
				return fErr
			}
			msgs := tx.Bucket([]byte(bucketMessages))
			return msgs.ForEachBucket(func(chatKey []byte) error {
				chatID := string(chatKey)
				return msgs.Bucket(chatKey).ForEach(func(_, v []byte) error {
					var cm cachedMessage
					if uErr := json.Unmarshal(v, &cm); uErr != nil {
						return uErr
					}
					snap.Messages[chatID] = append(snap.Messages[chatID], fromCached(cm))
					return nil
				})
			})
		})
		done <- result{snap: snap, err: err}
	})
	select {
	case r := <-done:
		sort.Slice(r.snap.Chats, func(i, j int) bool {
			return r.snap.Chats[i].ID < r.snap.Chats[j].ID
		})
		return r.snap, r.err
	case <-s.closed:
		return Snapshot{}, fmt.Errorf("cache: store closed")
	}
}
