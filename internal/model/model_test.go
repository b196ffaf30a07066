package model_test

import (
	"sync"
	"testing"
	"time"

	"nchat/internal/infra/config"
	"nchat/internal/model"
	"nchat/internal/protocol"
)

// fakeProtocol — бэкенд-заглушка: копит запросы и позволяет задать фичи.
type fakeProtocol struct {
	mu       sync.Mutex
	id       string
	features protocol.Feature
	requests []protocol.Request
	handler  protocol.MessageHandler
}

func (f *fakeProtocol) ProfileID() string                           { return f.id }
func (f *fakeProtocol) ProfileDisplayName() string                  { return "" }
func (f *fakeProtocol) HasFeature(flag protocol.Feature) bool       { return f.features.Has(flag) }
func (f *fakeProtocol) SelfID() string                              { return "self" }
func (f *fakeProtocol) SetupProfile(string) (string, bool)          { return f.id, true }
func (f *fakeProtocol) LoadProfile(string, string) bool             { return true }
func (f *fakeProtocol) CloseProfile() bool                          { return true }
func (f *fakeProtocol) Login() bool                                 { return true }
func (f *fakeProtocol) Logout() bool                                { return true }
func (f *fakeProtocol) SetMessageHandler(h protocol.MessageHandler) { f.handler = h }

func (f *fakeProtocol) SendRequest(req protocol.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
}

// count возвращает число запросов, удовлетворяющих предикату.
func (f *fakeProtocol) count(match func(protocol.Request) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if match(r) {
			n++
		}
	}
	return n
}

// newModel собирает модель с одним фейковым профилем.
func newModel(t *testing.T, features protocol.Feature, uiOverrides map[string]string) (*model.Model, *fakeProtocol) {
	t.Helper()
	settings := config.NewTestSettings(t.TempDir(), uiOverrides)
	m := model.New(settings, nil)
	proto := &fakeProtocol{id: "Fake_1", features: features}
	m.AddProtocol(proto)
	return m, proto
}

// chatsNotify — хелпер конструирования NewChatsNotify.
func chatsNotify(profileID string, infos ...protocol.ChatInfo) protocol.NewChatsNotify {
	return protocol.NewChatsNotify{
		ServiceBase: protocol.ServiceBase{ProfileID: profileID},
		Success:     true,
		ChatInfos:   infos,
	}
}

// messagesNotify — хелпер конструирования NewMessagesNotify.
func messagesNotify(profileID, chatID, fromMsgID string, cached bool,
	msgs ...protocol.ChatMessage) protocol.NewMessagesNotify {
	return protocol.NewMessagesNotify{
		ServiceBase:  protocol.ServiceBase{ProfileID: profileID},
		Success:      true,
		ChatID:       chatID,
		ChatMessages: msgs,
		FromMsgID:    fromMsgID,
		Cached:       cached,
	}
}

func TestChatOrdering(t *testing.T) {
	t.Parallel()

	m, proto := newModel(t, 0, nil)
	m.HandleServiceMessage(chatsNotify(proto.id,
		protocol.ChatInfo{ID: "A", LastMessageTime: 100},
		protocol.ChatInfo{ID: "B", IsPinned: true, LastMessageTime: 50},
		protocol.ChatInfo{ID: "C", LastMessageTime: 200},
	))

	var got []string
	m.With(func(g *model.Guard) {
		for _, key := range m.ChatVec(g) {
			got = append(got, key.ChatID)
		}
	})
	want := []string{"B", "C", "A"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chatVec = %v, want %v", got, want)
		}
	}
}

func TestSortOnPin(t *testing.T) {
	t.Parallel()

	m, proto := newModel(t, 0, nil)
	m.HandleServiceMessage(chatsNotify(proto.id,
		protocol.ChatInfo{ID: "A", LastMessageTime: 500},
		protocol.ChatInfo{ID: "B", LastMessageTime: 400},
		protocol.ChatInfo{ID: "C", LastMessageTime: 300},
	))
	const pinTime = int64(42)
	m.HandleServiceMessage(protocol.UpdatePinNotify{
		ServiceBase: protocol.ServiceBase{ProfileID: proto.id},
		Success:     true,
		ChatID:      "C",
		IsPinned:    true,
		TimePinned:  pinTime,
	})

	m.With(func(g *model.Guard) {
		vec := m.ChatVec(g)
		if vec[0].ChatID != "C" {
			t.Fatalf("pinned chat must sort first, got %v", vec)
		}
		info, _ := m.ChatInfo(g, vec[0])
		if info.LastMessageTime != pinTime {
			t.Fatalf("pinned chat lastMessageTime = %d, want %d", info.LastMessageTime, pinTime)
		}
	})
}

func TestMessageOrderingWithSponsored(t *testing.T) {
	t.Parallel()

	m, proto := newModel(t, 0, nil)
	key := model.ChatKey{ProfileID: proto.id, ChatID: "c"}
	m.HandleServiceMessage(messagesNotify(proto.id, "c", "", false,
		protocol.ChatMessage{ID: "m1", TimeSent: 100},
		protocol.ChatMessage{ID: "ad", TimeSent: protocol.TimeSentSponsored},
		protocol.ChatMessage{ID: "m3", TimeSent: 300},
		protocol.ChatMessage{ID: "m2", TimeSent: 200},
	))

	m.With(func(g *model.Guard) {
		vec := m.MessageVec(g, key)
		want := []string{"ad", "m3", "m2", "m1"}
		if len(vec) != len(want) {
			t.Fatalf("messageVec = %v, want %v", vec, want)
		}
		for i := range want {
			if vec[i] != want[i] {
				t.Fatalf("messageVec = %v, want %v", vec, want)
			}
		}
	})
}

func TestSponsoredExcludedFromChatMeta(t *testing.T) {
	t.Parallel()

	m, proto := newModel(t, 0, nil)
	m.HandleServiceMessage(messagesNotify(proto.id, "c", "", false,
		protocol.ChatMessage{ID: "m1", TimeSent: 100, IsRead: true},
		protocol.ChatMessage{ID: "ad", TimeSent: protocol.TimeSentSponsored, IsRead: false},
	))

	// Спонсорское сообщение не влияет ни на порядок, ни на непрочитанность:
	// самое свежее обычное сообщение прочитано.
	m.With(func(g *model.Guard) {
		vec := m.ChatVec(g)
		if len(vec) != 1 {
			t.Fatalf("expected one chat, got %v", vec)
		}
		info, ok := m.ChatInfo(g, vec[0])
		if !ok {
			t.Fatalf("chat info missing")
		}
		if info.IsUnread {
			t.Fatalf("sponsored message must not mark chat unread")
		}
		if info.LastMessageTime != 100 {
			t.Fatalf("lastMessageTime = %d, want 100 (sponsored excluded)", info.LastMessageTime)
		}
	})
}

func TestMarkReadOnView(t *testing.T) {
	t.Parallel()

	isMarkRead := func(r protocol.Request) bool {
		_, ok := r.(protocol.MarkMessageReadRequest)
		return ok
	}

	t.Run("activeTerminalDispatchesOnce", func(t *testing.T) {
		t.Parallel()
		m, proto := newModel(t, 0, nil)
		m.HandleServiceMessage(chatsNotify(proto.id, protocol.ChatInfo{ID: "c", LastMessageTime: 1}))
		m.With(func(g *model.Guard) { m.OnKeyNextChat(g) })

		m.HandleServiceMessage(messagesNotify(proto.id, "c", "", false,
			protocol.ChatMessage{ID: "m1", TimeSent: 100, IsRead: false, IsOutgoing: false},
		))
		if got := proto.count(isMarkRead); got != 1 {
			t.Fatalf("MarkMessageRead dispatched %d times, want 1", got)
		}
	})

	t.Run("inactiveTerminalDispatchesNone", func(t *testing.T) {
		t.Parallel()
		m, proto := newModel(t, 0, nil)
		m.HandleServiceMessage(chatsNotify(proto.id, protocol.ChatInfo{ID: "c", LastMessageTime: 1}))
		m.With(func(g *model.Guard) { m.OnKeyNextChat(g) })
		m.SetTerminalActive(false)

		m.HandleServiceMessage(messagesNotify(proto.id, "c", "", false,
			protocol.ChatMessage{ID: "m1", TimeSent: 100, IsRead: false, IsOutgoing: false},
		))
		if got := proto.count(isMarkRead); got != 0 {
			t.Fatalf("MarkMessageRead dispatched %d times, want 0", got)
		}
	})
}

func TestPagination(t *testing.T) {
	t.Parallel()

	m, proto := newModel(t, 0, nil)
	key := model.ChatKey{ProfileID: proto.id, ChatID: "c"}
	m.HandleServiceMessage(chatsNotify(proto.id, protocol.ChatInfo{ID: "c", LastMessageTime: 1}))
	m.With(func(g *model.Guard) { m.OnKeyNextChat(g) })

	// 30 сообщений истории.
	msgs := make([]protocol.ChatMessage, 0, 30)
	for i := 30; i >= 1; i-- {
		msgs = append(msgs, protocol.ChatMessage{
			ID:       "m" + string(rune('0'+i/10)) + string(rune('0'+i%10)),
			TimeSent: int64(i * 1000),
			IsRead:   true,
		})
	}
	m.HandleServiceMessage(messagesNotify(proto.id, "c", "", false, msgs...))

	m.With(func(g *model.Guard) {
		m.SetHistoryViewLines(g, 10)

		m.OnKeyPrevPage(g)
		if off := m.MessageOffset(g, key); off != 10 {
			t.Fatalf("after page-up offset = %d, want 10", off)
		}
		m.OnKeyNextPage(g)
		if off := m.MessageOffset(g, key); off != 0 {
			t.Fatalf("after page-down offset = %d, want 0", off)
		}

		// needed = 20+1+7 = 28 <= 30: второй page-up не требует истории.
		m.OnKeyPrevPage(g)
		m.OnKeyPrevPage(g)
	})
	isGetMessages := func(r protocol.Request) bool {
		_, ok := r.(protocol.GetMessagesRequest)
		return ok
	}
	before := proto.count(isGetMessages)

	// Третий page-up упирается в конец известной истории: offset 29,
	// needed = 37 > 30 — должен уйти ровно один запрос.
	m.With(func(g *model.Guard) {
		m.OnKeyPrevPage(g)
		m.OnKeyPrevPage(g) // дубль с тем же курсором подавляется
	})
	after := proto.count(isGetMessages)
	if after-before != 1 {
		t.Fatalf("history requests issued = %d, want exactly 1 (dedup in flight)", after-before)
	}
}

func TestEditWindow(t *testing.T) {
	t.Parallel()

	nowMs := time.Now().UnixMilli()
	isEdit := func(r protocol.Request) bool {
		_, ok := r.(protocol.EditMessageRequest)
		return ok
	}

	t.Run("within15MinutesEditable", func(t *testing.T) {
		t.Parallel()
		m, proto := newModel(t, protocol.FeatureEditMessagesWithinFifteenMins, nil)
		m.HandleServiceMessage(chatsNotify(proto.id, protocol.ChatInfo{ID: "c", LastMessageTime: 1}))
		m.With(func(g *model.Guard) { m.OnKeyNextChat(g) })
		m.HandleServiceMessage(messagesNotify(proto.id, "c", "", false,
			protocol.ChatMessage{
				ID: "m1", Text: "hello", TimeSent: nowMs - 14*60*1000,
				IsOutgoing: true, IsRead: true,
			},
		))

		m.With(func(g *model.Guard) {
			m.OnKeyUp(g) // выбор сообщения
			m.OnKeyEdit(g)
			if m.ModeLocked(g) != model.ModeEditMessage {
				t.Fatalf("mode = %v, want ModeEditMessage", m.ModeLocked(g))
			}
			if m.EntryText(g) != "hello" {
				t.Fatalf("entry preloaded with %q, want %q", m.EntryText(g), "hello")
			}
		})
	})

	t.Run("older15MinutesDenied", func(t *testing.T) {
		t.Parallel()
		m, proto := newModel(t, protocol.FeatureEditMessagesWithinFifteenMins, nil)
		m.HandleServiceMessage(chatsNotify(proto.id, protocol.ChatInfo{ID: "c", LastMessageTime: 1}))
		m.With(func(g *model.Guard) { m.OnKeyNextChat(g) })
		m.HandleServiceMessage(messagesNotify(proto.id, "c", "", false,
			protocol.ChatMessage{
				ID: "m1", Text: "hello", TimeSent: nowMs - 16*60*1000,
				IsOutgoing: true, IsRead: true,
			},
		))

		m.With(func(g *model.Guard) {
			m.OnKeyUp(g)
			m.OnKeyEdit(g)
			if got := m.AlertText(g); got != "Messages older than 15 minutes cannot be edited." {
				t.Fatalf("alert = %q", got)
			}
		})
		if got := proto.count(isEdit); got != 0 {
			t.Fatalf("edit request dispatched on denied edit")
		}
	})
}

func TestProtocolUiControl(t *testing.T) {
	t.Parallel()

	settings := config.NewTestSettings(t.TempDir(), nil)
	m := model.New(settings, nil)
	p1 := &fakeProtocol{id: "Fake_1"}
	p2 := &fakeProtocol{id: "Fake_2"}
	m.AddProtocol(p1)
	m.AddProtocol(p2)

	take := func(id string, takeControl bool) {
		m.HandleServiceMessage(protocol.ProtocolUiControlNotify{
			ServiceBase:   protocol.ServiceBase{ProfileID: id},
			IsTakeControl: takeControl,
		})
	}

	take(p1.id, true)
	if owner := m.UiControlOwner(); owner != p1.id {
		t.Fatalf("owner = %q, want %q", owner, p1.id)
	}
	// Конкурирующий захват отклоняется, владелец не меняется.
	take(p2.id, true)
	if owner := m.UiControlOwner(); owner != p1.id {
		t.Fatalf("after denied take owner = %q, want %q", owner, p1.id)
	}
	// Освобождение чужим профилем игнорируется.
	take(p2.id, false)
	if owner := m.UiControlOwner(); owner != p1.id {
		t.Fatalf("foreign release changed owner to %q", m.UiControlOwner())
	}

	released := make(chan struct{})
	go func() {
		m.WaitUiControlRelease()
		close(released)
	}()
	take(p1.id, false)
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatalf("WaitUiControlRelease did not wake after release")
	}
	if m.UiControlHeld() {
		t.Fatalf("control still held after release")
	}
}

func TestSendEchoReplacesTemp(t *testing.T) {
	t.Parallel()

	m, proto := newModel(t, 0, nil)
	key := model.ChatKey{ProfileID: proto.id, ChatID: "c"}
	m.HandleServiceMessage(chatsNotify(proto.id, protocol.ChatInfo{ID: "c", LastMessageTime: 1}))
	m.With(func(g *model.Guard) {
		m.OnKeyNextChat(g)
		m.EntryRune(g, 'h')
		m.EntryRune(g, 'i')
		m.OnKeyReturn(g)
		if vec := m.MessageVec(g, key); len(vec) != 1 {
			t.Fatalf("temp message missing, vec = %v", vec)
		}
	})

	m.HandleServiceMessage(protocol.SendMessageNotify{
		ServiceBase: protocol.ServiceBase{ProfileID: proto.id},
		Success:     true,
		ChatID:      "c",
		ChatMessage: protocol.ChatMessage{
			ID: "55", Text: "hi", TimeSent: time.Now().UnixMilli(),
			IsOutgoing: true, IsRead: true,
		},
	})

	m.With(func(g *model.Guard) {
		vec := m.MessageVec(g, key)
		if len(vec) != 1 {
			t.Fatalf("echo duplicated message: vec = %v", vec)
		}
		if vec[0] != "55" {
			t.Fatalf("echoed id = %q, want \"55\"", vec[0])
		}
	})
}

func TestCachedDoesNotDowngradeLive(t *testing.T) {
	t.Parallel()

	m, proto := newModel(t, 0, nil)
	key := model.ChatKey{ProfileID: proto.id, ChatID: "c"}

	live := protocol.ChatMessage{
		ID: "m1", Text: "live", TimeSent: 2000, IsRead: true,
		Reactions: protocol.Reactions{EmojiCounts: map[string]int{"👍": 1}},
	}
	m.HandleServiceMessage(messagesNotify(proto.id, "c", "", false, live))

	stale := protocol.ChatMessage{ID: "m1", Text: "stale", TimeSent: 1000}
	m.HandleServiceMessage(messagesNotify(proto.id, "c", "", true, stale))

	m.With(func(g *model.Guard) {
		msg := m.Message(g, key, "m1")
		if msg == nil {
			t.Fatalf("message lost")
		}
		if msg.TimeSent != 2000 {
			t.Fatalf("cached batch decreased timeSent to %d", msg.TimeSent)
		}
		if len(msg.Reactions.EmojiCounts) != 1 {
			t.Fatalf("cached batch cleared reactions: %#v", msg.Reactions)
		}
	})
}

func TestTypingThrottle(t *testing.T) {
	t.Parallel()

	m, proto := newModel(t, protocol.FeatureTypingTimeout, nil)
	m.HandleServiceMessage(chatsNotify(proto.id, protocol.ChatInfo{ID: "c", LastMessageTime: 1}))
	m.With(func(g *model.Guard) { m.OnKeyNextChat(g) })

	m.With(func(g *model.Guard) {
		for _, r := range "hello world" {
			m.EntryRune(g, r)
		}
	})

	isStartTyping := func(r protocol.Request) bool {
		tr, ok := r.(protocol.SendTypingRequest)
		return ok && tr.IsTyping
	}
	if got := proto.count(isStartTyping); got != 1 {
		t.Fatalf("start-typing dispatched %d times within throttle window, want 1", got)
	}
}

func TestSelectMessageTransitions(t *testing.T) {
	t.Parallel()

	m, proto := newModel(t, 0, nil)
	key := model.ChatKey{ProfileID: proto.id, ChatID: "c"}
	m.HandleServiceMessage(chatsNotify(proto.id, protocol.ChatInfo{ID: "c", LastMessageTime: 1}))
	m.With(func(g *model.Guard) { m.OnKeyNextChat(g) })
	m.HandleServiceMessage(messagesNotify(proto.id, "c", "", false,
		protocol.ChatMessage{ID: "m2", TimeSent: 200, IsRead: true},
		protocol.ChatMessage{ID: "m1", TimeSent: 100, IsRead: true},
	))

	m.With(func(g *model.Guard) {
		if m.ModeLocked(g) != model.ModeDefault {
			t.Fatalf("initial mode must be Default")
		}
		m.OnKeyUp(g)
		if m.ModeLocked(g) != model.ModeSelectMessage {
			t.Fatalf("Up at entry pos 0 must enter SelectMessage")
		}
		if off := m.MessageOffset(g, key); off != 0 {
			t.Fatalf("selection must start at newest message, offset = %d", off)
		}
		m.OnKeyUp(g)
		if off := m.MessageOffset(g, key); off != 1 {
			t.Fatalf("Up must move to older message, offset = %d", off)
		}
		m.OnKeyDown(g)
		m.OnKeyDown(g)
		if m.ModeLocked(g) != model.ModeDefault {
			t.Fatalf("Down at offset 0 must return to Default")
		}
	})
}
