package cache_test

import (
	"sync"
	"testing"
	"time"

	"nchat/internal/cache"
	"nchat/internal/protocol"
)

// collector накапливает сервисные сообщения кэша.
type collector struct {
	mu   sync.Mutex
	msgs []protocol.ServiceMessage
}

func (c *collector) handler(msg protocol.ServiceMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) batches() []protocol.NewMessagesNotify {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.NewMessagesNotify
	for _, m := range c.msgs {
		if b, ok := m.(protocol.NewMessagesNotify); ok {
			out = append(out, b)
		}
	}
	return out
}

func TestStoreMessagesRoundTrip(t *testing.T) {
	t.Parallel()

	const profileID = "Telegram_1"
	store := cache.NewStore(nil, false)
	defer store.Close()

	if err := store.AddProfile(t.TempDir(), profileID, 1); err != nil {
		t.Fatalf("AddProfile: %v", err)
	}

	msgs := []protocol.ChatMessage{
		{ID: "3", Text: "newest", TimeSent: 3000},
		{ID: "1", Text: "oldest", TimeSent: 1000},
		{ID: "2", Text: "middle", TimeSent: 2000},
		{ID: "ad", Text: "sponsored", TimeSent: protocol.TimeSentSponsored},
	}
	store.AddMessages(profileID, "chat1", msgs)

	snap, err := store.Query(profileID)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	got := snap.Messages["chat1"]
	if len(got) != 3 {
		t.Fatalf("cached %d messages, want 3 (sponsored excluded)", len(got))
	}
	// Порядок по убыванию времени гарантируется ключами bbolt.
	wantOrder := []string{"3", "2", "1"}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Fatalf("message[%d].ID = %q, want %q", i, got[i].ID, want)
		}
	}
}

func TestStoreFetchMessagesFrom(t *testing.T) {
	t.Parallel()

	const profileID = "Telegram_2"
	sink := &collector{}
	store := cache.NewStore(sink.handler, false)
	defer store.Close()

	if err := store.AddProfile(t.TempDir(), profileID, 1); err != nil {
		t.Fatalf("AddProfile: %v", err)
	}
	store.AddMessages(profileID, "chat1", []protocol.ChatMessage{
		{ID: "1", TimeSent: 1000},
		{ID: "2", TimeSent: 2000},
		{ID: "3", TimeSent: 3000},
	})

	// Страница от самого свежего, затем продолжение от курсора.
	store.FetchMessagesFrom(profileID, "chat1", "", 2)
	store.FetchMessagesFrom(profileID, "chat1", "2", 10)
	// Промах кэша — пустая пачка, не ошибка.
	store.FetchMessagesFrom(profileID, "missing", "", 5)

	deadline := time.Now().Add(5 * time.Second)
	for len(sink.batches()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for batches, got %d", len(sink.batches()))
		}
		time.Sleep(10 * time.Millisecond)
	}

	batches := sink.batches()
	first, second, miss := batches[0], batches[1], batches[2]

	if !first.Cached || len(first.ChatMessages) != 2 ||
		first.ChatMessages[0].ID != "3" || first.ChatMessages[1].ID != "2" {
		t.Fatalf("first page = %#v, want cached [3 2]", first.ChatMessages)
	}
	if len(second.ChatMessages) != 1 || second.ChatMessages[0].ID != "1" {
		t.Fatalf("second page = %#v, want [1]", second.ChatMessages)
	}
	if second.FromMsgID != "2" {
		t.Fatalf("second page FromMsgID = %q, want \"2\"", second.FromMsgID)
	}
	if !miss.Success || len(miss.ChatMessages) != 0 {
		t.Fatalf("cache miss must be an empty successful batch, got %#v", miss)
	}
}

func TestStoreDeleteMessage(t *testing.T) {
	t.Parallel()

	const profileID = "Telegram_3"
	store := cache.NewStore(nil, false)
	defer store.Close()

	if err := store.AddProfile(t.TempDir(), profileID, 1); err != nil {
		t.Fatalf("AddProfile: %v", err)
	}
	store.AddMessages(profileID, "chat1", []protocol.ChatMessage{
		{ID: "1", TimeSent: 1000},
		{ID: "2", TimeSent: 2000},
	})
	store.DeleteMessage(profileID, "chat1", "2")

	snap, err := store.Query(profileID)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	got := snap.Messages["chat1"]
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("after delete: %#v, want only message 1", got)
	}
}
