// File export.go: экспорт и импорт истории чатов (--export / --import).
// Экспорт пишет по одному JSON-файлу на чат в каталоге профиля; импорт
// зеркально перечитывает такие каталоги и загружает сообщения в кэш.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nchat/internal/infra/logger"
	"nchat/internal/infra/storage"
	"nchat/internal/protocol"
)

// exportChat — формат файла экспорта одного чата.
type exportChat struct {
	ProfileID string                 `json:"profileId"`
	ChatID    string                 `json:"chatId"`
	Messages  []protocol.ChatMessage `json:"messages"`
}

// Export выгружает профиль в dir/<profileID>/: contacts.json, chats.json и
// по файлу на чат. Существующие файлы перезаписываются атомарно.
func (s *Store) Export(profileID string, dir string) error {
	snap, err := s.Query(profileID)
	if err != nil {
		return err
	}

	base := filepath.Join(dir, profileID)
	if err := os.MkdirAll(base, 0o700); err != nil {
		return fmt.Errorf("cache: export dir: %w", err)
	}

	writeJSON := func(name string, v any) error {
		data, mErr := json.MarshalIndent(v, "", "  ")
		if mErr != nil {
			return mErr
		}
		return storage.AtomicWriteFile(filepath.Join(base, name), data)
	}

	if err := writeJSON("contacts.json", snap.Contacts); err != nil {
		return err
	}
	if err := writeJSON("chats.json", snap.Chats); err != nil {
		return err
	}
	for chatID, msgs := range snap.Messages {
		name := "chat_" + sanitizeFileName(chatID) + ".json"
		if err := writeJSON(name, exportChat{ProfileID: profileID, ChatID: chatID, Messages: msgs}); err != nil {
			return err
		}
	}
	logger.Infof("cache: exported %s to %s", profileID, base)
	return nil
}

// Import загружает ранее экспортированный каталог dir/<profileID>/ в кэш.
// Профиль должен быть уже добавлен через AddProfile.
func (s *Store) Import(profileID string, dir string) error {
	base := filepath.Join(dir, profileID)
	entries, err := os.ReadDir(base)
	if err != nil {
		return fmt.Errorf("cache: import dir: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(base, name)
		switch {
		case name == "contacts.json":
			var contacts []protocol.ContactInfo
			if err := readJSON(path, &contacts); err != nil {
				return err
			}
			s.AddContacts(profileID, contacts)
		case name == "chats.json":
			var chats []protocol.ChatInfo
			if err := readJSON(path, &chats); err != nil {
				return err
			}
			s.AddChats(profileID, chats)
		case strings.HasPrefix(name, "chat_") && strings.HasSuffix(name, ".json"):
			var chat exportChat
			if err := readJSON(path, &chat); err != nil {
				return err
			}
			s.AddMessages(profileID, chat.ChatID, chat.Messages)
		}
	}
	logger.Infof("cache: imported %s from %s", profileID, base)
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cache: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cache: parse %s: %w", path, err)
	}
	return nil
}

// sanitizeFileName заменяет символы, небезопасные для имён файлов.
func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
