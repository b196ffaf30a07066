package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nchat/internal/infra/config"
)

func TestLoadFileDefaultsAndDiscard(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "app.conf")
	content := "known=custom\nunknown_key=value\n# comment\n\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	f := config.LoadFile(path, map[string]string{
		"known": "default",
		"other": "fallback",
	})

	if got := f.Get("known"); got != "custom" {
		t.Fatalf("known = %q, want %q", got, "custom")
	}
	if got := f.Get("other"); got != "fallback" {
		t.Fatalf("other = %q, want default %q", got, "fallback")
	}
	// Ключи вне карты дефолтов отбрасываются при загрузке.
	if f.Exist("unknown_key") {
		t.Fatalf("unknown key must be discarded on load")
	}
}

func TestLoadFileCreatesMissing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ui.conf")
	f := config.LoadFile(path, map[string]string{"b_key": "2", "a_key": "1"})

	if got := f.Get("a_key"); got != "1" {
		t.Fatalf("a_key = %q, want %q", got, "1")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	// Сохранение отсортировано для стабильных диффов.
	text := string(data)
	if !strings.Contains(text, "a_key=1") || !strings.Contains(text, "b_key=2") {
		t.Fatalf("unexpected file content: %q", text)
	}
	if strings.Index(text, "a_key") > strings.Index(text, "b_key") {
		t.Fatalf("keys must be sorted: %q", text)
	}
}

func TestFileSetSaveReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.conf")
	defaults := map[string]string{"cache_enabled": "1", "downloads_dir": ""}

	f := config.LoadFile(path, defaults)
	f.SetBool("cache_enabled", false)
	f.Set("downloads_dir", "/tmp/dl")
	if err := f.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := config.LoadFile(path, defaults)
	if reloaded.GetBool("cache_enabled") {
		t.Fatalf("cache_enabled must survive save/reload as false")
	}
	if got := reloaded.Get("downloads_dir"); got != "/tmp/dl" {
		t.Fatalf("downloads_dir = %q, want %q", got, "/tmp/dl")
	}
}

func TestGetNum(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ui.conf")
	f := config.LoadFile(path, map[string]string{"list_width": "14", "junk": "abc"})
	if got := f.GetNum("list_width"); got != 14 {
		t.Fatalf("list_width = %d, want 14", got)
	}
	// Нечисловое значение даёт 0 (silent fallback).
	if got := f.GetNum("junk"); got != 0 {
		t.Fatalf("junk = %d, want 0", got)
	}
}
