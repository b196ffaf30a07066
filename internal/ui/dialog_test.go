package ui_test

import (
	"path/filepath"
	"testing"

	"nchat/internal/ui"
)

func TestListDialogFilterAndSelect(t *testing.T) {
	t.Parallel()

	kc := ui.NewKeyConfig(filepath.Join(t.TempDir(), "key.conf"), true)
	items := []ui.ListItem{
		{Key: "1", Text: "Alice"},
		{Key: "2", Text: "Bob"},
		{Key: "3", Text: "Alina"},
	}
	d := ui.NewListDialog(items, true)
	if d.State() != ui.DialogInput {
		t.Fatalf("dialog must enter Input state after init")
	}

	// Фильтр "al" оставляет Alice и Alina (без учёта регистра).
	d.HandleKey(kc, 'a')
	d.HandleKey(kc, 'l')
	filtered := d.Items()
	if len(filtered) != 2 || filtered[0].Text != "Alice" || filtered[1].Text != "Alina" {
		t.Fatalf("filtered = %#v, want [Alice Alina]", filtered)
	}

	// Выбор второго элемента подтверждением.
	d.HandleKey(kc, kc.Get("down"))
	if done := d.HandleKey(kc, kc.Get("ok")); !done {
		t.Fatalf("ok must finish the dialog")
	}
	result, ok := d.Result()
	if !ok || result.Key != "3" {
		t.Fatalf("result = %#v ok=%v, want Alina", result, ok)
	}
}

func TestListDialogCancel(t *testing.T) {
	t.Parallel()

	kc := ui.NewKeyConfig(filepath.Join(t.TempDir(), "key.conf"), true)
	d := ui.NewListDialog([]ui.ListItem{{Key: "1", Text: "x"}}, true)
	if done := d.HandleKey(kc, kc.Get("cancel")); !done {
		t.Fatalf("cancel must finish the dialog")
	}
	if _, ok := d.Result(); ok {
		t.Fatalf("cancelled dialog must not produce a result")
	}
}

func TestListDialogBackspace(t *testing.T) {
	t.Parallel()

	kc := ui.NewKeyConfig(filepath.Join(t.TempDir(), "key.conf"), true)
	d := ui.NewListDialog([]ui.ListItem{
		{Key: "1", Text: "aa"},
		{Key: "2", Text: "ab"},
	}, true)

	d.HandleKey(kc, 'a')
	d.HandleKey(kc, 'b')
	if got := len(d.Items()); got != 1 {
		t.Fatalf("filter ab: %d items, want 1", got)
	}
	d.HandleKey(kc, kc.Get("backspace"))
	if got := len(d.Items()); got != 2 {
		t.Fatalf("after backspace: %d items, want 2", got)
	}
	if d.Filter() != "a" {
		t.Fatalf("filter = %q, want %q", d.Filter(), "a")
	}
}

func TestMessageDialog(t *testing.T) {
	t.Parallel()

	kc := ui.NewKeyConfig(filepath.Join(t.TempDir(), "key.conf"), true)
	d := ui.NewMessageDialog("Messages older than 15 minutes cannot be edited.")
	if done := d.HandleKey(kc, 'x'); done {
		t.Fatalf("arbitrary key must not close the dialog")
	}
	if done := d.HandleKey(kc, kc.Get("ok")); !done || !d.Confirmed() {
		t.Fatalf("ok must confirm and close the dialog")
	}
}
