package ui_test

import (
	"path/filepath"
	"testing"

	"nchat/internal/ui"
)

func newKeyConfig(t *testing.T) *ui.KeyConfig {
	t.Helper()
	return ui.NewKeyConfig(filepath.Join(t.TempDir(), "key.conf"), true)
}

func TestKeyCodeParsing(t *testing.T) {
	t.Parallel()

	kc := newKeyConfig(t)

	cases := []struct {
		name  string
		value string
		want  ui.KeyCode
	}{
		{name: "ctrlA", value: "KEY_CTRLA", want: 1},
		{name: "tab", value: "KEY_TAB", want: 9},
		{name: "returnLinefeed", value: "KEY_RETURN", want: 10},
		{name: "hex", value: "0x1f600", want: 0x1f600},
		{name: "singlePrintable", value: "q", want: 'q'},
		{name: "singleOctal", value: `\177`, want: 0o177},
		{name: "none", value: "KEY_NONE", want: ui.KeyNone},
		{name: "unknown", value: "KEY_BOGUS", want: ui.KeyNone},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := kc.KeyCodeOf(tc.value); got != tc.want {
				t.Fatalf("KeyCodeOf(%q) = 0x%x, want 0x%x", tc.value, got, tc.want)
			}
		})
	}
}

func TestVirtualKeyCodeAllocation(t *testing.T) {
	t.Parallel()

	kc := newKeyConfig(t)

	// Многобайтовые октальные последовательности получают коды из PUA.
	find := kc.KeyCodeOf(`\33\57`)
	react := kc.KeyCodeOf(`\33\163`)
	if find < 0xE800 || react < 0xE800 {
		t.Fatalf("virtual codes must come from the PUA range: 0x%x 0x%x", find, react)
	}
	if find == react {
		t.Fatalf("distinct sequences must get distinct codes")
	}
	// Повторный запрос той же последовательности возвращает тот же код.
	if again := kc.KeyCodeOf(`\33\57`); again != find {
		t.Fatalf("repeated lookup reallocated: 0x%x != 0x%x", again, find)
	}

	// Таблица для декодера ввода содержит байтовую форму последовательности.
	seqs := kc.SequenceCodes()
	if got, ok := seqs["\x1b/"]; !ok || got != find {
		t.Fatalf("SequenceCodes missing \\x1b/: %#v", seqs)
	}
}

func TestKeyDefaults(t *testing.T) {
	t.Parallel()

	kc := newKeyConfig(t)
	if got := kc.Get("next_chat"); got != 9 {
		t.Fatalf("next_chat = 0x%x, want KEY_TAB", got)
	}
	if got := kc.Get("quit"); got != 17 {
		t.Fatalf("quit = 0x%x, want KEY_CTRLQ", got)
	}
	if kc.Get("find") == ui.KeyNone {
		t.Fatalf("find must map to a virtual alt-sequence code")
	}
}
