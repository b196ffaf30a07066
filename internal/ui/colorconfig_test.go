package ui_test

import (
	"path/filepath"
	"testing"

	"nchat/internal/ui"
)

func TestColorID(t *testing.T) {
	t.Parallel()

	var defined [][4]int
	caps := ui.TermCaps{
		HasColors:      true,
		Colors:         256,
		CanChangeColor: true,
		DefinePalette: func(id, r, g, b int) {
			defined = append(defined, [4]int{id, r, g, b})
		},
	}
	cc := ui.NewColorConfig(filepath.Join(t.TempDir(), "color.conf"), caps)

	cases := []struct {
		name  string
		value string
		want  int
	}{
		{name: "empty", value: "", want: ui.ColorDefault},
		{name: "basicName", value: "red", want: 1},
		{name: "brightName", value: "bright_red", want: 9},
		{name: "gray", value: "gray", want: 8},
		{name: "numericId", value: "42", want: 42},
		{name: "unknownName", value: "chartreuse", want: ui.ColorDefault},
	}
	for _, tc := range cases {
		if got := cc.ColorID(tc.value); got != tc.want {
			t.Fatalf("ColorID(%q) = %d, want %d", tc.value, got, tc.want)
		}
	}

	// Hex выделяет новую запись палитры с масштабированными компонентами.
	id := cc.ColorID("0xFF0080")
	if id == ui.ColorDefault {
		t.Fatalf("hex color must allocate palette id")
	}
	if len(defined) != 1 {
		t.Fatalf("DefinePalette calls = %d, want 1", len(defined))
	}
	got := defined[0]
	if got[0] != id || got[1] != 1000 || got[2] != 0 || got[3] != 501 {
		t.Fatalf("palette entry = %v, want [%d 1000 0 501]", got, id)
	}
}

func TestColorIDHexFallback(t *testing.T) {
	t.Parallel()

	// Терминал без перенастраиваемой палитры: hex молча откатывается.
	cc := ui.NewColorConfig(filepath.Join(t.TempDir(), "color.conf"), ui.TermCaps{
		HasColors: true,
		Colors:    8,
	})
	if got := cc.ColorID("0xFF0080"); got != ui.ColorDefault {
		t.Fatalf("hex on incapable terminal = %d, want ColorDefault", got)
	}
	// Узкая палитра: bright-имена недоступны.
	if got := cc.ColorID("bright_red"); got != ui.ColorDefault {
		t.Fatalf("bright name on 8-color terminal = %d, want ColorDefault", got)
	}
}

func TestAttribute(t *testing.T) {
	t.Parallel()

	cc := ui.NewColorConfig(filepath.Join(t.TempDir(), "color.conf"), ui.TermCaps{HasColors: true, Colors: 256})
	// Дефолты: status_attr=reverse, history_name_attr=bold, entry_attr пуст.
	if got := cc.Attribute("status"); got != ui.AttrReverse {
		t.Fatalf("status attr = %v, want AttrReverse", got)
	}
	if got := cc.Attribute("history_name"); got != ui.AttrBold {
		t.Fatalf("history_name attr = %v, want AttrBold", got)
	}
	if got := cc.Attribute("entry"); got != ui.AttrNormal {
		t.Fatalf("entry attr = %v, want AttrNormal", got)
	}
}
