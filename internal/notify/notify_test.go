package notify

import (
	"strings"
	"testing"

	"nchat/internal/infra/config"
)

// newTestNotifier возвращает Notifier с перехваченными командой и bell.
func newTestNotifier(t *testing.T, overrides map[string]string) (*Notifier, *[]string, *int) {
	t.Helper()
	settings := config.NewTestSettings(t.TempDir(), overrides)
	n := New(settings.UI)

	var commands []string
	bells := 0
	n.runCommand = func(cmd string) { commands = append(commands, cmd) }
	n.bell = func() { bells++ }
	return n, &commands, &bells
}

func TestDesktopNotifyMatrix(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name           string
		overrides      map[string]string
		terminalActive bool
		isCurrent      bool
		wantCommand    bool
	}{
		{
			name:           "activeNonCurrentEnabled",
			overrides:      map[string]string{"desktop_notify_enabled": "1"},
			terminalActive: true,
			isCurrent:      false,
			wantCommand:    true,
		},
		{
			name:           "activeCurrentDisabledByDefault",
			overrides:      map[string]string{"desktop_notify_enabled": "1"},
			terminalActive: true,
			isCurrent:      true,
			wantCommand:    false,
		},
		{
			name:           "inactiveEnabled",
			overrides:      map[string]string{"desktop_notify_enabled": "1"},
			terminalActive: false,
			isCurrent:      false,
			wantCommand:    true,
		},
		{
			name:           "masterSwitchOff",
			overrides:      nil, // desktop_notify_enabled=0 по умолчанию
			terminalActive: false,
			isCurrent:      false,
			wantCommand:    false,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n, commands, _ := newTestNotifier(t, tc.overrides)
			n.OnUnreadMessage("Alice", "hello", tc.terminalActive, tc.isCurrent)
			if got := len(*commands) > 0; got != tc.wantCommand {
				t.Fatalf("command run = %v, want %v (%v)", got, tc.wantCommand, *commands)
			}
		})
	}
}

func TestNotifyCommandTemplate(t *testing.T) {
	t.Parallel()

	n, commands, _ := newTestNotifier(t, map[string]string{
		"desktop_notify_enabled":  "1",
		"desktop_notify_inactive": "1",
		"desktop_notify_command":  `my-notify --title %1 --body %2`,
	})
	n.OnUnreadMessage("Alice", "hi there", false, false)

	if len(*commands) != 1 {
		t.Fatalf("commands = %v, want one", *commands)
	}
	cmd := (*commands)[0]
	if !strings.Contains(cmd, "Alice") || !strings.Contains(cmd, "hi there") {
		t.Fatalf("template not expanded: %q", cmd)
	}
}

func TestTerminalBell(t *testing.T) {
	t.Parallel()

	// По умолчанию: bell в неактивном терминале, тишина в активном.
	n, _, bells := newTestNotifier(t, nil)
	n.OnUnreadMessage("Alice", "hello", false, false)
	if *bells != 1 {
		t.Fatalf("inactive terminal bells = %d, want 1", *bells)
	}
	n.OnUnreadMessage("Alice", "hello", true, false)
	if *bells != 1 {
		t.Fatalf("active terminal must not bell by default, bells = %d", *bells)
	}
}
