// Package notify — конвейер пользовательских уведомлений: запуск внешней
// команды desktop-уведомления и терминальный bell. Решение «уведомлять или
// нет» различает фокус терминала (active/inactive) и принадлежность
// сообщения текущему чату (current/non-current); обе матрицы настраиваются
// в ui.conf.
package notify

import (
	"os"
	"os/exec"
	"strings"

	"nchat/internal/infra/config"
	"nchat/internal/infra/logger"
)

// Notifier выполняет уведомления. Внешняя команда запускается в фоне и не
// трогает терминал; bell пишется в stderr, чтобы не мешать отрисовке stdout.
type Notifier struct {
	ui *config.File
	// runCommand подменяется в тестах; по умолчанию — запуск через шелл.
	runCommand func(cmd string)
	// bell подменяется в тестах; по умолчанию — '\a' в stderr.
	bell func()
}

// New создаёт Notifier поверх ui.conf.
func New(ui *config.File) *Notifier {
	return &Notifier{
		ui: ui,
		runCommand: func(cmd string) {
			c := exec.Command("/bin/sh", "-c", cmd)
			if err := c.Start(); err != nil {
				logger.Warnf("notify: start command: %v", err)
				return
			}
			// Не ждём завершения: уведомление не должно блокировать модель.
			go func() { _ = c.Wait() }()
		},
		bell: func() { _, _ = os.Stderr.WriteString("\a") },
	}
}

// defaultNotifyCommand — стандартная команда, если desktop_notify_command пуст.
const defaultNotifyCommand = `notify-send 'nchat' '%1: %2'`

// OnUnreadMessage обрабатывает новое непрочитанное входящее сообщение:
// при разрешающей конфигурации запускает desktop-команду (шаблон с %1 =
// имя отправителя, %2 = текст) и/или звонит в терминальный bell.
func (n *Notifier) OnUnreadMessage(senderName, text string, terminalActive, isCurrentChat bool) {
	if n == nil {
		return
	}
	if n.shouldDesktopNotify(terminalActive, isCurrentChat) {
		cmd := n.ui.Get("desktop_notify_command")
		if strings.TrimSpace(cmd) == "" {
			cmd = defaultNotifyCommand
		}
		cmd = strings.ReplaceAll(cmd, "%1", shellQuote(senderName))
		cmd = strings.ReplaceAll(cmd, "%2", shellQuote(text))
		n.runCommand(cmd)
	}
	if n.shouldBell(terminalActive) {
		n.bell()
	}
}

// shouldDesktopNotify сверяет матрицу active×current из ui.conf.
func (n *Notifier) shouldDesktopNotify(terminalActive, isCurrentChat bool) bool {
	if !n.ui.GetBool("desktop_notify_enabled") {
		return false
	}
	if terminalActive {
		if isCurrentChat {
			return n.ui.GetBool("desktop_notify_active_current")
		}
		return n.ui.GetBool("desktop_notify_active_noncurrent")
	}
	return n.ui.GetBool("desktop_notify_inactive")
}

// shouldBell различает фокус терминала.
func (n *Notifier) shouldBell(terminalActive bool) bool {
	if terminalActive {
		return n.ui.GetBool("terminal_bell_active")
	}
	return n.ui.GetBool("terminal_bell_inactive")
}

// shellQuote экранирует подстановку для безопасной передачи через sh -c.
func shellQuote(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}
