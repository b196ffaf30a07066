// File runner.go: главный цикл событий.
//
// Главный поток владеет терминалом: опрашивает ввод с таймаутом 50 мс,
// маршрутизирует клавиши в модель, перерисовывает помеченные панели и
// исполняет отложенные действия над файлами. Пока бэкенд держит захват
// терминала, перерисовка и маршрутизация приостановлены — цикл ждёт
// освобождения на канале, не опрашивая по таймеру.
package app

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime/debug"
	"strings"
	"time"
	"unicode"

	"nchat/internal/extprog"
	"nchat/internal/infra/logger"
	"nchat/internal/model"
	"nchat/internal/protocol"
	"nchat/internal/ui"
)

// keyPollTimeout — период опроса ввода; он же — верхняя граница задержки
// реакции на dirty-флаги, выставленные из потоков бэкендов.
const keyPollTimeout = 50 * time.Millisecond

// RegisterView подключает панель к перерисовке.
func (a *App) RegisterView(v ui.View) {
	a.views = append(a.views, v)
}

// Run — главный цикл; блокируется до завершения. Паника в цикле приводит к
// восстановлению терминала, дампу стека в лог и на stderr и повторному
// возбуждению — поведение фатального сигнала.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			restoreTerminal()
			stack := debug.Stack()
			logger.Errorf("fatal: %v\n%s", r, stack)
			fmt.Fprintf(os.Stderr, "fatal: %v\n%s", r, stack)
			panic(r)
		}
	}()

	keyReader, err := ui.NewKeyReader(a.keyCfg.SequenceCodes())
	if err != nil {
		return fmt.Errorf("init key reader: %w", err)
	}
	defer keyReader.Close()

	a.mdl.With(func(g *model.Guard) {
		a.mdl.SetHistoryViewLines(g, a.terminal.HistoryViewLines(a.settings.UI.GetNum("entry_height")))
	})
	a.mdl.MarkDirty(model.DirtyAll)

	for a.mdl.Running() {
		select {
		case <-ctx.Done():
			a.mdl.Quit()
		default:
		}

		// Захват терминала бэкендом: ждём освобождения без перерисовки.
		if a.mdl.UiControlHeld() {
			a.mdl.WaitUiControlRelease()
			continue
		}

		select {
		case code := <-keyReader.Keys():
			a.handleKey(code)
		case <-time.After(keyPollTimeout):
		case <-ctx.Done():
			a.mdl.Quit()
		}

		a.redraw()
		a.runFileActions()
	}

	a.shutdown()
	return nil
}

// shutdown гасит подсистемы и фиксирует конфигурацию.
func (a *App) shutdown() {
	if a.stopApp != nil {
		a.stopApp()
	}
	if err := a.lc.Shutdown(); err != nil {
		logger.Warnf("app: shutdown: %v", err)
	}
	a.settings.Save()
	if err := a.keyCfg.Save(); err != nil {
		logger.Warnf("app: save key.conf: %v", err)
	}
	if err := a.colorCfg.Save(); err != nil {
		logger.Warnf("app: save color.conf: %v", err)
	}
}

// redraw перерисовывает панели, чья маска пересекается с накопленными
// dirty-флагами.
func (a *App) redraw() {
	dirty := a.mdl.DrainDirty()
	if dirty == 0 {
		return
	}
	a.mdl.With(func(g *model.Guard) {
		for _, v := range a.views {
			if v.DirtyMask()&dirty != 0 {
				v.Draw(g)
			}
		}
	})
}

// runFileActions исполняет отложенные открытия/сохранения вложений вне лока.
func (a *App) runFileActions() {
	for _, fa := range a.mdl.DrainFileActions() {
		template := a.settings.UI.Get("attachment_open_command")
		if template == "" {
			template = "xdg-open %1 &"
		}
		if fa.Action == protocol.DownloadFileActionOpen {
			_ = a.runner.Run(template, fa.Path)
		}
	}
}

// handleKey маршрутизирует клавишу: именованные действия из key.conf — в
// соответствующие методы модели, остальное — в строку ввода.
func (a *App) handleKey(code ui.KeyCode) {
	// Фокус терминала и внешний редактор не живут под локом модели —
	// обрабатываем до его захвата.
	switch a.keyActions[code] {
	case "terminal_focus_in":
		a.mdl.SetTerminalActive(true)
		return
	case "terminal_focus_out":
		a.mdl.SetTerminalActive(false)
		return
	case "ext_edit":
		a.composeExternal()
		return
	case "open_msg":
		a.openSelectedMessage()
		return
	}

	a.mdl.With(func(g *model.Guard) {
		a.mdl.AnyKeyPressed(g)

		switch a.keyActions[code] {
		case "quit":
			a.mdl.Quit()
			return
		case "cancel":
			a.mdl.OnKeyCancel(g)
			return
		case "up":
			a.mdl.OnKeyUp(g)
			return
		case "down":
			a.mdl.OnKeyDown(g)
			return
		case "prev_page":
			a.mdl.OnKeyPrevPage(g)
			return
		case "next_page":
			a.mdl.OnKeyNextPage(g)
			return
		case "home":
			a.mdl.OnKeyHome(g)
			return
		case "end":
			a.mdl.OnKeyEnd(g)
			return
		case "next_chat":
			a.mdl.OnKeyNextChat(g)
			return
		case "prev_chat":
			a.mdl.OnKeyPrevChat(g)
			return
		case "unread_chat":
			a.mdl.OnKeyUnreadChat(g)
			return
		case "send_msg", "ok":
			a.mdl.OnKeyReturn(g)
			return
		case "edit_msg":
			a.mdl.OnKeyEdit(g)
			return
		case "delete_msg":
			a.mdl.OnKeyDeleteMsg(g)
			return
		case "delete_chat":
			a.mdl.OnKeyDeleteChat(g)
			return
		case "open":
			a.mdl.DownloadSelectedAttachment(g, protocol.DownloadFileActionOpen)
			return
		case "save":
			a.mdl.DownloadSelectedAttachment(g, protocol.DownloadFileActionSave)
			return
		case "backspace":
			a.mdl.EntryBackspace(g)
			return
		case "terminal_resize":
			a.mdl.SetHistoryViewLines(g, a.terminal.HistoryViewLines(a.settings.UI.GetNum("entry_height")))
			a.mdl.MarkDirty(model.DirtyAll)
			return
		}

		if r := rune(code); unicode.IsPrint(r) || r == '\n' || r == '\t' {
			a.mdl.EntryRune(g, r)
		}
	})
}

// composeExternal открывает текущий ввод во внешнем редакторе
// (message_edit_command либо $EDITOR) и возвращает результат в строку ввода.
// Мьютекс модели не удерживается на время работы редактора.
func (a *App) composeExternal() {
	var text string
	a.mdl.With(func(g *model.Guard) { text = a.mdl.EntryText(g) })

	tmp, err := os.CreateTemp(a.settings.Dirs.Temp, "compose-*.txt")
	if err != nil {
		logger.Warnf("app: compose temp: %v", err)
		return
	}
	path := tmp.Name()
	defer func() { _ = os.Remove(path) }()
	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		return
	}
	_ = tmp.Close()

	template := a.settings.UI.Get("message_edit_command")
	if template == "" {
		template = extprog.DefaultEditor()
	}
	if err := a.runner.Run(template, path); err != nil {
		return
	}
	edited, err := os.ReadFile(path)
	if err != nil {
		return
	}
	a.mdl.With(func(g *model.Guard) {
		a.mdl.SetEntryText(g, strings.TrimRight(string(edited), "\n"))
	})
}

// openSelectedMessage показывает выбранное сообщение в пейджере
// (message_open_command либо $PAGER). Удобно для длинных сообщений.
func (a *App) openSelectedMessage() {
	var text string
	a.mdl.With(func(g *model.Guard) {
		if msg := a.mdl.SelectedMessage(g); msg != nil {
			text = msg.Text
		}
	})
	if text == "" {
		return
	}

	tmp, err := os.CreateTemp(a.settings.Dirs.Temp, "message-*.txt")
	if err != nil {
		logger.Warnf("app: message temp: %v", err)
		return
	}
	path := tmp.Name()
	defer func() { _ = os.Remove(path) }()
	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		return
	}
	_ = tmp.Close()

	template := a.settings.UI.Get("message_open_command")
	if template == "" {
		template = extprog.DefaultPager()
	}
	_ = a.runner.Run(template, path)
}

// restoreTerminal возвращает терминал в рабочее состояние после фатальной
// ошибки (аналог `reset`).
func restoreTerminal() {
	_ = exec.Command("reset").Run()
}
