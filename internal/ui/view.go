// File view.go: граница слоя отрисовки.
//
// Модель ничего не знает о клетках терминала: она выставляет dirty-флаги, а
// набор вью перерисовывает то, что помечено. Здесь определён интерфейс View
// и вспомогательные сведения о терминале (размер, признак tty) через x/term.
package ui

import (
	"os"

	"golang.org/x/term"

	"nchat/internal/model"
)

// View — одна панель интерфейса (список чатов, история, строка ввода,
// статус, top, help). Перерисовка вызывается главным циклом, когда маска
// затронутых флагов пересекается с маской панели.
type View interface {
	// DirtyMask — флаги модели, при которых панель требует перерисовки.
	DirtyMask() model.Dirty
	// Draw перерисовывает панель; вызывается под мьютексом модели с
	// guard-свидетельством (панели читают состояние через locked-API).
	Draw(g *model.Guard)
}

// Terminal — сведения о терминале для вью и политики mark-read.
type Terminal struct {
	fd int
}

// NewTerminal привязывается к stdout.
func NewTerminal() *Terminal {
	return &Terminal{fd: int(os.Stdout.Fd())}
}

// IsTTY сообщает, действительно ли вывод — терминал.
func (t *Terminal) IsTTY() bool {
	return term.IsTerminal(t.fd)
}

// Size возвращает (columns, rows); при ошибке — разумный минимум 80x24.
func (t *Terminal) Size() (int, int) {
	w, h, err := term.GetSize(t.fd)
	if err != nil || w <= 0 || h <= 0 {
		return 80, 24
	}
	return w, h
}

// HistoryViewLines вычисляет H — высоту окна истории при текущем размере
// терминала и высоте строки ввода из ui.conf.
func (t *Terminal) HistoryViewLines(entryHeight int) int {
	_, rows := t.Size()
	// Верхняя и статусная строки занимают по одной строке.
	lines := rows - entryHeight - 2
	if lines < 1 {
		lines = 1
	}
	return lines
}
