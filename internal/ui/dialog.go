// File dialog.go: модальные диалоги (контакты, эмодзи, файлы, подтверждения).
//
// Каждый диалог — маленькая машина состояний Init → Input → Result. Ввод
// фильтруется по набранной строке относительно переданного набора элементов;
// выбор фиксирует результат и сворачивает диалог. Диалог получает снимок
// элементов при открытии и НЕ держит мьютекс модели во время чтения ввода —
// только короткие явные запросы на обновление.
package ui

import (
	"sort"
	"strings"
	"unicode"
)

// DialogState — фаза жизненного цикла диалога.
type DialogState int

const (
	DialogInit DialogState = iota
	DialogInput
	DialogResult
)

// ListItem — один элемент спискового диалога.
type ListItem struct {
	// Key — значение, возвращаемое как результат выбора.
	Key string
	// Text — отображаемая строка; по ней же идёт фильтрация.
	Text string
}

// ListDialog — списковый диалог с инкрементальным фильтром.
type ListDialog struct {
	state    DialogState
	items    []ListItem
	filtered []ListItem
	filter   []rune
	selected int

	showFilter bool

	// result заполнен в состоянии DialogResult; ok=false — отмена.
	result ListItem
	ok     bool
}

// NewListDialog создаёт диалог над снимком элементов вызывающего.
func NewListDialog(items []ListItem, showFilter bool) *ListDialog {
	d := &ListDialog{
		state:      DialogInit,
		items:      items,
		showFilter: showFilter,
	}
	d.applyFilter()
	d.state = DialogInput
	return d
}

// State возвращает текущую фазу.
func (d *ListDialog) State() DialogState { return d.state }

// Filter возвращает набранную строку фильтра.
func (d *ListDialog) Filter() string { return string(d.filter) }

// Items возвращает отфильтрованные элементы для отрисовки.
func (d *ListDialog) Items() []ListItem { return d.filtered }

// Selected возвращает индекс подсвеченного элемента.
func (d *ListDialog) Selected() int { return d.selected }

// Result возвращает выбранный элемент и признак подтверждения.
func (d *ListDialog) Result() (ListItem, bool) { return d.result, d.ok }

// applyFilter пересчитывает filtered по текущей строке фильтра.
// Сопоставление без учёта регистра по подстроке; порядок стабилен.
func (d *ListDialog) applyFilter() {
	needle := strings.ToLower(string(d.filter))
	d.filtered = d.filtered[:0]
	for _, item := range d.items {
		if needle == "" || strings.Contains(strings.ToLower(item.Text), needle) {
			d.filtered = append(d.filtered, item)
		}
	}
	sort.SliceStable(d.filtered, func(i, j int) bool {
		return d.filtered[i].Text < d.filtered[j].Text
	})
	if d.selected >= len(d.filtered) {
		d.selected = len(d.filtered) - 1
	}
	if d.selected < 0 {
		d.selected = 0
	}
}

// HandleKey обрабатывает клавишу. Возвращает true, когда диалог завершён
// (подтверждение либо отмена) и вызывающий должен забрать Result.
func (d *ListDialog) HandleKey(kc *KeyConfig, code KeyCode) bool {
	if d.state != DialogInput {
		return true
	}
	switch code {
	case kc.Get("cancel"):
		d.ok = false
		d.state = DialogResult
		return true
	case kc.Get("ok"):
		if len(d.filtered) > 0 {
			d.result = d.filtered[d.selected]
			d.ok = true
		}
		d.state = DialogResult
		return true
	case kc.Get("up"):
		if d.selected > 0 {
			d.selected--
		}
	case kc.Get("down"):
		if d.selected < len(d.filtered)-1 {
			d.selected++
		}
	case kc.Get("backspace"), 127:
		if len(d.filter) > 0 {
			d.filter = d.filter[:len(d.filter)-1]
			d.applyFilter()
		}
	default:
		if d.showFilter && code >= 32 && unicode.IsPrint(rune(code)) {
			d.filter = append(d.filter, rune(code))
			d.applyFilter()
		}
	}
	return false
}

// MessageDialog — модальное сообщение с подтверждением (ok/cancel).
type MessageDialog struct {
	state DialogState
	text  string
	ok    bool
}

// NewMessageDialog создаёт диалог с текстом.
func NewMessageDialog(text string) *MessageDialog {
	return &MessageDialog{state: DialogInput, text: text}
}

// Text возвращает отображаемый текст.
func (d *MessageDialog) Text() string { return d.text }

// State возвращает текущую фазу.
func (d *MessageDialog) State() DialogState { return d.state }

// Confirmed сообщает, подтвердил ли пользователь диалог.
func (d *MessageDialog) Confirmed() bool { return d.ok }

// HandleKey обрабатывает клавишу; true — диалог завершён.
func (d *MessageDialog) HandleKey(kc *KeyConfig, code KeyCode) bool {
	if d.state != DialogInput {
		return true
	}
	switch code {
	case kc.Get("ok"):
		d.ok = true
		d.state = DialogResult
		return true
	case kc.Get("cancel"):
		d.ok = false
		d.state = DialogResult
		return true
	}
	return false
}
