// Package ui — граница вью: конфигурация клавиш и цветов, модальные диалоги
// и интерфейс отрисовки, управляемый dirty-флагами модели. Само клеточное
// рисование терминала живёт за интерфейсом View и в ядро не входит.
//
// File keyconfig.go: key.conf. Значения — идентификаторы вида KEY_CTRLA /
// KEY_F1, одиночные печатные символы, сырые hex-коды ("0x09"), одиночные
// октальные экранировки ("\11") и многобайтовые октальные последовательности
// ("\33\57" для Alt-комбинаций). Для многобайтовых последовательностей
// выделяются виртуальные коды из Unicode Private Use Area, чтобы декодер
// ввода мог отдавать их одной руной.
package ui

import (
	"strconv"
	"strings"
	"unicode"

	"nchat/internal/infra/config"
	"nchat/internal/infra/logger"
)

// KeyCode — код клавиши. Обычные символы — их код-пойнт; специальные клавиши
// и многобайтовые последовательности — код-пойнты из PUA.
type KeyCode rune

// KeyNone — «клавиша не назначена».
const KeyNone KeyCode = -1

// Специальные клавиши занимают фиксированные PUA-коды; динамический
// аллокатор последовательностей начинается выше, чтобы диапазоны не
// пересекались.
const (
	keySpecialBase = 0xE000
	puaAllocBase   = 0xE800
	puaAllocLimit  = 0xF8FF
)

// Фиксированные специальные клавиши.
const (
	KeyUp KeyCode = keySpecialBase + iota
	KeyDown
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
	KeyPrevPage
	KeyNextPage
	KeyBackspace
	KeyDelete
	KeyBackTab
	KeyFocusIn
	KeyFocusOut
	KeyResize
	keyFunctionBase // KEY_F0..KEY_F12 идут подряд от этой базы
)

// KeyConfig — разобранный key.conf: действие → код клавиши.
type KeyConfig struct {
	file  *config.File
	codes map[string]KeyCode // имя KEY_* → код

	// seqCodes — октальная запись последовательности → виртуальный код;
	// seqBytes — байты последовательности → виртуальный код (для декодера).
	seqCodes map[string]KeyCode
	seqBytes map[string]KeyCode
	nextPUA  KeyCode
}

// keyDefaults — привязки по умолчанию (действие → имя/последовательность).
func keyDefaults() map[string]string {
	return map[string]string{
		"cancel":                    "KEY_CTRLC",
		"quit":                      "KEY_CTRLQ",
		"left":                      "KEY_LEFT",
		"right":                     "KEY_RIGHT",
		"ok":                        "KEY_RETURN",
		"prev_page":                 "KEY_PPAGE",
		"next_page":                 "KEY_NPAGE",
		"down":                      "KEY_DOWN",
		"up":                        "KEY_UP",
		"end":                       "KEY_END",
		"home":                      "KEY_HOME",
		"backspace":                 "KEY_BACKSPACE",
		"delete":                    "KEY_DC",
		"delete_line_after_cursor":  "KEY_CTRLK",
		"delete_line_before_cursor": "KEY_CTRLU",
		"begin_line":                "KEY_CTRLA",
		"end_line":                  "KEY_CTRLE",
		"edit_msg":                  "KEY_CTRLZ",
		"ext_edit":                  `\33\145`,
		"open_msg":                  `\33\167`,
		"react":                     `\33\163`,
		"find":                      `\33\57`,
		"find_next":                 `\33\77`,
		"toggle_emoji":              "KEY_CTRLY",
		"toggle_help":               "KEY_CTRLG",
		"toggle_list":               "KEY_CTRLL",
		"toggle_top":                "KEY_CTRLP",
		"next_chat":                 "KEY_TAB",
		"prev_chat":                 "KEY_BTAB",
		"unread_chat":               "KEY_CTRLF",
		"send_msg":                  "KEY_CTRLX",
		"delete_msg":                "KEY_CTRLD",
		"delete_chat":               `\33\144`,
		"open":                      "KEY_CTRLV",
		"open_link":                 "KEY_CTRLW",
		"save":                      "KEY_CTRLR",
		"transfer":                  "KEY_CTRLT",
		"select_emoji":              "KEY_CTRLS",
		"select_contact":            "KEY_CTRLN",
		"other_commands_help":       "KEY_CTRLO",
		"terminal_focus_in":         "KEY_FOCUS_IN",
		"terminal_focus_out":        "KEY_FOCUS_OUT",
		"terminal_resize":           "KEY_RESIZE",
	}
}

// NewKeyConfig загружает key.conf поверх дефолтов. linefeedOnEnter выбирает
// код KEY_RETURN (10 либо 13), как это делает терминальный ввод.
func NewKeyConfig(path string, linefeedOnEnter bool) *KeyConfig {
	kc := &KeyConfig{
		file:     config.LoadFile(path, keyDefaults()),
		codes:    make(map[string]KeyCode),
		seqCodes: make(map[string]KeyCode),
		seqBytes: make(map[string]KeyCode),
		nextPUA:  puaAllocBase,
	}
	kc.initKeyCodes(linefeedOnEnter)
	return kc
}

// initKeyCodes заполняет карту имён KEY_* кодами.
func (kc *KeyConfig) initKeyCodes(linefeedOnEnter bool) {
	returnCode := KeyCode(13)
	if linefeedOnEnter {
		returnCode = 10
	}
	kc.codes = map[string]KeyCode{
		"KEY_TAB":           9,
		"KEY_SPACE":         32,
		"KEY_RETURN":        returnCode,
		"KEY_NONE":          KeyNone,
		"KEY_ALT_BACKSPACE": 127,

		"KEY_DOWN":      KeyDown,
		"KEY_UP":        KeyUp,
		"KEY_LEFT":      KeyLeft,
		"KEY_RIGHT":     KeyRight,
		"KEY_HOME":      KeyHome,
		"KEY_END":       KeyEnd,
		"KEY_PPAGE":     KeyPrevPage,
		"KEY_NPAGE":     KeyNextPage,
		"KEY_BACKSPACE": KeyBackspace,
		"KEY_DC":        KeyDelete,
		"KEY_BTAB":      KeyBackTab,
		"KEY_RESIZE":    KeyResize,
	}
	// Ctrl-клавиши: KEY_CTRL@ = 0, KEY_CTRLA..KEY_CTRLZ = 1..26 и далее
	// пунктуация до 31.
	ctrlNames := "@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_"
	for i, r := range ctrlNames {
		kc.codes["KEY_CTRL"+string(r)] = KeyCode(i)
	}
	for i := 0; i <= 12; i++ {
		kc.codes["KEY_F"+strconv.Itoa(i)] = keyFunctionBase + KeyCode(i)
	}
	// Фокус терминала приходит escape-последовательностями 033[I / 033[O.
	kc.codes["KEY_FOCUS_IN"] = kc.virtualKeyCodeFromOct(`\033\133\111`)
	kc.codes["KEY_FOCUS_OUT"] = kc.virtualKeyCodeFromOct(`\033\133\117`)
}

// Get возвращает код клавиши для действия из key.conf.
func (kc *KeyConfig) Get(param string) KeyCode {
	return kc.KeyCodeOf(kc.file.Get(param))
}

// KeyCodeOf разбирает значение key.conf в код клавиши.
func (kc *KeyConfig) KeyCodeOf(keyName string) KeyCode {
	if code, ok := kc.codes[keyName]; ok {
		return code
	}
	if strings.HasPrefix(keyName, "0x") && len(keyName) > 2 {
		if v, err := strconv.ParseInt(keyName[2:], 16, 32); err == nil {
			return KeyCode(v)
		}
	}
	if runes := []rune(keyName); len(runes) == 1 && unicode.IsPrint(runes[0]) {
		return KeyCode(runes[0])
	}
	if strings.HasPrefix(keyName, `\`) {
		if strings.Count(keyName, `\`) > 1 {
			return kc.virtualKeyCodeFromOct(keyName)
		}
		if v, err := strconv.ParseInt(keyName[1:], 8, 32); err == nil {
			return KeyCode(v)
		}
	}
	logger.Warnf("keyconfig: unknown key %q", keyName)
	return KeyNone
}

// virtualKeyCodeFromOct возвращает виртуальный код для многобайтовой
// последовательности в октальной записи, резервируя новый PUA-код при первом
// обращении.
func (kc *KeyConfig) virtualKeyCodeFromOct(keyOct string) KeyCode {
	if code, ok := kc.seqCodes[keyOct]; ok {
		return code
	}
	code := kc.reserveVirtualKeyCode()
	seq := strFromOct(keyOct)
	kc.seqCodes[keyOct] = code
	kc.seqBytes[seq] = code
	logger.Debugf("keyconfig: define %q code 0x%x", keyOct, code)
	return code
}

// reserveVirtualKeyCode выделяет следующий свободный PUA-код.
func (kc *KeyConfig) reserveVirtualKeyCode() KeyCode {
	code := kc.nextPUA
	if code > puaAllocLimit {
		logger.Warn("keyconfig: virtual key code space exhausted")
		return KeyNone
	}
	kc.nextPUA++
	return code
}

// SequenceCodes возвращает карту байтовых последовательностей → код для
// декодера терминального ввода.
func (kc *KeyConfig) SequenceCodes() map[string]KeyCode {
	out := make(map[string]KeyCode, len(kc.seqBytes))
	for k, v := range kc.seqBytes {
		out[k] = v
	}
	return out
}

// KeyName возвращает имя KEY_* для кода (пустая строка, если безымянный).
func (kc *KeyConfig) KeyName(code KeyCode) string {
	for name, c := range kc.codes {
		if c == code {
			return name
		}
	}
	return ""
}

// Save фиксирует key.conf на диске.
func (kc *KeyConfig) Save() error { return kc.file.Save() }

// strFromOct превращает запись "\33\57" в байтовую строку "\x1b/".
func strFromOct(oct string) string {
	var b strings.Builder
	for _, part := range strings.Split(oct, `\`) {
		if part == "" {
			continue
		}
		if v, err := strconv.ParseInt(part, 8, 32); err == nil {
			b.WriteRune(rune(v))
		}
	}
	return b.String()
}
