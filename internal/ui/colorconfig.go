// File colorconfig.go: color.conf. Пары ключей *_fg / *_bg принимают имя
// цвета ("red", "bright_red", "gray"), hex-код "0xRRGGBB", числовой id
// палитры либо пустую строку — «цвет по умолчанию». Hex требует терминала,
// умеющего переопределять палитру; иначе значение молча откатывается к
// умолчанию. Возможности терминала инжектируются, чтобы разбор был
// тестируемым без curses.
package ui

import (
	"strconv"
	"strings"

	"nchat/internal/infra/config"
	"nchat/internal/infra/logger"
)

// ColorDefault — «использовать цвет терминала по умолчанию».
const ColorDefault = -1

// Attr — текстовый атрибут отрисовки.
type Attr int

const (
	AttrNormal Attr = iota
	AttrUnderline
	AttrReverse
	AttrBold
	AttrItalic
)

// TermCaps — возможности терминала, важные для разбора цветов.
type TermCaps struct {
	HasColors      bool
	Colors         int
	CanChangeColor bool
	// DefinePalette переопределяет запись палитры id значениями 0..1000;
	// nil допустим, если CanChangeColor=false.
	DefinePalette func(id int, r, g, b int)
}

// ColorConfig — разобранный color.conf.
type ColorConfig struct {
	file *config.File
	caps TermCaps
	// nextCustomID — последний выделенный id для hex-цветов (очередной
	// получает nextCustomID+1); первые записи палитры не трогаем, они заняты
	// стандартными цветами.
	nextCustomID int
}

// colorDefaults — ключи color.conf. Цвет исходящих (sent) подбирается по числу
// цветов терминала, как и в остальных клиентах семейства.
func colorDefaults(colors int) map[string]string {
	sent := ""
	if colors > 8 {
		sent = "gray"
	}
	return map[string]string{
		"top_attr":     "reverse",
		"top_color_bg": "",
		"top_color_fg": "",

		"help_attr":     "reverse",
		"help_color_bg": "black",
		"help_color_fg": "white",

		"entry_attr":     "",
		"entry_color_bg": "",
		"entry_color_fg": "",

		"status_attr":     "reverse",
		"status_color_bg": "",
		"status_color_fg": "",

		"list_attr":          "",
		"list_attr_selected": "bold",
		"list_color_bg":      "",
		"list_color_fg":      "",

		"history_text_attr":          "",
		"history_text_attr_selected": "reverse",
		"history_text_sent_color_bg": "",
		"history_text_sent_color_fg": sent,
		"history_text_recv_color_bg": "",
		"history_text_recv_color_fg": "",

		"history_name_attr":          "bold",
		"history_name_attr_selected": "reverse",
		"history_name_sent_color_bg": "",
		"history_name_sent_color_fg": sent,
		"history_name_recv_color_bg": "",
		"history_name_recv_color_fg": "",

		"dialog_attr":          "",
		"dialog_attr_selected": "reverse",
		"dialog_color_bg":      "",
		"dialog_color_fg":      "",
	}
}

// NewColorConfig загружает color.conf поверх дефолтов под данный терминал.
func NewColorConfig(path string, caps TermCaps) *ColorConfig {
	return &ColorConfig{
		file:         config.LoadFile(path, colorDefaults(caps.Colors)),
		caps:         caps,
		nextCustomID: 31,
	}
}

// ColorPair возвращает цвета fg/bg для ключа ("status" → status_color_fg/bg).
func (cc *ColorConfig) ColorPair(param string) (fg int, bg int) {
	if !cc.caps.HasColors {
		return ColorDefault, ColorDefault
	}
	return cc.ColorID(cc.file.Get(param + "_color_fg")),
		cc.ColorID(cc.file.Get(param + "_color_bg"))
}

// Attribute возвращает атрибут для ключа ("status" → status_attr).
func (cc *ColorConfig) Attribute(param string) Attr {
	switch cc.file.Get(param + "_attr") {
	case "underline":
		return AttrUnderline
	case "reverse":
		return AttrReverse
	case "bold":
		return AttrBold
	case "italic":
		return AttrItalic
	default:
		return AttrNormal
	}
}

// standardColorID сопоставляет имя цвета номеру палитры. bright-варианты и
// gray доступны только на терминалах с расширенной палитрой.
func (cc *ColorConfig) standardColorID(name string) (int, bool) {
	basic := map[string]int{
		"black": 0, "red": 1, "green": 2, "yellow": 3,
		"blue": 4, "magenta": 5, "cyan": 6, "white": 7,
	}
	if id, ok := basic[name]; ok {
		return id, true
	}
	if cc.caps.Colors > 8 {
		const bright = 8
		if name == "gray" {
			return bright, true
		}
		if base, ok := basic[strings.TrimPrefix(name, "bright_")]; ok && strings.HasPrefix(name, "bright_") {
			return bright | base, true
		}
	}
	return 0, false
}

// ColorID разбирает значение цвета в номер палитры.
func (cc *ColorConfig) ColorID(value string) int {
	if value == "" {
		return ColorDefault
	}

	// hex: 0xRRGGBB — только на терминалах с перенастраиваемой палитрой.
	if len(value) == 8 && strings.HasPrefix(value, "0x") {
		if !cc.caps.CanChangeColor || cc.caps.DefinePalette == nil {
			logger.Warnf("colorconfig: terminal cannot set custom hex colors, skipping %q", value)
			return ColorDefault
		}
		rgb, err := strconv.ParseUint(value[2:], 16, 32)
		if err != nil {
			logger.Warnf("colorconfig: invalid color hex code %q", value)
			return ColorDefault
		}
		cc.nextCustomID++
		if cc.nextCustomID > cc.caps.Colors {
			logger.Warnf("colorconfig: max number of colors (%d) already defined, skipping %q",
				cc.caps.Colors, value)
			return ColorDefault
		}
		r := int(rgb >> 16 & 0xff)
		g := int(rgb >> 8 & 0xff)
		b := int(rgb & 0xff)
		cc.caps.DefinePalette(cc.nextCustomID, r*1000/255, g*1000/255, b*1000/255)
		return cc.nextCustomID
	}

	if id, ok := cc.standardColorID(value); ok {
		return id
	}

	if id, err := strconv.Atoi(value); err == nil {
		return id
	}

	logger.Warnf("colorconfig: unknown color %q", value)
	return ColorDefault
}

// Save фиксирует color.conf на диске.
func (cc *ColorConfig) Save() error { return cc.file.Save() }
