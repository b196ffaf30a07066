// File keyinput.go: декодер терминального ввода.
//
// Читает stdin в raw-режиме (x/term) фоновой горутиной и отдаёт коды клавиш
// в канал; главный цикл опрашивает канал с таймаутом. Многобайтовые
// escape-последовательности сопоставляются с виртуальными PUA-кодами,
// зарезервированными KeyConfig, и с таблицей стандартных CSI-последовательностей.
package ui

import (
	"os"
	"time"
	"unicode/utf8"

	"golang.org/x/term"

	"nchat/internal/infra/logger"
)

// escSeqTimeout — пауза, после которой одиночный ESC считается клавишей,
// а не началом последовательности.
const escSeqTimeout = 50 * time.Millisecond

// csiCodes — стандартные CSI/SS3-последовательности терминалов.
var csiCodes = map[string]KeyCode{
	"\x1b[A":  KeyUp,
	"\x1b[B":  KeyDown,
	"\x1b[C":  KeyRight,
	"\x1b[D":  KeyLeft,
	"\x1b[H":  KeyHome,
	"\x1b[F":  KeyEnd,
	"\x1b[1~": KeyHome,
	"\x1b[4~": KeyEnd,
	"\x1b[5~": KeyPrevPage,
	"\x1b[6~": KeyNextPage,
	"\x1b[3~": KeyDelete,
	"\x1b[Z":  KeyBackTab,
	"\x1b[I":  KeyFocusIn,
	"\x1b[O":  KeyFocusOut,
	"\x1bOH":  KeyHome,
	"\x1bOF":  KeyEnd,
	"\x1bOP":  keyFunctionBase + 1,
	"\x1bOQ":  keyFunctionBase + 2,
	"\x1bOR":  keyFunctionBase + 3,
	"\x1bOS":  keyFunctionBase + 4,
}

// KeyReader декодирует байтовый поток stdin в коды клавиш.
type KeyReader struct {
	keys     chan KeyCode
	seqCodes map[string]KeyCode
	restore  func()
	stop     chan struct{}
}

// NewKeyReader переводит stdin в raw-режим и запускает горутину чтения.
// seqCodes — пользовательские последовательности из KeyConfig.
func NewKeyReader(seqCodes map[string]KeyCode) (*KeyReader, error) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	r := &KeyReader{
		keys:     make(chan KeyCode, 64),
		seqCodes: seqCodes,
		restore:  func() { _ = term.Restore(fd, oldState) },
		stop:     make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

// Keys возвращает канал кодов клавиш.
func (r *KeyReader) Keys() <-chan KeyCode { return r.keys }

// Close восстанавливает режим терминала. Горутина чтения завершится на
// следующем чтении после закрытия stdin процессом.
func (r *KeyReader) Close() {
	close(r.stop)
	r.restore()
}

// readLoop читает stdin посимвольно и собирает escape-последовательности.
func (r *KeyReader) readLoop() {
	buf := make([]byte, 64)
	var pending []byte
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			logger.Debugf("keyinput: stdin closed: %v", err)
			return
		}
		select {
		case <-r.stop:
			return
		default:
		}
		pending = append(pending, buf[:n]...)
		pending = r.drain(pending)
	}
}

// drain извлекает из накопленного буфера все распознаваемые клавиши и
// возвращает недоеденный хвост (начало незавершённой последовательности).
func (r *KeyReader) drain(data []byte) []byte {
	for len(data) > 0 {
		if data[0] == 0x1b {
			if len(data) == 1 {
				// ESC — последний байт чтения: после паузы escSeqTimeout он
				// отдаётся клавишей; байты следующего чтения разбираются
				// отдельно и с этим ESC не склеиваются.
				time.Sleep(escSeqTimeout)
				r.emit(KeyCode(0x1b))
				return nil
			}
			code, consumed := r.matchSequence(data)
			if consumed == 0 {
				// Незавершённая последовательность — ждём байтов.
				return data
			}
			r.emit(code)
			data = data[consumed:]
			continue
		}
		ru, size := utf8.DecodeRune(data)
		if ru == utf8.RuneError && size == 1 && !utf8.FullRune(data) {
			return data // неполная UTF-8 руна
		}
		r.emit(KeyCode(ru))
		data = data[size:]
	}
	return nil
}

// matchSequence пытается распознать escape-последовательность в начале data.
// Возвращает код и число съеденных байтов; (0,0) — данных пока мало.
func (r *KeyReader) matchSequence(data []byte) (KeyCode, int) {
	// Сначала пользовательские последовательности (длиннейшее совпадение).
	best := 0
	var bestCode KeyCode
	for seq, code := range r.seqCodes {
		if len(seq) > len(data) {
			if len(data) < len(seq) && string(data) == seq[:len(data)] {
				return 0, 0 // префикс более длинной последовательности
			}
			continue
		}
		if string(data[:len(seq)]) == seq && len(seq) > best {
			best = len(seq)
			bestCode = code
		}
	}
	for seq, code := range csiCodes {
		if len(seq) > len(data) {
			if string(data) == seq[:len(data)] {
				return 0, 0
			}
			continue
		}
		if string(data[:len(seq)]) == seq && len(seq) > best {
			best = len(seq)
			bestCode = code
		}
	}
	if best > 0 {
		return bestCode, best
	}
	// Alt-<символ>: ESC + печатный байт.
	if len(data) >= 2 {
		if code, ok := r.seqCodes[string(data[:2])]; ok {
			return code, 2
		}
		// Неизвестная последовательность: отдаём голый ESC.
		return KeyCode(0x1b), 1
	}
	return 0, 0
}

// emit кладёт код в канал, не блокируясь при переполнении.
func (r *KeyReader) emit(code KeyCode) {
	select {
	case r.keys <- code:
	default:
		logger.Warn("keyinput: key buffer overflow, dropping key")
	}
}
