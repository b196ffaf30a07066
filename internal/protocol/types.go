// File types.go: структуры данных, которыми обмениваются бэкенды, кэш и UI.
package protocol

import (
	"encoding/hex"
	"maps"
	"math"
	"strconv"
	"strings"
)

// ContactInfo идентифицирует пользователя или группу.
type ContactInfo struct {
	ID    string
	Name  string
	Phone string
	// IsSelf отмечает залогиненного пользователя; его чат показывается как
	// "Saved Messages".
	IsSelf bool
	// IsAlias означает, что отображаемое имя — локальный алиас, а не имя из
	// адресной книги.
	IsAlias bool
}

// ChatInfo — ключ сортировки чата. Закреплённые чаты сортируются раньше
// незакреплённых; внутри класса закрепления больший LastMessageTime идёт
// первым, ничьи разрешаются по ID по возрастанию.
type ChatInfo struct {
	ID                    string
	IsUnread              bool
	IsUnreadMention       bool
	IsMuted               bool
	IsPinned              bool
	LastMessageTime       int64
	TranscriptionLanguage string
}

// FileStatus — состояние вложения сообщения.
type FileStatus int

const (
	FileStatusNone           FileStatus = -1
	FileStatusNotDownloaded  FileStatus = 0
	FileStatusDownloaded     FileStatus = 1
	FileStatusDownloading    FileStatus = 2
	FileStatusDownloadFailed FileStatus = 3
)

// FileInfo описывает вложение. В ChatMessage переносится в сериализованном
// hex-виде (поле FileInfo), чтобы кэш хранил его как непрозрачный блоб.
type FileInfo struct {
	FileStatus FileStatus
	FileID     string
	FilePath   string
	FileType   string
}

// fileInfoSep — разделитель полей в сериализации FileInfo до hex-кодирования.
// Управляющий символ не встречается в путях и идентификаторах.
const fileInfoSep = "\x1f"

// FileInfoToHex сериализует FileInfo в канонический hex-блоб.
func FileInfoToHex(fi FileInfo) string {
	plain := strings.Join([]string{
		strconv.Itoa(int(fi.FileStatus)),
		fi.FileID,
		fi.FilePath,
		fi.FileType,
	}, fileInfoSep)
	return hex.EncodeToString([]byte(plain))
}

// FileInfoFromHex разбирает hex-блоб обратно в FileInfo. Некорректный вход
// даёт нулевое значение со статусом FileStatusNone.
func FileInfoFromHex(s string) FileInfo {
	none := FileInfo{FileStatus: FileStatusNone}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return none
	}
	parts := strings.Split(string(raw), fileInfoSep)
	if len(parts) != 4 {
		return none
	}
	status, err := strconv.Atoi(parts[0])
	if err != nil {
		return none
	}
	return FileInfo{
		FileStatus: FileStatus(status),
		FileID:     parts[1],
		FilePath:   parts[2],
		FileType:   parts[3],
	}
}

// ReactionsSelfID — фиксированный идентификатор отправителя собственной
// реакции в SenderEmojis.
const ReactionsSelfID = "You"

// Reactions — реакции на сообщение. Флаги консолидации указывают кэшу
// сливать входящее состояние с сохранённым вместо перезаписи.
type Reactions struct {
	// NeedConsolidationWithCache: перед использованием требуется слияние с кэшем.
	NeedConsolidationWithCache bool
	// UpdateCountBasedOnSender: счётчики нужно пересчитать по SenderEmojis.
	UpdateCountBasedOnSender bool
	// ReplaceCount: счётчики заменяются целиком.
	ReplaceCount bool
	SenderEmojis map[string]string
	EmojiCounts  map[string]int
}

// Equal сравнивает наблюдаемое состояние реакций (карты), игнорируя флаги
// консолидации. Оригинальный operator!= содержал опечатку (возвращал
// результат ==); здесь реализовано честное отрицание.
func (r Reactions) Equal(other Reactions) bool {
	return maps.Equal(r.SenderEmojis, other.SenderEmojis) &&
		maps.Equal(r.EmojiCounts, other.EmojiCounts)
}

// Empty сообщает, есть ли хоть одна реакция.
func (r Reactions) Empty() bool {
	return len(r.SenderEmojis) == 0 && len(r.EmojiCounts) == 0
}

// Clone возвращает глубокую копию (карты не разделяются).
func (r Reactions) Clone() Reactions {
	out := r
	out.SenderEmojis = maps.Clone(r.SenderEmojis)
	out.EmojiCounts = maps.Clone(r.EmojiCounts)
	return out
}

// TimeSentSponsored — зарезервированное значение TimeSent для спонсорских
// сообщений. Такие сообщения сортируются по этому полю как обычно, но
// исключаются из вычислений "самого свежего" сообщения чата.
const TimeSentSponsored = int64(math.MaxInt64)

// ChatMessage — одно сообщение чата.
type ChatMessage struct {
	ID           string
	SenderID     string
	Text         string
	QuotedID     string
	QuotedText   string
	QuotedSender string
	// FileInfo — hex-блоб сериализованного FileInfo (см. FileInfoToHex).
	FileInfo   string
	Link       string
	Reactions  Reactions
	TimeSent   int64
	IsOutgoing bool
	IsRead     bool
	HasMention bool
}

// IsSponsored сообщает, является ли сообщение спонсорским.
func (m ChatMessage) IsSponsored() bool {
	return m.TimeSent == TimeSentSponsored
}

// DownloadFileAction — что сделать с файлом после скачивания.
type DownloadFileAction int

const (
	DownloadFileActionNone DownloadFileAction = 0
	DownloadFileActionOpen DownloadFileAction = 1
	DownloadFileActionSave DownloadFileAction = 2
)

// TimeSeen — грубая давность последнего визита пользователя.
type TimeSeen int

const (
	TimeSeenNone      TimeSeen = -1 // away, offline, seen recently
	TimeSeenReserved  TimeSeen = 0
	TimeSeenLastMonth TimeSeen = 1
	TimeSeenLastWeek  TimeSeen = 2
)
