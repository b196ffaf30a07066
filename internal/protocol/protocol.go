// Package protocol — контракт, который реализует каждый бэкенд мессенджера
// (Telegram, WhatsApp, Signal, …), и таксономия сообщений асинхронной шины:
// запросы (UI → бэкенд) и сервисные уведомления (бэкенд → UI).
//
// Иерархия классов оригинала переложена на два маркерных интерфейса — Request
// и ServiceMessage — с конкретной структурой на каждый вариант; диспетчеризация
// выполняется type switch, отдельный enum типов сообщений не нужен.
package protocol

import "strings"

// Feature — битсет возможностей бэкенда. UI опрашивает его через HasFeature
// и подстраивает поведение (окно редактирования, typing-таймауты и т. п.).
type Feature uint32

const (
	FeatureNone Feature = 0
	// FeatureAutoGetChatsOnLogin: бэкенд сам присылает список чатов после логина,
	// запрос GetChatsRequest не требуется.
	FeatureAutoGetChatsOnLogin Feature = 1 << iota
	// FeatureTypingTimeout: статус "печатает" у бэкенда гаснет сам по таймауту,
	// поэтому его нужно периодически продлевать.
	FeatureTypingTimeout
	// FeatureEditMessagesWithinTwoDays: правка исходящих разрешена двое суток.
	FeatureEditMessagesWithinTwoDays
	// FeatureEditMessagesWithinFifteenMins: правка исходящих разрешена 15 минут.
	FeatureEditMessagesWithinFifteenMins
	// FeatureLimitedReactions: допустим только фиксированный набор реакций.
	FeatureLimitedReactions
	// FeatureMarkReadEveryView: каждое отображение сообщения отмечается как
	// прочтение, даже если сообщение уже было прочитано.
	FeatureMarkReadEveryView
	// FeatureAutoGetContactsOnLogin: контакты приходят сами после логина.
	FeatureAutoGetContactsOnLogin
)

// Has проверяет наличие флага в битсете.
func (f Feature) Has(flag Feature) bool {
	return f&flag != 0
}

// MessageHandler — колбэк доставки сервисных сообщений. Вызывается из
// потоков бэкенда; получатель обязан сам обеспечить синхронизацию.
type MessageHandler func(msg ServiceMessage)

// Protocol — контракт бэкенда. Все операции SendRequest асинхронны: результат
// приходит сервисным сообщением через установленный MessageHandler. Бэкенд
// может группировать и переупорядочивать запросы, но MarkMessageRead и
// SendMessage по одному чату сохраняют порядок выдачи.
type Protocol interface {
	ProfileID() string
	ProfileDisplayName() string
	HasFeature(f Feature) bool
	SelfID() string

	// SetupProfile интерактивно создаёт профиль в каталоге profilesDir и
	// возвращает его идентификатор.
	SetupProfile(profilesDir string) (string, bool)
	LoadProfile(profilesDir string, profileID string) bool
	CloseProfile() bool

	Login() bool
	Logout() bool

	SendRequest(req Request)
	SetMessageHandler(h MessageHandler)
}

// ProfileProtocolName извлекает имя протокола из идентификатора профиля
// формата "<protocol>_<suffix>" — срез до первого '_'.
func ProfileProtocolName(profileID string) string {
	name, _, _ := strings.Cut(profileID, "_")
	return name
}
