// File services.go: сервисные уведомления бэкенд → UI. Каждое несёт
// ProfileID источника; внутри одного бэкенда порядок доставки совпадает с
// порядком генерации, между бэкендами порядок не гарантируется.
package protocol

// ServiceMessage — маркерный интерфейс сервисного сообщения.
type ServiceMessage interface {
	// Profile возвращает идентификатор профиля-источника.
	Profile() string
	isServiceMessage()
}

// ServiceBase — общая часть всех сервисных сообщений.
type ServiceBase struct {
	ProfileID string
}

// Profile возвращает идентификатор профиля-источника.
func (b ServiceBase) Profile() string { return b.ProfileID }

func (ServiceBase) isServiceMessage() {}

// ConnectNotify сообщает об установке (или неудаче) соединения профиля.
type ConnectNotify struct {
	ServiceBase
	Success bool
}

// NewContactsNotify приносит контакты; FullSync означает полный список,
// иначе — инкрементальное пополнение.
type NewContactsNotify struct {
	ServiceBase
	FullSync     bool
	ContactInfos []ContactInfo
}

// NewChatsNotify приносит список чатов (новых или обновлённых).
type NewChatsNotify struct {
	ServiceBase
	Success   bool
	ChatInfos []ChatInfo
}

// NewMessagesNotify приносит пачку сообщений чата. Cached отмечает ответ из
// кэша; Sequence — продолжение серии (например, при home-fetch-all);
// FromMsgID — курсор исходного запроса, по нему снимается дедупликация.
type NewMessagesNotify struct {
	ServiceBase
	Success      bool
	ChatID       string
	ChatMessages []ChatMessage
	FromMsgID    string
	Cached       bool
	Sequence     bool
}

// SendMessageNotify подтверждает (или отклоняет) отправку сообщения.
type SendMessageNotify struct {
	ServiceBase
	Success     bool
	ChatID      string
	ChatMessage ChatMessage
}

// MarkMessageReadNotify подтверждает пометку прочитанного.
type MarkMessageReadNotify struct {
	ServiceBase
	Success bool
	ChatID  string
	MsgID   string
}

// DeleteMessageNotify подтверждает удаление сообщения.
type DeleteMessageNotify struct {
	ServiceBase
	Success bool
	ChatID  string
	MsgID   string
}

// DeleteChatNotify подтверждает удаление чата.
type DeleteChatNotify struct {
	ServiceBase
	Success bool
	ChatID  string
}

// SendTypingNotify подтверждает трансляцию собственного статуса набора.
type SendTypingNotify struct {
	ServiceBase
	Success  bool
	ChatID   string
	IsTyping bool
}

// SetStatusNotify подтверждает смену собственного online-статуса.
type SetStatusNotify struct {
	ServiceBase
	Success  bool
	IsOnline bool
}

// CreateChatNotify приносит созданный чат.
type CreateChatNotify struct {
	ServiceBase
	Success  bool
	ChatInfo ChatInfo
}

// ReceiveTypingNotify — чужой статус набора текста в чате.
type ReceiveTypingNotify struct {
	ServiceBase
	ChatID   string
	UserID   string
	IsTyping bool
}

// ReceiveStatusNotify — чужой online-статус и давность визита.
type ReceiveStatusNotify struct {
	ServiceBase
	UserID   string
	IsOnline bool
	TimeSeen TimeSeen
}

// NewMessageStatusNotify — смена статуса прочтения сообщения.
type NewMessageStatusNotify struct {
	ServiceBase
	ChatID string
	MsgID  string
	IsRead bool
}

// NewMessageFileNotify — обновление вложения сообщения (hex-блоб FileInfo)
// и действие, которое нужно выполнить после скачивания.
type NewMessageFileNotify struct {
	ServiceBase
	ChatID   string
	MsgID    string
	FileInfo string
	Action   DownloadFileAction
}

// UpdateMuteNotify — смена mute-состояния чата.
type UpdateMuteNotify struct {
	ServiceBase
	Success bool
	ChatID  string
	IsMuted bool
}

// UpdatePinNotify — смена закрепления чата; TimePinned становится ключом
// сортировки вместо времени последнего сообщения.
type UpdatePinNotify struct {
	ServiceBase
	Success    bool
	ChatID     string
	IsPinned   bool
	TimePinned int64
}

// NewMessageReactionsNotify — обновление реакций сообщения.
type NewMessageReactionsNotify struct {
	ServiceBase
	ChatID    string
	MsgID     string
	Reactions Reactions
}

// AvailableReactionsNotify — допустимые реакции для сообщения.
type AvailableReactionsNotify struct {
	ServiceBase
	ChatID string
	MsgID  string
	Emojis map[string]struct{}
}

// FindMessageNotify — результат поиска сообщения.
type FindMessageNotify struct {
	ServiceBase
	Success bool
	ChatID  string
	MsgID   string
}

// ProtocolUiControlNotify — захват/освобождение терминала бэкендом
// (например, для QR-логина). Пока контроль захвачен, UI приостанавливает
// перерисовку и маршрутизацию клавиш.
type ProtocolUiControlNotify struct {
	ServiceBase
	IsTakeControl bool
}

// RequestAppExitNotify — бэкенд просит приложение завершиться.
type RequestAppExitNotify struct {
	ServiceBase
}
