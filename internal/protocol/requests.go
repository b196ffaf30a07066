// File requests.go: запросы UI → бэкенд. Каждый вариант — отдельная структура
// с маркерным методом isRequest; диспетчеризация в бэкендах — type switch.
// Все запросы fire-and-forget: ответ приходит сервисным сообщением,
// скоррелированным по chat/msg id.
package protocol

// Request — маркерный интерфейс запроса.
type Request interface {
	isRequest()
}

// GetContactsRequest запрашивает полный список контактов.
type GetContactsRequest struct{}

// GetChatsRequest запрашивает список чатов; непустой ChatIDs ограничивает
// выборку указанными чатами.
type GetChatsRequest struct {
	ChatIDs map[string]struct{}
}

// GetStatusRequest запрашивает online-статус пользователя.
type GetStatusRequest struct {
	UserID string
}

// GetMessageRequest запрашивает одно сообщение; Cached разрешает ответить из
// кэша прежде чем идти в сеть.
type GetMessageRequest struct {
	ChatID string
	MsgID  string
	Cached bool
}

// GetMessagesRequest запрашивает страницу истории: Limit сообщений старше
// FromMsgID (пустой FromMsgID — от самого свежего).
type GetMessagesRequest struct {
	ChatID    string
	FromMsgID string
	Limit     int32
}

// SendMessageRequest отправляет сообщение в чат.
type SendMessageRequest struct {
	ChatID      string
	ChatMessage ChatMessage
}

// EditMessageRequest заменяет содержимое существующего сообщения.
type EditMessageRequest struct {
	ChatID      string
	MsgID       string
	ChatMessage ChatMessage
}

// MarkMessageReadRequest помечает сообщение прочитанным. SenderID нужен
// только некоторым бэкендам (группы WhatsApp).
type MarkMessageReadRequest struct {
	ChatID           string
	SenderID         string
	MsgID            string
	ReadAllReactions bool
}

// DeleteMessageRequest удаляет сообщение.
type DeleteMessageRequest struct {
	ChatID   string
	SenderID string
	MsgID    string
}

// DeleteChatRequest удаляет чат целиком.
type DeleteChatRequest struct {
	ChatID string
}

// SendTypingRequest транслирует собственный статус набора текста.
type SendTypingRequest struct {
	ChatID   string
	IsTyping bool
}

// SetStatusRequest транслирует собственный online-статус.
type SetStatusRequest struct {
	IsOnline bool
}

// CreateChatRequest создаёт 1:1 чат с пользователем.
type CreateChatRequest struct {
	UserID string
}

// SetCurrentChatRequest сообщает бэкенду текущий открытый чат (нужно для
// спонсорских сообщений и приоритизации).
type SetCurrentChatRequest struct {
	ChatID string
}

// DownloadFileRequest скачивает вложение и выполняет действие Action.
type DownloadFileRequest struct {
	ChatID string
	MsgID  string
	FileID string
	Action DownloadFileAction
}

// SendReactionRequest ставит (или снимает, при пустом Emoji) реакцию.
// PrevEmoji нужен бэкендам, которым для снятия требуется прежнее значение.
type SendReactionRequest struct {
	ChatID    string
	SenderID  string
	MsgID     string
	Emoji     string
	PrevEmoji string
}

// GetAvailableReactionsRequest запрашивает допустимые реакции для сообщения.
type GetAvailableReactionsRequest struct {
	ChatID string
	MsgID  string
}

// GetUnreadReactionsRequest запрашивает непрочитанные реакции чата.
type GetUnreadReactionsRequest struct {
	ChatID string
}

// FindMessageRequest ищет сообщение по тексту либо по известному id.
type FindMessageRequest struct {
	ChatID    string
	FromMsgID string
	LastMsgID string
	FindText  string
	FindMsgID string
}

// ReinitRequest просит бэкенд переинициализировать соединение.
type ReinitRequest struct{}

// DeferNotifyRequest — отложенная доставка готового сервисного сообщения
// через очередь бэкенда (сохраняет порядок с его собственными событиями).
type DeferNotifyRequest struct {
	ServiceMessage ServiceMessage
}

// DeferGetChatDetailsRequest — фоновая дозагрузка деталей чатов.
type DeferGetChatDetailsRequest struct {
	ChatIDs       []string
	IsGetTypeOnly bool
}

// DeferGetUserDetailsRequest — фоновая дозагрузка деталей пользователей.
type DeferGetUserDetailsRequest struct {
	UserIDs []string
}

// DeferDownloadFileRequest — продолжение скачивания по внутреннему DownloadID.
type DeferDownloadFileRequest struct {
	ChatID     string
	MsgID      string
	FileID     string
	DownloadID string
	Action     DownloadFileAction
}

// DeferGetSponsoredMessagesRequest — фоновый запрос спонсорских сообщений чата.
type DeferGetSponsoredMessagesRequest struct {
	ChatID string
}

func (GetContactsRequest) isRequest()               {}
func (GetChatsRequest) isRequest()                  {}
func (GetStatusRequest) isRequest()                 {}
func (GetMessageRequest) isRequest()                {}
func (GetMessagesRequest) isRequest()               {}
func (SendMessageRequest) isRequest()               {}
func (EditMessageRequest) isRequest()               {}
func (MarkMessageReadRequest) isRequest()           {}
func (DeleteMessageRequest) isRequest()             {}
func (DeleteChatRequest) isRequest()                {}
func (SendTypingRequest) isRequest()                {}
func (SetStatusRequest) isRequest()                 {}
func (CreateChatRequest) isRequest()                {}
func (SetCurrentChatRequest) isRequest()            {}
func (DownloadFileRequest) isRequest()              {}
func (SendReactionRequest) isRequest()              {}
func (GetAvailableReactionsRequest) isRequest()     {}
func (GetUnreadReactionsRequest) isRequest()        {}
func (FindMessageRequest) isRequest()               {}
func (ReinitRequest) isRequest()                    {}
func (DeferNotifyRequest) isRequest()               {}
func (DeferGetChatDetailsRequest) isRequest()       {}
func (DeferGetUserDetailsRequest) isRequest()       {}
func (DeferDownloadFileRequest) isRequest()         {}
func (DeferGetSponsoredMessagesRequest) isRequest() {}
