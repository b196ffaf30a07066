// Package model — единственный источник истины для состояния на экране.
// Модель принимает клавиатурные события от вью и превращает их в мутации
// состояния либо запросы к бэкендам; принимает сервисные сообщения бэкендов
// и применяет их к состоянию; ведёт цикл подгрузки истории и производные
// индикаторы (непрочитанное, статусная строка, набор текста).
//
// Конкурентность: колбэки бэкендов приходят из их потоков; каждое сервисное
// сообщение применяется атомарно под мьютексом модели (см. guard.go) до
// начала обработки следующего. Долгие операции (модальные диалоги, внешние
// программы, ожидание освобождения терминала бэкендом) выполняются без лока.
package model

import (
	"sync/atomic"
	"time"

	"nchat/internal/cache"
	"nchat/internal/infra/config"
	"nchat/internal/infra/logger"
	"nchat/internal/notify"
	"nchat/internal/protocol"
)

// Mode — режим ввода текущего чата. Режимы взаимно исключающие.
type Mode int

const (
	// ModeDefault: чат открыт, строка ввода принимает текст.
	ModeDefault Mode = iota
	// ModeSelectMessage: подсвечено сообщение истории (messageOffset);
	// большинство клавиш ввода переосмыслены как навигация.
	ModeSelectMessage
	// ModeEditMessage: строка ввода предзаполнена текстом существующего
	// сообщения; Enter сохраняет правку, Cancel восстанавливает ввод.
	ModeEditMessage
	// ModeListDialog / ModeMessageDialog: модальный оверлей, маршрутизация
	// клавиш в модели приостановлена, вводом владеет диалог.
	ModeListDialog
	ModeMessageDialog
)

// Dirty — битовая маска перерисовки; модель выставляет флаги, вью снимает.
type Dirty uint32

const (
	DirtyChats Dirty = 1 << iota
	DirtyHistory
	DirtyEntry
	DirtyStatus
	DirtyTop
	DirtyHelp
	DirtyAll Dirty = DirtyChats | DirtyHistory | DirtyEntry | DirtyStatus | DirtyTop | DirtyHelp
)

// ChatKey адресует чат глобально: пара (профиль, чат).
type ChatKey struct {
	ProfileID string
	ChatID    string
}

// FileAction — отложенное действие над скачанным вложением.
type FileAction struct {
	Path   string
	Action protocol.DownloadFileAction
}

// chatState — состояние одного чата в памяти.
type chatState struct {
	info       protocol.ChatInfo
	timePinned int64

	messages   map[string]*protocol.ChatMessage
	messageVec []string // msgID по убыванию timeSent

	// messageOffset — индекс выбранного сообщения в messageVec; имеет смысл
	// только в ModeSelectMessage, иначе 0.
	messageOffset int
	// offsetStack — LIFO размеров page-up, чтобы page-down повторял те же шаги.
	offsetStack []int

	oldestMsgID string
	// fetchInFlight — множество fromMsgId незавершённых запросов истории;
	// подавляет дубли.
	fetchInFlight map[string]struct{}
	// cacheDrained: кэш по этому чату исчерпан, дальше только живые запросы.
	cacheDrained bool
	// fetchedAll: бэкенд вернул пустую пачку — старее ничего нет.
	fetchedAll bool

	usersTyping     map[string]struct{}
	availableEmojis map[string]struct{}

	// tempMsgIDs — очередь временных id неподтверждённых отправок; эхо
	// отправки замещает самый старый из них.
	tempMsgIDs []string

	// typing — состояние трансляции собственного набора текста.
	typing typingState
}

// profileState — состояние одного залогиненного профиля.
type profileState struct {
	proto    protocol.Protocol
	contacts map[string]protocol.ContactInfo
	chats    map[string]*chatState
	// connectTime отделяет исторический поток сообщений от «свежих» — только
	// сообщения после подключения могут автоматически выбирать чат.
	connectTime int64
	connected   bool
	userOnline  map[string]onlineStatus
}

// onlineStatus — последний известный статус пользователя.
type onlineStatus struct {
	isOnline bool
	timeSeen protocol.TimeSeen
}

// Model — ядро UI. Все поля охраняются встроенным мьютексом, кроме явных
// атомиков.
type Model struct {
	mutexState

	settings *config.Settings
	store    *cache.Store
	notifier *notify.Notifier

	profiles map[string]*profileState
	// chatVec — все видимые чаты в порядке отображения.
	chatVec []ChatKey

	current    ChatKey
	currentSet bool

	mode Mode
	// entry — строка ввода (руны, включая EMOJI_PAD-токены рендера).
	entryText []rune
	entryPos  int
	// savedEntry хранит ввод, вытесненный режимом редактирования.
	savedEntry []rune
	editMsgID  string

	// alertText — текст для модального сообщения (например, отказ правки).
	alertText string

	// historyViewLines (H) — высота окна истории; задаётся вью.
	historyViewLines int

	// terminalActive — терминал в фокусе; влияет на mark-read и уведомления.
	terminalActive bool

	// homeFetch — активный режим home-fetch-all для текущего чата.
	homeFetch    bool
	homeFetchKey ChatKey

	// uiControlOwner — профиль, захвативший терминал (ProtocolUiControl);
	// пустая строка — терминал свободен. uiControlFree сигналит ожидающим.
	uiControlOwner string
	uiControlFree  chan struct{}

	// fileActions — очередь действий над скачанными файлами; исполняется
	// главным циклом вне лока (внешние программы под локом запрещены).
	fileActions []FileAction

	dirty   atomic.Uint32
	running atomic.Bool

	tempSeq atomic.Int64

	assertAbort bool

	// now — источник времени; подменяется в тестах окна редактирования.
	now func() time.Time
}

// New создаёт модель. Кэш подключается отдельно через SetStore (без него кэш
// выключен); notifier может быть nil (уведомления выключены).
func New(settings *config.Settings, notifier *notify.Notifier) *Model {
	m := &Model{
		settings:         settings,
		notifier:         notifier,
		profiles:         make(map[string]*profileState),
		historyViewLines: 10,
		terminalActive:   true,
		uiControlFree:    make(chan struct{}),
		assertAbort:      settings.App.GetBool("assert_abort"),
		now:              time.Now,
	}
	close(m.uiControlFree) // терминал свободен с самого начала
	m.running.Store(true)
	return m
}

// SetStore подключает кэш (после создания модели, т.к. кэш отвечает через
// обработчик модели).
func (m *Model) SetStore(store *cache.Store) {
	m.With(func(*Guard) { m.store = store })
}

// AddProtocol регистрирует бэкенд профиля и подписывает модель на его
// сервисные сообщения.
func (m *Model) AddProtocol(p protocol.Protocol) {
	profileID := p.ProfileID()
	m.With(func(*Guard) {
		m.profiles[profileID] = &profileState{
			proto:      p,
			contacts:   make(map[string]protocol.ContactInfo),
			chats:      make(map[string]*chatState),
			userOnline: make(map[string]onlineStatus),
		}
	})
	p.SetMessageHandler(m.HandleServiceMessage)
}

// Protocols возвращает снимок зарегистрированных бэкендов.
func (m *Model) Protocols() []protocol.Protocol {
	var out []protocol.Protocol
	m.With(func(*Guard) {
		for _, ps := range m.profiles {
			out = append(out, ps.proto)
		}
	})
	return out
}

// Running сообщает, продолжается ли главный цикл.
func (m *Model) Running() bool { return m.running.Load() }

// Quit инициирует кооперативное завершение: следующая итерация главного
// цикла выйдет. Незавершённые запросы бросаются.
func (m *Model) Quit() { m.running.Store(false) }

// SetHistoryViewLines задаёт высоту окна истории (H) от вью.
func (m *Model) SetHistoryViewLines(g *Guard, lines int) {
	m.assertLocked(g)
	if lines > 0 {
		m.historyViewLines = lines
	}
}

// SetTerminalActive отмечает фокус терминала (отслеживается вью).
func (m *Model) SetTerminalActive(active bool) {
	m.With(func(*Guard) { m.terminalActive = active })
}

// MarkDirty выставляет флаги перерисовки; безопасно из любого потока.
func (m *Model) MarkDirty(d Dirty) {
	for {
		old := m.dirty.Load()
		if m.dirty.CompareAndSwap(old, old|uint32(d)) {
			return
		}
	}
}

// DrainDirty атомарно забирает и сбрасывает накопленные флаги перерисовки.
func (m *Model) DrainDirty() Dirty {
	return Dirty(m.dirty.Swap(0))
}

// DrainFileActions забирает накопленные действия над файлами. Главный цикл
// исполняет их без лока модели.
func (m *Model) DrainFileActions() []FileAction {
	var out []FileAction
	m.With(func(*Guard) {
		out = m.fileActions
		m.fileActions = nil
	})
	return out
}

// ModeLocked возвращает текущий режим ввода.
func (m *Model) ModeLocked(g *Guard) Mode {
	m.assertLocked(g)
	return m.mode
}

// CurrentChat возвращает текущий чат и признак «чат выбран».
func (m *Model) CurrentChat(g *Guard) (ChatKey, bool) {
	m.assertLocked(g)
	return m.current, m.currentSet
}

// ChatVec возвращает копию списка чатов в порядке отображения.
func (m *Model) ChatVec(g *Guard) []ChatKey {
	m.assertLocked(g)
	out := make([]ChatKey, len(m.chatVec))
	copy(out, m.chatVec)
	return out
}

// MessageVec возвращает копию порядка сообщений чата (по убыванию времени).
func (m *Model) MessageVec(g *Guard, key ChatKey) []string {
	m.assertLocked(g)
	cs := m.chat(key)
	if cs == nil {
		return nil
	}
	out := make([]string, len(cs.messageVec))
	copy(out, cs.messageVec)
	return out
}

// ChatInfo возвращает описание чата и признак его существования.
func (m *Model) ChatInfo(g *Guard, key ChatKey) (protocol.ChatInfo, bool) {
	m.assertLocked(g)
	cs := m.chat(key)
	if cs == nil {
		return protocol.ChatInfo{}, false
	}
	return cs.info, true
}

// Message возвращает сообщение по id (nil, если не найдено).
func (m *Model) Message(g *Guard, key ChatKey, msgID string) *protocol.ChatMessage {
	m.assertLocked(g)
	cs := m.chat(key)
	if cs == nil {
		return nil
	}
	return cs.messages[msgID]
}

// MessageOffset возвращает индекс выбранного сообщения.
func (m *Model) MessageOffset(g *Guard, key ChatKey) int {
	m.assertLocked(g)
	cs := m.chat(key)
	if cs == nil {
		return 0
	}
	return cs.messageOffset
}

// AlertText возвращает и сбрасывает текст модального сообщения.
func (m *Model) AlertText(g *Guard) string {
	m.assertLocked(g)
	text := m.alertText
	m.alertText = ""
	return text
}

// EntryText возвращает текущий ввод.
func (m *Model) EntryText(g *Guard) string {
	m.assertLocked(g)
	return string(m.entryText)
}

// SetEntryText заменяет ввод целиком (возврат из внешнего редактора).
func (m *Model) SetEntryText(g *Guard, text string) {
	m.assertLocked(g)
	m.entryText = []rune(text)
	m.entryPos = len(m.entryText)
	m.MarkDirty(DirtyEntry)
}

// profileState возвращает состояние профиля (nil, если не зарегистрирован).
func (m *Model) profileState(profileID string) *profileState {
	return m.profiles[profileID]
}

// chat возвращает состояние чата (nil, если не видели).
func (m *Model) chat(key ChatKey) *chatState {
	ps := m.profiles[key.ProfileID]
	if ps == nil {
		return nil
	}
	return ps.chats[key.ChatID]
}

// ensureChat возвращает состояние чата, создавая его при первом упоминании.
func (m *Model) ensureChat(key ChatKey) *chatState {
	ps := m.profiles[key.ProfileID]
	if ps == nil {
		logger.Warnf("model: unknown profile %s", key.ProfileID)
		return nil
	}
	cs, ok := ps.chats[key.ChatID]
	if !ok {
		cs = &chatState{
			info:          protocol.ChatInfo{ID: key.ChatID, LastMessageTime: -1},
			messages:      make(map[string]*protocol.ChatMessage),
			fetchInFlight: make(map[string]struct{}),
			usersTyping:   make(map[string]struct{}),
		}
		ps.chats[key.ChatID] = cs
	}
	return cs
}

// sendRequest передаёт запрос бэкенду профиля. Запрос уходит из-под лока:
// бэкенды лишь кладут его в свою очередь, сетевых вызовов здесь нет.
func (m *Model) sendRequest(profileID string, req protocol.Request) {
	ps := m.profiles[profileID]
	if ps == nil {
		logger.Warnf("model: request for unknown profile %s", profileID)
		return
	}
	ps.proto.SendRequest(req)
}
