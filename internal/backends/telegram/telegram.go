// Package telegram — бэкенд Telegram поверх gotd (MTProto). Реализует
// контракт protocol.Protocol: профиль с собственным каталогом (сессия,
// peers-кэш на bbolt), асинхронная очередь запросов с горутиной-диспетчером
// и трансляция апдейтов Telegram в сервисные сообщения ядра.
//
// Интерактивный вход (код из SMS / QR) выполняется под захватом терминала:
// бэкенд шлёт ProtocolUiControlNotify(take) перед чтением ввода и отпускает
// терминал по завершении.
package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	bboltdb "github.com/gotd/contrib/bbolt"
	contribstorage "github.com/gotd/contrib/storage"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/joho/godotenv"
	"go.etcd.io/bbolt"

	"nchat/internal/infra/logger"
	"nchat/internal/protocol"
)

const (
	profileConfName = "telegram.conf"
	sessionFileName = "session.json"
	peersDBName     = "peers.bbolt"

	requestQueueSize = 128
	dbOpenTimeout    = time.Second
)

// features — возможности Telegram: чаты приходят сами после логина, статус
// набора гаснет по таймауту, правка исходящих разрешена двое суток.
const features = protocol.FeatureAutoGetChatsOnLogin |
	protocol.FeatureTypingTimeout |
	protocol.FeatureEditMessagesWithinTwoDays

// UiControl — доступ к захвату терминала. Реализуется моделью; бэкенд обязан
// освобождать контроль, даже если вход завершился ошибкой.
type UiControl interface {
	TakeUiControl(profileID string) bool
	ReleaseUiControl(profileID string)
}

// Backend — экземпляр протокола Telegram для одного профиля.
type Backend struct {
	profileID   string
	profileDir  string
	displayName string
	phone       string
	apiID       int
	apiHash     string
	useQR       bool

	handler protocol.MessageHandler
	ui      UiControl

	client *telegram.Client
	api    *tg.Client

	peersDB    *bbolt.DB
	dispatcher tg.UpdateDispatcher
	peerCache  peerCache

	selfID int64

	requests chan protocol.Request
	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu        sync.Mutex
	connected bool
}

// New создаёт незагруженный бэкенд. ui может быть nil (неинтерактивные
// сценарии: --export, --query-cache).
func New(ui UiControl) *Backend {
	return &Backend{
		ui:       ui,
		requests: make(chan protocol.Request, requestQueueSize),
	}
}

// ProfileID возвращает идентификатор профиля (формат Telegram_<суффикс>).
func (b *Backend) ProfileID() string { return b.profileID }

// ProfileDisplayName возвращает отображаемое имя (может быть пустым).
func (b *Backend) ProfileDisplayName() string { return b.displayName }

// HasFeature проверяет возможности бэкенда.
func (b *Backend) HasFeature(f protocol.Feature) bool { return features.Has(f) }

// SelfID возвращает идентификатор залогиненного пользователя.
func (b *Backend) SelfID() string {
	return strconv.FormatInt(b.selfID, 10)
}

// SetMessageHandler подписывает получателя сервисных сообщений.
func (b *Backend) SetMessageHandler(h protocol.MessageHandler) {
	b.handler = h
}

// notify доставляет сервисное сообщение, если обработчик установлен.
func (b *Backend) notify(msg protocol.ServiceMessage) {
	if b.handler != nil {
		b.handler(msg)
	}
}

// SetupProfile интерактивно создаёт профиль: спрашивает номер телефона,
// создаёт каталог и пишет telegram.conf (key=value). Идентификатор профиля —
// Telegram_<цифры номера>.
func (b *Backend) SetupProfile(profilesDir string) (string, bool) {
	phone, err := promptLine("Enter phone number (with country code): ")
	if err != nil || strings.TrimSpace(phone) == "" {
		return "", false
	}
	phone = strings.TrimSpace(phone)

	suffix := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	profileID := "Telegram_" + suffix
	dir := filepath.Join(profilesDir, profileID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		logger.Errorf("telegram: create profile dir: %v", err)
		return "", false
	}

	conf := map[string]string{"phone": phone}
	if err := godotenv.Write(conf, filepath.Join(dir, profileConfName)); err != nil {
		logger.Errorf("telegram: write profile conf: %v", err)
		return "", false
	}
	if !b.LoadProfile(profilesDir, profileID) {
		return "", false
	}
	return profileID, true
}

// LoadProfile читает telegram.conf профиля и готовит клиента gotd: файл
// сессии и peers-хранилище на bbolt в каталоге профиля. Ключи API берутся из
// окружения (TG_API_ID/TG_API_HASH).
func (b *Backend) LoadProfile(profilesDir string, profileID string) bool {
	dir := filepath.Join(profilesDir, profileID)
	conf, err := godotenv.Read(filepath.Join(dir, profileConfName))
	if err != nil {
		logger.Errorf("telegram: read profile conf: %v", err)
		return false
	}

	apiID, err := strconv.Atoi(strings.TrimSpace(os.Getenv("TG_API_ID")))
	if err != nil || apiID == 0 {
		logger.Error("telegram: TG_API_ID must be set")
		return false
	}
	apiHash := strings.TrimSpace(os.Getenv("TG_API_HASH"))
	if apiHash == "" {
		logger.Error("telegram: TG_API_HASH must be set")
		return false
	}

	b.profileID = profileID
	b.profileDir = dir
	b.phone = conf["phone"]
	b.apiID = apiID
	b.apiHash = apiHash
	b.useQR = conf["use_qr"] == "1"

	db, err := bbolt.Open(filepath.Join(dir, peersDBName), 0o600,
		&bbolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		logger.Errorf("telegram: open peers db: %v", err)
		return false
	}
	b.peersDB = db

	b.dispatcher = tg.NewUpdateDispatcher()
	b.registerUpdateHandlers()
	b.peerCache.init()

	b.client = telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: filepath.Join(dir, sessionFileName)},
		UpdateHandler:  storageHook(b.dispatcher, bboltdb.NewPeerStorage(db, []byte("peers"))),
	})
	b.api = b.client.API()
	return true
}

// storageHook прокладывает contrib-хранилище пиров в путь апдейтов, чтобы
// entities из апдейтов persist-ились без лишних RPC.
func storageHook(next telegram.UpdateHandler, store contribstorage.PeerStorage) telegram.UpdateHandler {
	return contribstorage.UpdateHook(next, store)
}

// CloseProfile останавливает клиента и закрывает локальные ресурсы.
func (b *Backend) CloseProfile() bool {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	if b.peersDB != nil {
		if err := b.peersDB.Close(); err != nil {
			logger.Warnf("telegram: close peers db: %v", err)
		}
		b.peersDB = nil
	}
	return true
}

// Login поднимает MTProto-соединение в фоновой горутине: авторизация (при
// необходимости — интерактивная, под захватом терминала), резолв self,
// ConnectNotify и запуск диспетчера запросов.
func (b *Backend) Login() bool {
	if b.client == nil {
		return false
	}
	b.runCtx, b.cancel = context.WithCancel(context.Background())

	b.wg.Go(func() {
		err := b.client.Run(b.runCtx, func(ctx context.Context) error {
			if err := b.authorize(ctx); err != nil {
				return errors.Wrap(err, "authorize")
			}
			self, err := b.client.Self(ctx)
			if err != nil {
				return errors.Wrap(err, "resolve self")
			}
			b.selfID = self.ID
			b.displayName = strings.TrimSpace(self.FirstName + " " + self.LastName)

			b.mu.Lock()
			b.connected = true
			b.mu.Unlock()
			b.notify(protocol.ConnectNotify{
				ServiceBase: protocol.ServiceBase{ProfileID: b.profileID},
				Success:     true,
			})

			b.fetchDialogs(ctx)

			// Диспетчер запросов живёт, пока жив контекст клиента.
			b.dispatchRequests(ctx)
			return nil
		})
		if err != nil && b.runCtx.Err() == nil {
			logger.Errorf("telegram: client run: %v", err)
			b.notify(protocol.ConnectNotify{
				ServiceBase: protocol.ServiceBase{ProfileID: b.profileID},
				Success:     false,
			})
		}
	})
	return true
}

// Logout разлогинивает аккаунт и удаляет файл сессии.
func (b *Backend) Logout() bool {
	if b.api == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := b.api.AuthLogOut(ctx); err != nil {
		logger.Errorf("telegram: logout: %v", err)
		return false
	}
	if err := os.Remove(filepath.Join(b.profileDir, sessionFileName)); err != nil && !os.IsNotExist(err) {
		logger.Warnf("telegram: remove session: %v", err)
	}
	return true
}

// SendRequest ставит запрос в очередь диспетчера. Очередь буферизована;
// переполнение роняет запрос с предупреждением — шина fire-and-forget.
func (b *Backend) SendRequest(req protocol.Request) {
	select {
	case b.requests <- req:
	default:
		logger.Warnf("telegram: request queue full, dropping %T", req)
	}
}

// authorize выполняет вход при отсутствии валидной сессии. Интерактивная
// часть (код, 2FA, QR) идёт под захватом терминала; отказ в захвате
// прерывает попытку входа, не трогая владельца терминала.
func (b *Backend) authorize(ctx context.Context) error {
	status, err := b.client.Auth().Status(ctx)
	if err != nil {
		return errors.Wrap(err, "auth status")
	}
	if status.Authorized {
		logger.Debug("telegram: session restored")
		return nil
	}

	if b.ui != nil && !b.ui.TakeUiControl(b.profileID) {
		return errors.New("terminal is held by another profile")
	}
	b.notify(protocol.ProtocolUiControlNotify{
		ServiceBase:   protocol.ServiceBase{ProfileID: b.profileID},
		IsTakeControl: true,
	})
	defer func() {
		b.notify(protocol.ProtocolUiControlNotify{
			ServiceBase:   protocol.ServiceBase{ProfileID: b.profileID},
			IsTakeControl: false,
		})
		if b.ui != nil {
			b.ui.ReleaseUiControl(b.profileID)
		}
	}()

	if b.useQR {
		return b.qrLogin(ctx)
	}

	flow := auth.NewFlow(terminalAuthenticator{phone: b.phone}, auth.SendCodeOptions{})
	return b.client.Auth().IfNecessary(ctx, flow)
}

// fetchDialogs загружает диалоги и транслирует их как NewChatsNotify +
// NewContactsNotify (инкрементально, по мере обнаружения пользователей).
func (b *Backend) fetchDialogs(ctx context.Context) {
	dialogs, err := b.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      100,
	})
	if err != nil {
		logger.Errorf("telegram: get dialogs: %v", err)
		b.notify(protocol.NewChatsNotify{
			ServiceBase: protocol.ServiceBase{ProfileID: b.profileID},
			Success:     false,
		})
		return
	}

	var chats []protocol.ChatInfo
	var contacts []protocol.ContactInfo
	switch d := dialogs.(type) {
	case *tg.MessagesDialogs:
		b.peerCache.collectUsers(d.Users)
		b.peerCache.collectChats(d.Chats)
		chats = b.mapDialogs(d.Dialogs, d.Messages)
		contacts = mapUsers(d.Users, b.selfID)
	case *tg.MessagesDialogsSlice:
		b.peerCache.collectUsers(d.Users)
		b.peerCache.collectChats(d.Chats)
		chats = b.mapDialogs(d.Dialogs, d.Messages)
		contacts = mapUsers(d.Users, b.selfID)
	}

	b.notify(protocol.NewContactsNotify{
		ServiceBase:  protocol.ServiceBase{ProfileID: b.profileID},
		ContactInfos: contacts,
	})
	b.notify(protocol.NewChatsNotify{
		ServiceBase: protocol.ServiceBase{ProfileID: b.profileID},
		Success:     true,
		ChatInfos:   chats,
	})
}

// mapDialogs переводит диалоги Telegram в ChatInfo; время последнего
// сообщения извлекается из присланных верхних сообщений.
func (b *Backend) mapDialogs(dialogs []tg.DialogClass, messages []tg.MessageClass) []protocol.ChatInfo {
	topTime := make(map[string]int64)
	for _, mc := range messages {
		if msg, ok := mc.(*tg.Message); ok {
			topTime[peerKey(msg.PeerID)] = int64(msg.Date) * 1000
		}
	}

	var out []protocol.ChatInfo
	for _, dc := range dialogs {
		d, ok := dc.(*tg.Dialog)
		if !ok {
			continue
		}
		id := peerKey(d.Peer)
		info := protocol.ChatInfo{
			ID:              id,
			IsUnread:        d.UnreadCount > 0,
			IsUnreadMention: d.UnreadMentionsCount > 0,
			IsPinned:        d.Pinned,
			LastMessageTime: topTime[id],
		}
		if d.NotifySettings.MuteUntil > int(time.Now().Unix()) {
			info.IsMuted = true
		}
		out = append(out, info)
	}
	return out
}

// mapUsers переводит пользователей Telegram в ContactInfo.
func mapUsers(users []tg.UserClass, selfID int64) []protocol.ContactInfo {
	var out []protocol.ContactInfo
	for _, uc := range users {
		u, ok := uc.(*tg.User)
		if !ok {
			continue
		}
		out = append(out, protocol.ContactInfo{
			ID:     strconv.FormatInt(u.ID, 10),
			Name:   strings.TrimSpace(u.FirstName + " " + u.LastName),
			Phone:  u.Phone,
			IsSelf: u.ID == selfID,
		})
	}
	return out
}

// peerKey — строковый идентификатор чата по peer.
func peerKey(peer tg.PeerClass) string {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return strconv.FormatInt(p.UserID, 10)
	case *tg.PeerChat:
		return fmt.Sprintf("-%d", p.ChatID)
	case *tg.PeerChannel:
		return fmt.Sprintf("-100%d", p.ChannelID)
	default:
		return ""
	}
}
