// Package app — верхний уровень приложения: сборка подсистем (конфигурация,
// кэш, модель, бэкенды, нотификатор), загрузка профилей и владение главным
// циклом событий. Подсистемы регистрируются в lifecycle-менеджере и гаснут в
// обратном порядке при завершении.
package app

import (
	"context"
	"fmt"
	"os"

	"nchat/internal/backends/telegram"
	"nchat/internal/cache"
	"nchat/internal/extprog"
	"nchat/internal/infra/config"
	"nchat/internal/infra/lifecycle"
	"nchat/internal/infra/logger"
	"nchat/internal/model"
	"nchat/internal/notify"
	"nchat/internal/protocol"
	"nchat/internal/ui"
)

const cacheDBVersion = 1

// App связывает подсистемы и владеет главным циклом.
type App struct {
	settings *config.Settings
	keyCfg   *ui.KeyConfig
	colorCfg *ui.ColorConfig
	terminal *ui.Terminal

	mdl      *model.Model
	store    *cache.Store
	notifier *notify.Notifier
	runner   *extprog.Runner

	lc      *lifecycle.Manager
	stopApp context.CancelFunc

	keyActions map[ui.KeyCode]string
	views      []ui.View
}

// NewApp собирает приложение поверх загруженной конфигурации.
func NewApp(settings *config.Settings) *App {
	terminal := ui.NewTerminal()
	notifier := notify.New(settings.UI)
	mdl := model.New(settings, notifier)

	a := &App{
		settings: settings,
		terminal: terminal,
		notifier: notifier,
		mdl:      mdl,
		runner:   &extprog.Runner{},
	}
	a.keyCfg = ui.NewKeyConfig(settings.Dirs.ConfPath("key.conf"), true)
	a.colorCfg = ui.NewColorConfig(settings.Dirs.ConfPath("color.conf"), ui.TermCaps{
		HasColors: terminal.IsTTY(),
		Colors:    256,
	})
	a.buildKeyActions()
	return a
}

// Model возвращает модель (для команд вроде --query-cache).
func (a *App) Model() *model.Model { return a.mdl }

// Store возвращает кэш (может быть nil до Init).
func (a *App) Store() *cache.Store { return a.store }

// buildKeyActions строит обратную карту код → действие из key.conf.
func (a *App) buildKeyActions() {
	actions := []string{
		"cancel", "quit", "ok", "up", "down", "prev_page", "next_page",
		"home", "end", "backspace", "delete_msg", "delete_chat",
		"next_chat", "prev_chat", "unread_chat", "send_msg", "edit_msg",
		"ext_edit", "open_msg", "open", "save", "select_contact", "find",
		"terminal_focus_in", "terminal_focus_out", "terminal_resize",
	}
	a.keyActions = make(map[ui.KeyCode]string, len(actions))
	for _, action := range actions {
		code := a.keyCfg.Get(action)
		if code == ui.KeyNone {
			continue
		}
		if prev, clash := a.keyActions[code]; clash {
			logger.Warnf("app: key conflict: %q and %q share code 0x%x", prev, action, code)
			continue
		}
		a.keyActions[code] = action
	}
}

// Init загружает профили, открывает кэш и регистрирует подсистемы.
// stop — внешняя CancelFunc приложения (команда quit, фатальные ошибки).
func (a *App) Init(ctx context.Context, stop context.CancelFunc) error {
	a.stopApp = stop
	a.lc = lifecycle.New(ctx)

	// Кэш отвечает в ту же шину, что и бэкенды.
	if a.settings.App.GetBool("cache_enabled") {
		a.store = cache.NewStore(a.mdl.HandleServiceMessage, a.settings.App.GetBool("cache_read_only"))
		a.mdl.SetStore(a.store)
		if err := a.lc.Register("cache", nil, func() error {
			a.store.Close()
			return nil
		}); err != nil {
			return err
		}
	}

	protocols, err := a.loadProfiles()
	if err != nil {
		return err
	}
	if len(protocols) == 0 {
		return fmt.Errorf("no profiles found; run with --setup to create one")
	}

	for _, p := range protocols {
		proto := p
		profileID := proto.ProfileID()
		a.mdl.AddProtocol(proto)
		if a.store != nil {
			dir := a.settings.Dirs.ProfileDir(profileID)
			if err := a.store.AddProfile(dir, profileID, cacheDBVersion); err != nil {
				logger.Warnf("app: cache for %s: %v", profileID, err)
			} else {
				// Прогреваем UI офлайн-данными до установления соединения.
				a.store.FetchContacts(profileID)
				a.store.FetchChats(profileID)
			}
		}
		if err := a.lc.Register("profile:"+profileID, func(context.Context) error {
			if !proto.Login() {
				return fmt.Errorf("login failed for %s", profileID)
			}
			return nil
		}, func() error {
			proto.CloseProfile()
			return nil
		}); err != nil {
			return err
		}
	}

	return a.lc.StartAll()
}

// loadProfiles перечисляет каталоги профилей и поднимает бэкенд по префиксу
// протокола в имени (формат <protocol>_<suffix>). Незнакомые протоколы
// пропускаются с предупреждением.
func (a *App) loadProfiles() ([]protocol.Protocol, error) {
	entries, err := os.ReadDir(a.settings.Dirs.Profiles)
	if err != nil {
		return nil, fmt.Errorf("read profiles dir: %w", err)
	}

	var out []protocol.Protocol
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		profileID := entry.Name()
		proto := a.newBackend(protocol.ProfileProtocolName(profileID))
		if proto == nil {
			logger.Warnf("app: unsupported protocol for profile %s", profileID)
			continue
		}
		if !proto.LoadProfile(a.settings.Dirs.Profiles, profileID) {
			logger.Errorf("app: failed to load profile %s", profileID)
			continue
		}
		out = append(out, proto)
	}
	return out, nil
}

// newBackend — фабрика бэкендов по имени протокола.
func (a *App) newBackend(protocolName string) protocol.Protocol {
	switch protocolName {
	case "Telegram":
		return telegram.New(a.mdl)
	default:
		return nil
	}
}

// OpenCacheOnly открывает кэш без модели и бэкендов — для одноразовых
// режимов (--export, --import, --query-cache). Возвращает хранилище и
// перечень найденных профилей.
func OpenCacheOnly(settings *config.Settings) (*cache.Store, []string, error) {
	entries, err := os.ReadDir(settings.Dirs.Profiles)
	if err != nil {
		return nil, nil, fmt.Errorf("read profiles dir: %w", err)
	}
	store := cache.NewStore(nil, settings.App.GetBool("cache_read_only"))
	var profiles []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		profileID := entry.Name()
		dir := settings.Dirs.ProfileDir(profileID)
		if err := store.AddProfile(dir, profileID, cacheDBVersion); err != nil {
			store.Close()
			return nil, nil, err
		}
		profiles = append(profiles, profileID)
	}
	return store, profiles, nil
}

// SetupProfile — интерактивное создание профиля (--setup): выбор протокола
// и делегирование бэкенду.
func (a *App) SetupProfile() error {
	proto := a.newBackend("Telegram")
	if proto == nil {
		return fmt.Errorf("no protocols available")
	}
	profileID, ok := proto.SetupProfile(a.settings.Dirs.Profiles)
	if !ok {
		return fmt.Errorf("profile setup aborted")
	}
	logger.Infof("app: created profile %s", profileID)
	fmt.Printf("Profile %s created.\n", profileID)
	return nil
}
