// File settings.go: агрегат конфигурации приложения и карты значений по
// умолчанию для app.conf / ui.conf. Набор ключей взят из реального клиента;
// ключи, отсутствующие здесь, отбрасываются при загрузке файлов.
package config

import "nchat/internal/infra/logger"

// Settings объединяет все конфигурационные файлы и раскладку каталогов.
// Создаётся один раз в main и передаётся по конструкторам подсистем.
type Settings struct {
	Dirs Dirs
	App  *File // app.conf: поведение ядра
	UI   *File // ui.conf: поведение интерфейса
}

// appDefaults — ручки ядра. Булевы значения кодируются как "0"/"1".
func appDefaults() map[string]string {
	return map[string]string{
		"assert_abort":        "0",
		"attachment_prefetch": "1",
		"cache_enabled":       "1",
		"cache_read_only":     "0",
		"coredump_enabled":    "0",
		"downloads_dir":       "",
		"link_send_preview":   "1",
		"logdump_enabled":     "0",
		"message_delete":      "1",
		"proxy_host":          "",
		"proxy_pass":          "",
		"proxy_port":          "",
		"proxy_user":          "",
		"timestamp_iso":       "0",
		"use_pairing_code":    "0",
		"use_qr_terminal":     "0",
	}
}

// uiDefaults — ручки интерфейса. Индикаторы заданы юникодными строками.
func uiDefaults() map[string]string {
	return map[string]string{
		"attachment_indicator":             "\U0001F4CE",
		"attachment_open_command":          "",
		"confirm_deletion":                 "1",
		"desktop_notify_active_current":    "0",
		"desktop_notify_active_noncurrent": "1",
		"desktop_notify_command":           "",
		"desktop_notify_enabled":           "0",
		"desktop_notify_inactive":          "1",
		"downloadable_indicator":           "+",
		"emoji_enabled":                    "1",
		"entry_height":                     "4",
		"failed_indicator":                 "✗",
		"help_enabled":                     "1",
		"home_fetch_all":                   "0",
		"link_open_command":                "",
		"list_enabled":                     "1",
		"list_width":                       "14",
		"listdialog_show_filter":           "1",
		"mark_read_any_chat":               "0",
		"mark_read_on_view":                "1",
		"mark_read_when_inactive":          "0",
		"message_edit_command":             "",
		"message_open_command":             "",
		"muted_indicate_unread":            "1",
		"muted_notify_unread":              "0",
		"muted_position_by_timestamp":      "1",
		"notify_every_unread":              "1",
		"online_status_share":              "1",
		"read_indicator":                   "✓",
		"reactions_enabled":                "1",
		"spell_check_command":              "",
		"syncing_indicator":                "⇄",
		"terminal_bell_active":             "0",
		"terminal_bell_inactive":           "1",
		"terminal_title":                   "",
		"top_enabled":                      "1",
		"typing_status_share":              "1",
		"undo_clear_input":                 "1",
		"unread_indicator":                 "*",
	}
}

// LoadSettings загружает app.conf и ui.conf из каталога приложения,
// создавая файлы с дефолтами при первом запуске.
func LoadSettings(dirs Dirs) *Settings {
	return &Settings{
		Dirs: dirs,
		App:  LoadFile(dirs.ConfPath("app.conf"), appDefaults()),
		UI:   LoadFile(dirs.ConfPath("ui.conf"), uiDefaults()),
	}
}

// NewTestSettings строит конфигурацию в памяти для тестов: пути файлов лежат в
// tmpDir, с диска ничего не читается, значения — дефолтные плюс overrides.
func NewTestSettings(tmpDir string, uiOverrides map[string]string) *Settings {
	dirs := Dirs{App: tmpDir, Profiles: tmpDir, Temp: tmpDir}
	s := &Settings{
		Dirs: dirs,
		App:  &File{path: dirs.ConfPath("app.conf"), vals: appDefaults()},
		UI:   &File{path: dirs.ConfPath("ui.conf"), vals: uiDefaults()},
	}
	for k, v := range uiOverrides {
		s.UI.Set(k, v)
	}
	return s
}

// Save сбрасывает все конфигурационные файлы на диск (вызывается при выходе,
// как и в оригинале — чтобы зафиксировать ключи, изменённые в рантайме).
func (s *Settings) Save() {
	for _, f := range []*File{s.App, s.UI} {
		if f == nil {
			continue
		}
		if err := f.Save(); err != nil {
			logger.Errorf("config: save %s: %v", f.path, err)
		}
	}
}
