// File paths.go: вычисление каталогов приложения.
// Приоритет: legacy ~/.nchat (если существует) → $XDG_CONFIG_HOME/nchat →
// ~/.config/nchat. Внутри каталога живут app.conf, ui.conf, key.conf,
// color.conf, log.txt, temp/ и подкаталог profiles/ с данными бэкендов.
package config

import (
	"os"
	"path/filepath"
)

// Dirs описывает раскладку файловой системы приложения. Значение считается
// один раз на старте и передаётся дальше по конструкторам.
type Dirs struct {
	App      string // корневой каталог конфигурации
	Profiles string // per-profile данные бэкендов и кэш сообщений
	Temp     string // временные файлы (вложения на просмотр и т. п.)
}

// DefaultAppDir возвращает каталог конфигурации согласно приоритету
// legacy → XDG → ~/.config. Наличие legacy-каталога проверяется на диске.
func DefaultAppDir() string {
	homeDir := os.Getenv("HOME")

	// Старый ~/.nchat поддерживается для обратной совместимости.
	legacy := filepath.Join(homeDir, ".nchat")
	if fi, err := os.Stat(legacy); err == nil && fi.IsDir() {
		return legacy
	}

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configHome, "nchat")
}

// NewDirs строит раскладку от корневого каталога и создаёт недостающие
// подкаталоги. appDir == "" означает DefaultAppDir().
func NewDirs(appDir string) (Dirs, error) {
	if appDir == "" {
		appDir = DefaultAppDir()
	}
	d := Dirs{
		App:      appDir,
		Profiles: filepath.Join(appDir, "profiles"),
		Temp:     filepath.Join(appDir, "temp"),
	}
	for _, dir := range []string{d.App, d.Profiles, d.Temp} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return Dirs{}, err
		}
	}
	return d, nil
}

// LogPath возвращает путь файла лога внутри каталога приложения.
func (d Dirs) LogPath() string { return filepath.Join(d.App, "log.txt") }

// ConfPath возвращает путь конфигурационного файла по имени (app.conf и т. п.).
func (d Dirs) ConfPath(name string) string { return filepath.Join(d.App, name) }

// ProfileDir возвращает каталог данных конкретного профиля.
func (d Dirs) ProfileDir(profileID string) string {
	return filepath.Join(d.Profiles, profileID)
}
