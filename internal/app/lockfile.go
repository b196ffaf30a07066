// File lockfile.go: защита от второго экземпляра на одном каталоге
// конфигурации. Эксклюзивная flock-блокировка на <appdir>/lockfile живёт,
// пока жив процесс; снятие — закрытие дескриптора.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Lockfile — удерживаемая блокировка каталога приложения.
type Lockfile struct {
	file *os.File
}

// AcquireLock берёт эксклюзивную блокировку каталога. Возвращает ошибку,
// если другой экземпляр уже работает с этим каталогом.
func AcquireLock(appDir string) (*Lockfile, error) {
	path := filepath.Join(appDir, "lockfile")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lockfile: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("another instance is already running in %s", appDir)
	}
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	return &Lockfile{file: f}, nil
}

// Release снимает блокировку.
func (l *Lockfile) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	_ = l.file.Close()
}
