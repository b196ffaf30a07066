// Package extprog — запуск внешних программ: просмотр ссылок и вложений,
// pager, редактор, проверка орфографии. Команды задаются шаблонами с
// подстановкой %1 вместо цели. Шаблон с завершающим '&' запускается в фоне и
// терминал не освобождает; иначе программа получает терминал: вызывающий
// приостанавливает отрисовку, после завершения дренируется накопившийся ввод.
package extprog

import (
	"os"
	"os/exec"
	"strings"

	"nchat/internal/infra/logger"
)

// Runner исполняет командные шаблоны. Хуки Suspend/Resume отдаёт слой вью
// (endwin/refresh в терминах curses); nil-хуки допустимы.
type Runner struct {
	// Suspend освобождает терминал перед синхронным запуском.
	Suspend func()
	// Resume возвращает терминал и дренирует накопленный ввод.
	Resume func()
}

// Expand подставляет цель в шаблон. Цель экранируется для sh.
func Expand(template string, target string) string {
	quoted := "'" + strings.ReplaceAll(target, "'", `'\''`) + "'"
	return strings.ReplaceAll(template, "%1", quoted)
}

// Run исполняет шаблон с целью. Фоновые команды (хвостовой '&') стартуют и
// не ожидаются; синхронные получают stdin/stdout терминала на время работы.
func (r *Runner) Run(template string, target string) error {
	cmdLine := strings.TrimSpace(Expand(template, target))
	if cmdLine == "" {
		return nil
	}

	if strings.HasSuffix(cmdLine, "&") {
		cmd := exec.Command("/bin/sh", "-c", cmdLine)
		if err := cmd.Start(); err != nil {
			logger.Warnf("extprog: start %q: %v", cmdLine, err)
			return err
		}
		go func() { _ = cmd.Wait() }()
		return nil
	}

	if r.Suspend != nil {
		r.Suspend()
	}
	cmd := exec.Command("/bin/sh", "-c", cmdLine)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if r.Resume != nil {
		r.Resume()
	}
	if err != nil {
		logger.Warnf("extprog: run %q: %v", cmdLine, err)
	}
	return err
}

// DefaultEditor возвращает команду редактора: $EDITOR либо vi.
func DefaultEditor() string {
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor + " %1"
	}
	return "vi %1"
}

// DefaultPager возвращает команду пейджера: $PAGER либо less.
func DefaultPager() string {
	if pager := os.Getenv("PAGER"); pager != "" {
		return pager + " %1"
	}
	return "less %1"
}

// RunCapture исполняет шаблон и возвращает stdout (для spell-checker и
// подобных фильтров).
func (r *Runner) RunCapture(template string, target string) (string, error) {
	cmdLine := strings.TrimSpace(Expand(template, target))
	if cmdLine == "" {
		return "", nil
	}
	out, err := exec.Command("/bin/sh", "-c", cmdLine).Output()
	if err != nil {
		logger.Warnf("extprog: capture %q: %v", cmdLine, err)
		return "", err
	}
	return string(out), nil
}
