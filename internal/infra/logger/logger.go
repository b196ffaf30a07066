// Package logger — централизованная обёртка над zap для всего приложения.
// Позволяет инициализировать уровень логирования и целевой файл, а также
// переназначать потоки на лету. Использует zap.AtomicLevel для динамической
// смены уровня и mutex для потокобезопасности. Файл log.txt в каталоге
// конфигурации ротируется через lumberjack, чтобы история чата не тонула
// в бесконечном логе.

package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// mu защищает доступ к глобальному состоянию логгера от одновременных изменений.
	mu sync.Mutex
	// log хранит текущий экземпляр zap.Logger, используемый во всём приложении.
	log *zap.Logger
	// logLevel управляет динамическим уровнем логирования без пересоздания ядра.
	logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	// fileWriter — текущий sink для файла лога. До Init пишем в stderr,
	// чтобы ранние сообщения не терялись.
	fileWriter = zapcore.Lock(zapcore.AddSync(os.Stderr))
	// stderrWriter — поток внутренних ошибок самого zap.
	stderrWriter = zapcore.Lock(zapcore.AddSync(os.Stderr))
	// withCaller добавляет caller в записи; включается при -vv.
	withCaller bool
)

// Ротация файла лога: терминальный клиент живёт неделями, поэтому
// ограничиваем файл и число бэкапов.
const (
	logMaxSizeMB  = 5
	logMaxBackups = 2
)

// defaultEncoderConfig формирует консольный encoder без цветов (лог пишется
// в файл, escape-последовательности там только мешают). Формат времени
// фиксирован (YYYY-MM-DD HH:MM:SS).
func defaultEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// rebuildLoggerLocked пересоздаёт глобальный логгер с текущими настройками.
// Предполагается, что вызывающий уже удерживает mu. AddCallerSkip(1) скрывает
// обёртки logger.* в стеке вызовов. Перед заменой предыдущий логгер Sync(),
// чтобы сбросить буферы.
func rebuildLoggerLocked() {
	encoder := zapcore.NewConsoleEncoder(defaultEncoderConfig())
	core := zapcore.NewCore(encoder, fileWriter, logLevel)
	if log != nil {
		_ = log.Sync()
	}
	opts := []zap.Option{zap.ErrorOutput(stderrWriter)}
	if withCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	log = zap.New(core, opts...)
}

// Init инициализирует глобальный zap-логгер: уровень и путь к файлу лога.
// Допустимые уровни: debug, info (по умолчанию), warn, error; сравнение без
// учёта регистра. Пустой path оставляет вывод в stderr без файла лога.
// Потокобезопасно.
func Init(level string, path string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(level) {
	case "debug":
		logLevel.SetLevel(zap.DebugLevel)
	case "warn":
		logLevel.SetLevel(zap.WarnLevel)
	case "error":
		logLevel.SetLevel(zap.ErrorLevel)
	default:
		logLevel.SetLevel(zap.InfoLevel)
	}

	if path != "" {
		rotated := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
		}
		fileWriter = zapcore.Lock(zapcore.AddSync(rotated))
	}
	rebuildLoggerLocked()
}

// SetCaller включает/выключает печать caller (флаг -vv) и пересобирает core.
func SetCaller(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	withCaller = enabled
	rebuildLoggerLocked()
}

// SetWriters переназначает целевые потоки логгера и пересобирает core.
// Nil означает прежний файл/stderr.
func SetWriters(file, stderr io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		fileWriter = zapcore.Lock(zapcore.AddSync(file))
	}
	if stderr != nil {
		stderrWriter = zapcore.Lock(zapcore.AddSync(stderr))
	}
	rebuildLoggerLocked()
}

// Logger возвращает текущий zap.Logger, лениво создавая его при первом обращении.
// Возвращается "сырое" API (не Sugared); предпочтительнее передавать структурированные zap.Field.
func Logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	if log == nil {
		rebuildLoggerLocked()
	}
	return log
}

// IsDebugEnabled проверяет, включен ли debug уровень логирования.
func IsDebugEnabled() bool {
	return Logger().Level() <= zap.DebugLevel
}

// Debug пишет структурированное сообщение уровня Debug.
func Debug(msg string, fields ...zap.Field) { Logger().Debug(msg, fields...) }

// Info пишет структурированное сообщение уровня Info.
func Info(msg string, fields ...zap.Field) { Logger().Info(msg, fields...) }

// Warn пишет структурированное предупреждение уровня Warn.
func Warn(msg string, fields ...zap.Field) { Logger().Warn(msg, fields...) }

// Error пишет структурированное сообщение об ошибке уровня Error.
func Error(msg string, fields ...zap.Field) { Logger().Error(msg, fields...) }

// Fatal пишет структурированное сообщение об ошибке уровня Fatal и завершает работу приложения.
func Fatal(msg string, fields ...zap.Field) {
	Logger().Fatal(msg, fields...)
	_ = Logger().Sync() // Обязательно сбросить буферы перед os.Exit
	os.Exit(1)
}

// Debugf форматирует сообщение через fmt.Sprintf. Используйте экономно:
// форматирование аллоцирует; для горячих путей предпочтительны структурированные поля.
func Debugf(msg string, a ...any) { Logger().Debug(fmt.Sprintf(msg, a...)) }

// Infof форматирует сообщение через fmt.Sprintf. Для горячих путей лучше использовать Info с полями.
func Infof(msg string, a ...any) { Logger().Info(fmt.Sprintf(msg, a...)) }

// Warnf форматирует сообщение через fmt.Sprintf. Предпочтительнее передавать данные через zap.Field.
func Warnf(msg string, a ...any) { Logger().Warn(fmt.Sprintf(msg, a...)) }

// Errorf форматирует сообщение через fmt.Sprintf. В критичных участках используйте Error с полями.
func Errorf(msg string, a ...any) { Logger().Error(fmt.Sprintf(msg, a...)) }
