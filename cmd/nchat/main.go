// Package main — точка входа nchat: терминальный чат-клиент, мультиплексирующий
// несколько мессенджеров за одним интерфейсом.
// Здесь парсим флаги, готовим каталоги и конфигурацию, настраиваем логирование
// и организуем корректное завершение по системным сигналам (Ctrl+C/SIGTERM).
// Главная задача: инициализировать App и отдать ему управление, обеспечив
// graceful shutdown.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/kr/pretty"

	"nchat/internal/app"
	"nchat/internal/infra/config"
	"nchat/internal/infra/logger"
	"nchat/internal/infra/storage"
)

const version = "5.8.1"

// main поднимает окружение, стартует приложение и блокируется до завершения.
// Порядок:
//  1. flags: режимы запуска (--setup, --export, --import, ...); --version и
//     --keydump завершаются сразу,
//  2. dirs: каталоги приложения,
//  3. logger: файл log.txt, уровень по --verbose/-vv,
//  4. lockfile: один экземпляр на каталог конфигурации,
//  5. config: app.conf/ui.conf; одноразовые режимы завершаются здесь,
//  6. signals: контекст с отменой по Ctrl+C/SIGTERM,
//  7. app: Init(ctx, stop) и Run().
func main() {
	log.SetFlags(0)

	setup := flag.Bool("setup", false, "run guided profile creation")
	exportDir := flag.String("export", "", "export cached history to directory")
	importDir := flag.String("import", "", "import cached history from directory")
	keydump := flag.Bool("keydump", false, "dump raw key codes and exit")
	queryCache := flag.Bool("query-cache", false, "print cache contents and exit")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	veryVerbose := flag.Bool("vv", false, "enable debug logging with caller info")
	confDir := flag.String("confdir", "", "use custom config directory")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("nchat %s\n", version)
		return
	}
	if *keydump {
		runKeydump()
		return
	}

	dirs, err := config.NewDirs(*confDir)
	if err != nil {
		log.Fatalf("failed to init config dirs: %v", err)
	}

	level := "info"
	if *verbose || *veryVerbose {
		level = "debug"
	}
	logger.Init(level, dirs.LogPath())
	logger.SetCaller(*veryVerbose)

	// debug.info помогает при разборе багрепортов: версия, рантайм, момент
	// последнего запуска.
	debugInfo := fmt.Sprintf("version=%s\nruntime=%s %s/%s\nstarted=%s\n",
		version, runtime.Version(), runtime.GOOS, runtime.GOARCH,
		time.Now().Format("2006-01-02 15:04:05"))
	if err := storage.AtomicWriteFile(dirs.ConfPath("debug.info"), []byte(debugInfo)); err != nil {
		logger.Warnf("failed to write debug.info: %v", err)
	}

	lock, err := app.AcquireLock(dirs.App)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer lock.Release()

	settings := config.LoadSettings(dirs)
	a := app.NewApp(settings)

	// Одноразовые режимы, не требующие главного цикла.
	switch {
	case *setup:
		if err := a.SetupProfile(); err != nil {
			log.Fatalf("setup failed: %v", err)
		}
		return
	case *queryCache:
		if err := runQueryCache(a, settings); err != nil {
			log.Fatalf("query-cache failed: %v", err)
		}
		return
	case *exportDir != "":
		if err := runExportImport(a, settings, *exportDir, true); err != nil {
			log.Fatalf("export failed: %v", err)
		}
		return
	case *importDir != "":
		if err := runExportImport(a, settings, *importDir, false); err != nil {
			log.Fatalf("import failed: %v", err)
		}
		return
	}

	// Контекст с обработкой системных сигналов. stop() обязателен к вызову,
	// чтобы снять подписку.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Init(ctx, stop); err != nil {
		stop()
		log.Fatalf("app init failed: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		stop()
		log.Fatalf("app run failed: %v", err)
	}
	log.Println("Graceful shutdown complete")
}

// runKeydump печатает сырые байты ввода для отладки key.conf. Выход — Ctrl+C.
func runKeydump() {
	fmt.Println("Press keys to dump codes, Ctrl+C to exit.")
	buf := make([]byte, 16)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return
		}
		for _, b := range buf[:n] {
			if b == 3 { // Ctrl+C
				return
			}
			fmt.Printf("0x%02x ", b)
		}
		fmt.Println()
	}
}

// runQueryCache печатает содержимое кэша всех профилей.
func runQueryCache(a *app.App, settings *config.Settings) error {
	store, profiles, err := app.OpenCacheOnly(settings)
	if err != nil {
		return err
	}
	defer store.Close()
	for _, profileID := range profiles {
		snap, qErr := store.Query(profileID)
		if qErr != nil {
			return qErr
		}
		_, _ = pretty.Println(snap)
	}
	return nil
}

// runExportImport выгружает или загружает историю всех профилей.
func runExportImport(a *app.App, settings *config.Settings, dir string, export bool) error {
	store, profiles, err := app.OpenCacheOnly(settings)
	if err != nil {
		return err
	}
	defer store.Close()
	for _, profileID := range profiles {
		if export {
			err = store.Export(profileID, dir)
		} else {
			err = store.Import(profileID, dir)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
