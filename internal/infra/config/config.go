// Пакет config отвечает за конфигурацию всего приложения. Формат файлов —
// строчные пары key=value (app.conf, ui.conf); разбор делегирован godotenv,
// который нативно понимает этот формат вместе с комментариями. Ключи, не
// представленные в карте значений по умолчанию, отбрасываются при загрузке;
// удалённые ключи восстанавливаются при повторном добавлении в дефолты.
//
// По сравнению с классическими процесс-глобальными синглтонами конфигурация
// собирается в одно значение Settings и передаётся через конструкторы: тесты
// строят свежий экземпляр без глобального состояния.
package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"nchat/internal/infra/logger"
	"nchat/internal/infra/storage"
)

// File — один конфигурационный файл key=value с картой значений по умолчанию.
// Потокобезопасность: геттеры берут RLock; Set/Save — эксклюзивный Lock.
type File struct {
	path string
	mu   sync.RWMutex
	vals map[string]string
}

// LoadFile читает файл конфигурации поверх карты дефолтов. Отсутствующий файл
// не является ошибкой: создаём его с дефолтами, как делает первая загрузка
// приложения. Ошибка разбора отдельной строки — молча пропуск (ключ остаётся
// со значением по умолчанию, spec-поведение "config parse error: silent").
func LoadFile(path string, defaults map[string]string) *File {
	f := &File{
		path: path,
		vals: make(map[string]string, len(defaults)),
	}
	for k, v := range defaults {
		f.vals[k] = v
	}

	data, err := os.ReadFile(path)
	if err != nil {
		// Первый запуск: фиксируем дефолты на диске, чтобы пользователь
		// видел полный набор ручек.
		if saveErr := f.Save(); saveErr != nil {
			logger.Warnf("config: create %s: %v", path, saveErr)
		}
		return f
	}

	parsed := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		kv, err := godotenv.Unmarshal(line)
		if err != nil {
			continue
		}
		for k, v := range kv {
			parsed[k] = v
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range parsed {
		// Ключи вне карты дефолтов отбрасываются при загрузке.
		if _, known := f.vals[k]; !known {
			continue
		}
		f.vals[k] = v
	}
	return f
}

// Save сериализует текущее состояние в отсортированном виде и атомарно
// записывает файл. Порядок ключей стабилен, чтобы диффы конфигов читались.
func (f *File) Save() error {
	f.mu.RLock()
	keys := make([]string, 0, len(f.vals))
	for k := range f.vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s=%s\n", k, f.vals[k])
	}
	f.mu.RUnlock()

	return storage.AtomicWriteFile(f.path, buf.Bytes())
}

// Get возвращает строковое значение ключа (пустая строка для неизвестного ключа).
func (f *File) Get(param string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.vals[param]
}

// GetBool трактует "1" как true, всё остальное — false (формат оригинала).
func (f *File) GetBool(param string) bool {
	return f.Get(param) == "1"
}

// GetNum возвращает целочисленное значение ключа; нечисловые значения дают 0.
func (f *File) GetNum(param string) int {
	v, err := strconv.Atoi(strings.TrimSpace(f.Get(param)))
	if err != nil {
		return 0
	}
	return v
}

// Set записывает значение ключа. Ключи, отсутствующие в дефолтах, создавать
// разрешено: Save их сохранит, а повторная загрузка с той же картой дефолтов
// отбросит — это сознательная семантика формата.
func (f *File) Set(param, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vals[param] = value
}

// SetBool записывает булево значение в формате "0"/"1".
func (f *File) SetBool(param string, value bool) {
	if value {
		f.Set(param, "1")
	} else {
		f.Set(param, "0")
	}
}

// SetNum записывает целочисленное значение.
func (f *File) SetNum(param string, value int) {
	f.Set(param, strconv.Itoa(value))
}

// Exist проверяет наличие ключа.
func (f *File) Exist(param string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.vals[param]
	return ok
}

// Delete удаляет ключ из текущего состояния.
func (f *File) Delete(param string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vals, param)
}
