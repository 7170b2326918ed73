// Package config загружает настройки хоста playbook.
//
// Источники в порядке приоритета (последний побеждает):
//  1. значения по умолчанию
//  2. файл настроек (YAML или TOML), если указан
//  3. переменные окружения PLAYBOOK_*, DB_URL, RABBITMQ_URL
//
// Флаги командной строки применяются поверх в cmd/playbook.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Backend — режим координационного сервиса.
const (
	// BackendService — Postgres (entries) + RabbitMQ (переменные, tasks).
	BackendService = "service"

	// BackendLocal — SQLite (entries) + шина в памяти; все участники в одном процессе.
	BackendLocal = "local"
)

// ErrInvalidConfig — настройки некорректны.
var ErrInvalidConfig = errors.New("invalid config")

// Config — настройки хоста.
type Config struct {
	// Document — путь к playbook-документу (PLAYBOOK_CONFIG).
	Document string `koanf:"config"`

	// UserID — пользователь, от имени которого работает хост.
	UserID string `koanf:"user_id"`

	// JWT и CoreAddr передаются процессам шагов.
	JWT      string `koanf:"jwt"`
	CoreAddr string `koanf:"core_addr"`

	// Backend — service или local.
	Backend string `koanf:"backend"`

	// SQLitePath — файл entries в локальном режиме.
	SQLitePath string `koanf:"sqlite_path"`

	// Port — порт /healthz и /metrics.
	Port int `koanf:"port"`

	// Shell — интерпретатор команд шагов (пусто — bash или sh).
	Shell string `koanf:"shell"`

	// DBURL и RabbitMQURL — подключения в режиме service.
	DBURL       string `koanf:"db_url"`
	RabbitMQURL string `koanf:"rabbitmq_url"`
}

// Load собирает настройки из всех источников.
// path — необязательный файл настроек.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	defaults := map[string]any{
		"config":      "playbook.toml",
		"backend":     BackendService,
		"sqlite_path": "playbook.db",
		"port":        8083,
	}
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	// 1. Load from file
	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// 2. Load from ENV (PLAYBOOK_USER_ID -> user_id)
	if err := k.Load(env.Provider("PLAYBOOK_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "PLAYBOOK_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	// 3. Переменные подключений без префикса
	for _, name := range []string{"DB_URL", "RABBITMQ_URL"} {
		if err := k.Load(env.Provider(name, ".", strings.ToLower), nil); err != nil {
			return nil, fmt.Errorf("load env %s: %w", name, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendService, BackendLocal:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.Document == "" {
		return fmt.Errorf("%w: playbook document path is empty", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	return nil
}

// Addr возвращает адрес HTTP-сервера ":<port>".
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported settings file %q", ErrInvalidConfig, path)
	}
}
