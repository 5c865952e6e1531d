// config предоставляет структуру конфигурации InfoMatrix
// и функции загрузки из YAML/ENV с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config — корневая конфигурация сервиса.
// Приоритет источников:
//  1. явный путь, переданный в MustLoad/Load;
//  2. переменная окружения CONFIG_PATH;
//  3. файл ./local.yaml из рабочей директории;
//  4. переменные окружения.
//
// Список источников (sources) выражается только в YAML: структурный список
// не задать переменными окружения, поэтому конфигурационный файл обязателен.
type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	DB       DBConfig       `yaml:"db"`
	Cache    CacheConfig    `yaml:"cache"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Limits   LimitsConfig   `yaml:"limits"`
	CORS     CORSConfig     `yaml:"cors"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Sources  []SourceConfig `yaml:"sources"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"15s"`
}

// HTTPConfig — публичный REST-сервер.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8000"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string { return net.JoinHostPort(h.Host, h.Port) }

// MetricsConfig — отдельный HTTP для Prometheus и проб живости.
type MetricsConfig struct {
	Host string `yaml:"host" env:"METRICS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"METRICS_PORT" env-default:"8001"`
}

// Addr возвращает адрес в формате host:port.
func (m MetricsConfig) Addr() string { return net.JoinHostPort(m.Host, m.Port) }

// DBConfig — настройки подключения к базе данных.
type DBConfig struct {
	URL string `yaml:"url" env:"DATABASE_URL" env-required:"true"`
}

// CacheConfig — подключение к Redis.
//
// Пустой URL переводит кэш в постоянный деградированный режим: сервис
// работает напрямую с БД. Это штатная конфигурация, а не ошибка запуска.
type CacheConfig struct {
	URL string        `yaml:"url" env:"REDIS_URL"`
	TTL time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"1h"`
}

// IngestConfig — параметры цикла обновления источников.
type IngestConfig struct {
	// Максимум одновременных HTTP-запросов к источникам.
	Concurrency int `yaml:"concurrency" env:"INGEST_CONCURRENCY" env-default:"4"`
	// Таймаут одного запроса к источнику.
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"INGEST_FETCH_TIMEOUT" env-default:"10s"`
	// Период фонового обновления; 0 выключает фоновые циклы,
	// остаются запуск при старте и ручной POST /posts/refresh.
	Interval time.Duration `yaml:"interval" env:"INGEST_INTERVAL" env-default:"0"`
	// Верхняя граница числа записей, забираемых из одного документа.
	MaxItemsPerFeed int `yaml:"max_items_per_feed" env:"INGEST_MAX_ITEMS" env-default:"50"`
}

// LimitsConfig — серверные лимиты на выдачу списков.
type LimitsConfig struct {
	// Применяется при запросе с limit=0.
	Default int `yaml:"default" env:"DEFAULT_LIMIT" env-default:"100"`
	// Верхняя граница для limit.
	Max int `yaml:"max" env:"MAX_LIMIT" env-default:"500"`
}

// CORSConfig — разрешённые источники для браузерных запросов фронта.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
}

// SourceConfig — статическое описание одного RSS/Atom-источника.
type SourceConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	SiteURL     string `yaml:"site_url"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", p)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		c, err := tryRead(path)
		if err != nil {
			return nil, err
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		return c, nil
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		c, err := tryRead(envPath)
		if err != nil {
			return nil, err
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		return c, nil
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		if err := cleanenv.ReadConfig("local.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read local.yaml: %w", err)
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate — базовая валидация значений.
func (c *Config) validate() error {
	if c.DB.URL == "" {
		return fmt.Errorf("db.url is required")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0")
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be > 0")
	}
	if c.Ingest.FetchTimeout <= 0 {
		return fmt.Errorf("ingest.fetch_timeout must be > 0")
	}
	if c.Ingest.Interval != 0 && c.Ingest.Interval < time.Minute {
		return fmt.Errorf("ingest.interval must be 0 (disabled) or at least 1m")
	}
	if c.Ingest.MaxItemsPerFeed <= 0 {
		return fmt.Errorf("ingest.max_items_per_feed must be > 0")
	}
	if c.Limits.Default <= 0 {
		return fmt.Errorf("limits.default must be > 0")
	}
	if c.Limits.Max <= 0 {
		return fmt.Errorf("limits.max must be > 0")
	}
	if c.Limits.Default > c.Limits.Max {
		return fmt.Errorf("limits.default must be <= limits.max")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("sources must contain at least one feed")
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = struct{}{}

		if s.Name == "" {
			return fmt.Errorf("sources[%d] (%s): name is required", i, s.ID)
		}
		u, err := url.Parse(s.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("sources[%d] (%s): url must be absolute http(s)", i, s.ID)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("sources[%d] (%s): unsupported url scheme %q", i, s.ID, u.Scheme)
		}
	}

	return nil
}
