package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации роутера.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	CAMS     CAMSConfig     `mapstructure:"cams"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера приема сообщений.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// Лимитер на прием сообщений (requests per second + burst)
	IngestRPS   float64 `mapstructure:"ingest_rps"`
	IngestBurst int     `mapstructure:"ingest_burst"`
}

// DatabaseConfig описывает подключение к PostgreSQL (хранилище CAMS).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (кэш резолва адресов).
// Пустой Addr отключает кэш целиком — роутер ходит напрямую в Postgres.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BrokerConfig описывает подключение к Kafka (publish primitive).
type BrokerConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// CAMSConfig — настройки устойчивости клиента каталога:
// ретраи для транзиентных сбоев БД, TTL кэша, Circuit Breaker.
type CAMSConfig struct {
	RetryAttempts  uint          `mapstructure:"retry_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`

	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	NegativeCacheTTL time.Duration `mapstructure:"negative_cache_ttl"`

	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if cfg.Database.URL == "" {
		return nil, errors.New("database.url (DATABASE_URL) is required")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.ingest_rps", 100)
	v.SetDefault("server.ingest_burst", 20)

	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("broker.brokers", []string{"localhost:9092"})
	v.SetDefault("broker.write_timeout", 10*time.Second)

	v.SetDefault("cams.retry_attempts", 3)
	v.SetDefault("cams.retry_base_delay", 100*time.Millisecond)
	v.SetDefault("cams.cache_ttl", 30*time.Second)
	v.SetDefault("cams.negative_cache_ttl", 5*time.Second)
	v.SetDefault("cams.cb_max_requests", 3)
	v.SetDefault("cams.cb_interval", 5*time.Second)
	v.SetDefault("cams.cb_timeout", 30*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}
