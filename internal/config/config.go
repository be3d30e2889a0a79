package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"Server"`
	Database DatabaseConfig `mapstructure:"Database"`
	Upload   UploadConfig   `mapstructure:"Upload"`
}

type ServerConfig struct {
	Port    string `mapstructure:"Port"`
	BaseURL string `mapstructure:"BaseURL"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
}

// UploadConfig собирает все пороги чанковой загрузки в одном месте,
// чтобы тесты могли задавать нестандартный размер чанка
type UploadConfig struct {
	ChunkSizeBytes     int64 `mapstructure:"ChunkSizeBytes"`
	MaxRetries         int   `mapstructure:"MaxRetries"`
	BaseDelayMs        int   `mapstructure:"BaseDelayMs"`
	JitterMaxMs        int   `mapstructure:"JitterMaxMs"`
	AttemptTimeoutSec  int   `mapstructure:"AttemptTimeoutSec"`
	SessionTTLHours    int   `mapstructure:"SessionTTLHours"`
	SweepIntervalHours int   `mapstructure:"SweepIntervalHours"`
	StreamCapBytes     int64 `mapstructure:"StreamCapBytes"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	// Устанавливаем файл конфигурации
	v.SetConfigFile(path)

	// Привязываем переменные окружения
	v.BindEnv("Database.Host", "DATABASE_HOST")
	v.BindEnv("Database.Port", "DATABASE_PORT")
	v.BindEnv("Database.User", "DATABASE_USER")
	v.BindEnv("Database.Password", "DATABASE_PASSWORD")
	v.BindEnv("Database.Name", "DATABASE_NAME")
	v.BindEnv("Database.SSLMode", "DATABASE_SSLMODE")
	v.BindEnv("Server.Port", "HTTP_PORT")
	v.BindEnv("Upload.ChunkSizeBytes", "UPLOAD_CHUNK_SIZE_BYTES")
	v.BindEnv("Upload.SessionTTLHours", "UPLOAD_SESSION_TTL_HOURS")

	// Читаем конфигурацию из файла
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Проверяем переменные окружения напрямую если конфигурация неполная
	if cfg.Database.Host == "" {
		cfg.Database.Host = v.GetString("DATABASE_HOST")
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = v.GetString("DATABASE_PORT")
	}
	if cfg.Database.User == "" {
		cfg.Database.User = v.GetString("DATABASE_USER")
	}
	if cfg.Database.Password == "" {
		cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = v.GetString("DATABASE_NAME")
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = v.GetString("HTTP_PORT")
	}

	// Проверяем, что все необходимые поля заполнены
	if cfg.Database.Host == "" ||
		cfg.Database.Port == "" ||
		cfg.Database.User == "" ||
		cfg.Database.Password == "" ||
		cfg.Database.Name == "" {
		return nil, fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Name)
	}

	// Установка значений по умолчанию
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "2525"
	}

	if cfg.Upload.ChunkSizeBytes <= 0 {
		cfg.Upload.ChunkSizeBytes = 25 * 1024 * 1024 // 25MB
	}
	if cfg.Upload.MaxRetries <= 0 {
		cfg.Upload.MaxRetries = 3
	}
	if cfg.Upload.BaseDelayMs <= 0 {
		cfg.Upload.BaseDelayMs = 1000
	}
	if cfg.Upload.JitterMaxMs <= 0 {
		cfg.Upload.JitterMaxMs = 1000
	}
	if cfg.Upload.AttemptTimeoutSec <= 0 {
		cfg.Upload.AttemptTimeoutSec = 300 // 5 минут на попытку
	}
	if cfg.Upload.SessionTTLHours <= 0 {
		cfg.Upload.SessionTTLHours = 24
	}
	if cfg.Upload.SweepIntervalHours <= 0 {
		cfg.Upload.SweepIntervalHours = 24
	}
	if cfg.Upload.StreamCapBytes <= 0 {
		cfg.Upload.StreamCapBytes = 2 * 1024 * 1024 // 2MB на один range-запрос
	}

	return &cfg, nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

func (u *UploadConfig) BaseDelay() time.Duration {
	return time.Duration(u.BaseDelayMs) * time.Millisecond
}

func (u *UploadConfig) JitterMax() time.Duration {
	return time.Duration(u.JitterMaxMs) * time.Millisecond
}

func (u *UploadConfig) AttemptTimeout() time.Duration {
	return time.Duration(u.AttemptTimeoutSec) * time.Second
}

func (u *UploadConfig) SessionTTL() time.Duration {
	return time.Duration(u.SessionTTLHours) * time.Hour
}

func (u *UploadConfig) SweepInterval() time.Duration {
	return time.Duration(u.SweepIntervalHours) * time.Hour
}
