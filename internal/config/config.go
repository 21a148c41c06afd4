package config

import (
	"os"
	"strconv"
)

type Config struct {
	DB     DBConfig
	JWT    JWTConfig
	Server ServerConfig
	Secret SecretConfig
}

type DBConfig struct {
	// Driver selects the relational backend: "postgres" or "sqlite".
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	// Path is the sqlite database file when Driver is "sqlite".
	Path string
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port      string
	BodyLimit int
}

type SecretConfig struct {
	// EncryptionKey feeds the AES-GCM transform for opaque outward folder ids.
	EncryptionKey string
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "wagnpan"),
			Password: getEnv("DB_PASSWORD", "wagnpan_secret"),
			Name:     getEnv("DB_NAME", "wagnpan"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "wagnpan.db"),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port:      getEnv("SERVER_PORT", "8080"),
			BodyLimit: getEnvAsInt("SERVER_BODY_LIMIT_MB", 100) * 1024 * 1024,
		},
		Secret: SecretConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
