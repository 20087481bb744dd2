package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v4"
	"golang.org/x/time/rate"
)

type Config struct {
	Port           string
	Environment    string
	LogLevel       string
	AllowedOrigins []string
	JWTSecret      string
	DatabaseURI    string
	StoreTimeout   time.Duration
	Redis          RedisConfig
	Socket         SocketConfig
	ICEServers     []webrtc.ICEServer
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Enabled reports whether a Redis host was configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// SocketConfig tunes the per-connection behaviour of the signaling socket.
type SocketConfig struct {
	SendBufferSize     int
	MaxMessageSize     int64
	FrameRateLimit     rate.Limit
	FrameRateBurst     int
	HandshakeRateLimit rate.Limit
	HandshakeRateBurst int
}

// Load merges an optional .env file into the environment and builds the
// configuration from it. Only a malformed ICE server setting is an error.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// Parse allowed origins (comma-separated)
	origins := splitCommaSeparated(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"))

	iceServers, err := parseICEServers(
		os.Getenv(envICEServersJSON),
		os.Getenv(envStunURLs),
		os.Getenv(envTurnURLs),
		os.Getenv(envTurnUsername),
		os.Getenv(envTurnCredential),
	)
	if err != nil {
		return nil, fmt.Errorf("ice servers: %w", err)
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: origins,
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		DatabaseURI:    os.Getenv("DATABASE_URI"),
		StoreTimeout:   time.Duration(getEnvInt("STORE_TIMEOUT_SECONDS", 5)) * time.Second,
		Redis: RedisConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Socket: SocketConfig{
			SendBufferSize:     getEnvInt("SEND_BUFFER_SIZE", 256),
			MaxMessageSize:     int64(getEnvInt("MAX_MESSAGE_SIZE", 65536)),
			FrameRateLimit:     rate.Limit(getEnvInt("FRAME_RATE_LIMIT", 50)),
			FrameRateBurst:     getEnvInt("FRAME_RATE_BURST", 100),
			HandshakeRateLimit: rate.Limit(getEnvInt("HANDSHAKE_RATE_LIMIT", 5)),
			HandshakeRateBurst: getEnvInt("HANDSHAKE_RATE_BURST", 10),
		},
		ICEServers: iceServers,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the positive integer stored in key, or defaultValue when
// the variable is unset or not a positive integer. REDIS_DB may be zero.
func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || val < 0 || (val == 0 && key != "REDIS_DB") {
		return defaultValue
	}
	return val
}

func splitCommaSeparated(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
