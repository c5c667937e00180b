// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	HTTPAddr    string
	CORSOrigins []string
	TrustProxy  bool // honour X-Forwarded-For / X-Real-IP

	// Default issuer and UI endpoints (tenant-specific override via provider)
	Issuer     string
	LoginURL   string
	ConsentURL string
	ErrorURL   string

	// Lifetimes
	SessionTTL      time.Duration
	CodeTTL         time.Duration
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	RotateRefreshTokens bool
	RefreshCookieName   string
	SigningKeySize      int
	RegistryFile        string

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                 env("AUTH_ENV", "dev"),
		HTTPAddr:            env("AUTH_HTTP_ADDR", ":8080"),
		CORSOrigins:         envList("AUTH_CORS_ORIGINS", "http://localhost:3000"),
		TrustProxy:          envBool("AUTH_TRUST_PROXY", false),
		Issuer:              env("OIDC_ISSUER", "http://localhost:8080"),
		LoginURL:            env("LOGIN_URL", "http://localhost:3000/login"),
		ConsentURL:          env("CONSENT_URL", "http://localhost:3000/consent"),
		ErrorURL:            env("ERROR_URL", ""),
		SessionTTL:          envDur("SESSION_TTL_SEC", 900) * time.Second,
		CodeTTL:             envDur("AUTH_CODE_TTL_SEC", 300) * time.Second,
		AccessTokenTTL:      envDur("ACCESS_TOKEN_TTL_SEC", 3600) * time.Second,
		RefreshTokenTTL:     envDur("REFRESH_TOKEN_TTL_SEC", 30*24*3600) * time.Second,
		RotateRefreshTokens: envBool("ROTATE_REFRESH_TOKENS", false),
		RefreshCookieName:   env("REFRESH_COOKIE_NAME", "refresh_token"),
		SigningKeySize:      envInt("SIGNING_KEY_SIZE", 2048),
		RegistryFile:        env("CLIENT_REGISTRY_FILE", ""),
		RedisURL:            env("REDIS_URL", ""),
		DatabaseURL:         env("DATABASE_URL", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set, durable stores are in-memory")
	}
	if cfg.RedisURL == "" {
		log.Println("[WARN] REDIS_URL not set, challenges and codes are kept in process memory")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envList(k, def string) []string {
	var out []string
	for _, p := range strings.Split(env(k, def), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
func envDur(k string, def int) time.Duration {
	return time.Duration(envInt(k, def))
}
