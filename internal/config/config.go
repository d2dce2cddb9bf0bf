package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	DatabaseDSN           string
	JWTSecret             string
	Env                   string
	AccessTokenTTLMinutes int
	CORSOrigins           []string
	RateLimitPerSec       int
	RateLimitBurst        int
	AdminEmail            string
	AdminPassword         string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// Load 读取环境变量生成配置，存在 .env 文件时先加载它。
func Load() Config {
	_ = godotenv.Load()

	port := getenv("APP_PORT", "8080")
	dsn := getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=saas_dashboard port=5432 sslmode=disable TimeZone=UTC")
	secret := getenv("JWT_SECRET", "dev-secret-change-me")
	env := getenv("APP_ENV", "dev")
	accessTTLStr := getenv("ACCESS_TOKEN_TTL_MINUTES", "60")
	accessTTL, _ := strconv.Atoi(accessTTLStr)
	ratePerSec, _ := strconv.Atoi(getenv("RATE_LIMIT_PER_SEC", "20"))
	rateBurst, _ := strconv.Atoi(getenv("RATE_LIMIT_BURST", "40"))

	origins := []string{}
	for _, o := range strings.Split(getenv("CORS_ORIGINS", "http://localhost:5173"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		Port:                  port,
		DatabaseDSN:           dsn,
		JWTSecret:             secret,
		Env:                   env,
		AccessTokenTTLMinutes: accessTTL,
		CORSOrigins:           origins,
		RateLimitPerSec:       ratePerSec,
		RateLimitBurst:        rateBurst,
		AdminEmail:            getenv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword:         getenv("ADMIN_PASSWORD", "admin123"),
	}
}
