package config

import (
	"encoding/json"
	"flag"
	"os"
	"strings"
)

type Config struct {
	Port string `json:"port"`

	// Postgres: пусто = схемы и записи в памяти
	DBURL string `json:"dbUrl"`
	// Redis: пусто = документный бэкенд не поднимается
	RedisAddr string `json:"redisAddr"`

	// Маршрутизация сущностей по бэкендам
	RoutingFile    string `json:"routingFile"`    // yaml с правилами, опционально
	DefaultBackend string `json:"defaultBackend"` // пусто = выбираем по наличию бэкендов

	// Стартовые схемы
	SeedDir string `json:"seedDir"` // каталог *.yaml, пусто = без сида

	LogMode string `json:"logMode"` // "dev" (default) | "prod"
}

func def() Config {
	return Config{
		Port:           "8080",
		DBURL:          "",
		RedisAddr:      "",
		RoutingFile:    "",
		DefaultBackend: "",
		SeedDir:        "",
		LogMode:        "dev",
	}
}

func loadJSON(path string) (Config, error) {
	c := def()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, err
	}
	return c, nil
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

// LoadWithPath читает JSON по указанному пути, потом применяет ENV и флаги.
// Флаги регистрируются и парсятся один раз: -config с другим путём меняет
// только JSON-слой, повторной регистрации флагов нет.
func LoadWithPath(jsonPath string) Config {
	configPath := flag.String("config", jsonPath, "Path to config JSON")
	port := flag.String("port", "", "HTTP port")
	db := flag.String("db", "", "Postgres URL (empty = in-memory)")
	redisAddr := flag.String("redis", "", "Redis address (empty = no document backend)")
	routing := flag.String("routing", "", "Path to routing yaml")
	defBackend := flag.String("default-backend", "", "Default storage backend")
	seed := flag.String("seed", "", "Path to schema seed directory")
	logMode := flag.String("log", "", "Log mode (dev/prod)")

	flag.Parse()

	// JSON (если файл существует)
	cfg := def()
	if st, err := os.Stat(*configPath); err == nil && !st.IsDir() {
		if c2, err := loadJSON(*configPath); err == nil {
			cfg = c2
		}
	}

	// ENV overrides
	cfg.Port = getenv("KOROB_PORT", cfg.Port)
	cfg.DBURL = getenv("KOROB_DB_URL", cfg.DBURL)
	cfg.RedisAddr = getenv("KOROB_REDIS_ADDR", cfg.RedisAddr)
	cfg.RoutingFile = getenv("KOROB_ROUTING_FILE", cfg.RoutingFile)
	cfg.DefaultBackend = getenv("KOROB_DEFAULT_BACKEND", cfg.DefaultBackend)
	cfg.SeedDir = getenv("KOROB_SEED_DIR", cfg.SeedDir)
	cfg.LogMode = getenv("KOROB_LOG_MODE", cfg.LogMode)

	// Flags overrides (только явно переданные)
	override := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	override(&cfg.Port, *port)
	override(&cfg.DBURL, *db)
	override(&cfg.RedisAddr, *redisAddr)
	override(&cfg.RoutingFile, *routing)
	override(&cfg.DefaultBackend, *defBackend)
	override(&cfg.SeedDir, *seed)
	override(&cfg.LogMode, *logMode)

	return cfg
}
