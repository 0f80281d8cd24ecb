package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Neo4j    Neo4jConfig
	Valkey   ValkeyConfig
	Watcher  WatcherConfig
	Scan     ScanConfig
	Ingest   IngestConfig
	Queue    QueueConfig
	APIKey   string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type Neo4jConfig struct {
	URI      string
	User     string
	Password string
}

type ValkeyConfig struct {
	Addr     string
	Password string
	DB       int
}

type WatcherConfig struct {
	CodebaseRoot    string
	Debounce        time.Duration
	IgnoredPatterns []string
}

type ScanConfig struct {
	Workers int
}

type IngestConfig struct {
	RelationshipBatchSize   int
	ResolutionInterval      time.Duration
	GracefulShutdownTimeout time.Duration
}

type QueueConfig struct {
	PublishMaxAttempts int
	PublishBackoff     time.Duration
	// Extensions maps lower-case file extensions (with dot) to the
	// normalized language tag of the analyzer queue that handles them.
	Extensions map[string]string
}

// Languages returns the distinct language tags in the extension map, sorted.
func (q QueueConfig) Languages() []string {
	seen := make(map[string]bool)
	var langs []string
	for _, lang := range q.Extensions {
		if !seen[lang] {
			seen[lang] = true
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	return langs
}

// LanguageForFile returns the analyzer language for a file path, or "" when
// no analyzer handles its extension.
func (q QueueConfig) LanguageForFile(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return q.Extensions[strings.ToLower(path[idx:])]
}

const defaultExtensions = ".py=python,.sql=sql"

func Load() (*Config, error) {
	exts, err := parseExtensions(getEnv("ANALYZER_EXTENSIONS", defaultExtensions))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT_SECS", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT_SECS", 60)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "codegraph"),
			Password: getEnv("DB_PASSWORD", "codegraph"),
			Name:     getEnv("DB_NAME", "codegraph"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 5)),
		},
		Neo4j: Neo4jConfig{
			URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
			User:     getEnv("NEO4J_USER", "neo4j"),
			Password: getEnv("NEO4J_PASSWORD", "codegraph"),
		},
		Valkey: ValkeyConfig{
			Addr:     getEnv("VALKEY_ADDR", "localhost:6379"),
			Password: getEnv("VALKEY_PASSWORD", ""),
			DB:       getEnvInt("VALKEY_DB", 0),
		},
		Watcher: WatcherConfig{
			CodebaseRoot:    getEnv("CODEBASE_ROOT", "/codebase"),
			Debounce:        time.Duration(getEnvInt("DEBOUNCE_MS", 500)) * time.Millisecond,
			IgnoredPatterns: splitList(getEnv("IGNORED_PATTERNS", "node_modules,.git,__pycache__,venv,.env")),
		},
		Scan: ScanConfig{
			Workers: getEnvInt("SCAN_WORKERS", 8),
		},
		Ingest: IngestConfig{
			RelationshipBatchSize:   getEnvInt("RELATIONSHIP_BATCH_SIZE", 100),
			ResolutionInterval:      time.Duration(getEnvInt("RELATIONSHIP_RESOLUTION_INTERVAL", 30)) * time.Second,
			GracefulShutdownTimeout: time.Duration(getEnvInt("GRACEFUL_SHUTDOWN_TIMEOUT_SECS", 10)) * time.Second,
		},
		Queue: QueueConfig{
			PublishMaxAttempts: getEnvInt("PUBLISH_MAX_ATTEMPTS", 5),
			PublishBackoff:     time.Duration(getEnvInt("PUBLISH_BACKOFF_MS", 200)) * time.Millisecond,
			Extensions:         exts,
		},
		APIKey: getEnv("CODEGRAPH_API_KEY", "changeme"),
	}
	return cfg, nil
}

// parseExtensions parses ".py=python,.sql=sql" style pairs.
func parseExtensions(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range splitList(s) {
		ext, lang, ok := strings.Cut(pair, "=")
		if !ok || ext == "" || lang == "" {
			return nil, fmt.Errorf("invalid ANALYZER_EXTENSIONS entry %q", pair)
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[strings.ToLower(ext)] = strings.ToLower(lang)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
