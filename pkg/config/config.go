package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/NewsDiscover/internal/domain"
	"github.com/joho/godotenv"
)

const defaultCategoriesPath = "config/categories.json"

type Config struct {
	ServerPort string

	NewsAPIURL     string
	NewsAPIKey     string
	NewsAPITimeout time.Duration
	PageSize       int
	MaxPages       int
	SortBy         string
	ArticleLang    string

	CacheRetention    time.Duration
	CacheMaxRetries   int
	CacheRetryBackoff time.Duration

	KeywordDebounce   time.Duration
	URLCommitDebounce time.Duration
	SessionTTL        time.Duration

	CategoriesFilePath string
	Categories         domain.Catalog

	MongoURI    string
	MongoDBName string
	MongoColl   string

	KafkaBrokers []string
	KafkaTopic   string

	OTLPEndpoint string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		NewsAPIURL:         strings.TrimRight(getEnv("NEWS_API_URL", "https://eventregistry.org/api/v1"), "/"),
		NewsAPIKey:         getEnv("NEWS_API_KEY", ""),
		NewsAPITimeout:     getDurationEnv("NEWS_API_TIMEOUT", 10*time.Second),
		PageSize:           getIntEnv("PAGE_SIZE", 12),
		MaxPages:           getIntEnv("MAX_PAGES", 10),
		SortBy:             getEnv("SORT_BY", "date"),
		ArticleLang:        getEnv("ARTICLE_LANG", "eng"),
		CacheRetention:     getDurationEnv("CACHE_RETENTION", 60*time.Second),
		CacheMaxRetries:    getIntEnv("CACHE_MAX_RETRIES", 3),
		CacheRetryBackoff:  getDurationEnv("CACHE_RETRY_BACKOFF", 500*time.Millisecond),
		KeywordDebounce:    getDurationEnv("KEYWORD_DEBOUNCE", 300*time.Millisecond),
		URLCommitDebounce:  getDurationEnv("URL_COMMIT_DEBOUNCE", 500*time.Millisecond),
		SessionTTL:         getDurationEnv("SESSION_TTL", 30*time.Minute),
		CategoriesFilePath: getEnv("CATEGORIES_FILE_PATH", defaultCategoriesPath),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDBName:        getEnv("MONGO_DB_NAME", "news_discover"),
		MongoColl:          getEnv("MONGO_COLLECTION", "category_uris"),
		KafkaBrokers:       splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "news_search_events"),
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.NewsAPIKey == "" {
		slog.Warn("NEWS_API_KEY is not configured, provider requests will be rejected")
	}

	cfg.Categories = loadCategories(cfg.CategoriesFilePath)
	return cfg
}

// MongoEnabled reports whether resolved category URIs are mirrored to MongoDB.
func (c *Config) MongoEnabled() bool {
	return c.MongoURI != ""
}

// KafkaEnabled reports whether search events are published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func loadCategories(path string) domain.Catalog {
	// If path doesn't exist, try fallback for convenience during dev/test if default was used
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultCategoriesPath {
		fallback := "../" + defaultCategoriesPath
		if _, err := os.Stat(fallback); err == nil {
			path = fallback
		}
	}

	file, err := os.Open(path)
	if err != nil {
		slog.Warn("Could not open categories file, using built-in catalog", "path", path, "error", err)
		return domain.DefaultCatalog()
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("Failed to close categories file", "error", err)
		}
	}()

	var categories domain.Catalog
	if err := json.NewDecoder(file).Decode(&categories); err != nil {
		slog.Error("Error decoding categories file, using built-in catalog", "path", path, "error", err)
		return domain.DefaultCatalog()
	}
	return withAllCategories(categories)
}

// withAllCategories normalizes ids and makes sure the "no filter" entry is first.
func withAllCategories(categories domain.Catalog) domain.Catalog {
	out := make(domain.Catalog, 0, len(categories)+1)
	out = append(out, domain.Category{ID: domain.AllCategories, Label: "All"})
	for _, c := range categories {
		c.ID = domain.NormalizeCategoryID(c.ID)
		if c.ID == domain.AllCategories {
			if c.Label != "" {
				out[0].Label = c.Label
			}
			continue
		}
		if c.Label == "" {
			c.Label = c.ID
		}
		out = append(out, c)
	}
	return out
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		// Try parsing as duration string (e.g. "1m", "60s")
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Try parsing as integer seconds
		if i, err := strconv.Atoi(value); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return fallback
}
