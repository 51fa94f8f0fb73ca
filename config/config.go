package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	NeighborhoodsPath string
	StationsPath      string
	OutputDir         string

	FeedBaseURL    string
	FeedProperty   int
	FeedTopArea    int
	FeedTransport  string
	ListingBaseURL string
	RoutingBaseURL string

	MaxConcurrency     int
	RoutingConcurrency int
	RateLimitMs        int
	RoutingRatePerSec  float64
	MaxRetries         int
	RequestTimeout     time.Duration
	PipelineTimeout    time.Duration
	RoutingCacheSize   int

	DedupeByToken    bool
	WalkSpeedMPerMin float64

	StoreDriver      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	SQLitePath       string

	ExportGeoJSON   bool
	ExportShapefile bool

	ChromeBin  string
	LogLevel   string
	LogNoColor bool
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		NeighborhoodsPath: getEnv("NEIGHBORHOODS_PATH", "./data/neighborhoods.csv"),
		StationsPath:      getEnv("STATIONS_PATH", "./data/dankal.xlsx"),
		OutputDir:         getEnv("OUTPUT_DIR", "./output"),

		FeedBaseURL:    getEnv("FEED_BASE_URL", "https://gw.yad2.co.il/realestate-feed/rent/map"),
		FeedProperty:   getEnvInt("FEED_PROPERTY", 1),
		FeedTopArea:    getEnvInt("FEED_TOP_AREA", 2),
		FeedTransport:  strings.ToLower(getEnv("FEED_TRANSPORT", "http")),
		ListingBaseURL: getEnv("LISTING_BASE_URL", "https://www.yad2.co.il/realestate/item/"),
		RoutingBaseURL: getEnv("ROUTING_BASE_URL", "http://router.project-osrm.org"),

		MaxConcurrency:     getEnvInt("MAX_CONCURRENCY", 10),
		RoutingConcurrency: getEnvInt("ROUTING_CONCURRENCY", 8),
		RateLimitMs:        getEnvInt("RATE_LIMIT_MS", 200),
		RoutingRatePerSec:  getEnvFloat("ROUTING_RATE_PER_SEC", 5),
		MaxRetries:         getEnvInt("MAX_RETRIES", 3),
		RequestTimeout:     time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 15)) * time.Second,
		PipelineTimeout:    time.Duration(getEnvInt("PIPELINE_TIMEOUT_MIN", 60)) * time.Minute,
		RoutingCacheSize:   getEnvInt("ROUTING_CACHE_SIZE", 50000),

		DedupeByToken:    getEnvBool("DEDUPE_BY_TOKEN", false),
		WalkSpeedMPerMin: getEnvFloat("WALK_SPEED_M_PER_MIN", 80),

		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", "none")),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "rental_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		SQLitePath:       getEnv("SQLITE_PATH", "./output/apartments.db"),

		ExportGeoJSON:   getEnvBool("EXPORT_GEOJSON", true),
		ExportShapefile: getEnvBool("EXPORT_SHAPEFILE", false),

		ChromeBin:  getEnv("CHROME_BIN", ""),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogNoColor: getEnvBool("LOG_NO_COLOR", false),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
