package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/trogers1052/stock-dashboard/internal/models"
	"gopkg.in/yaml.v3"
)

// Dedup mode names accepted in configuration
const (
	DedupRow    = "row"
	DedupDate   = "date"
	DedupValues = "values"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Mongo     MongoConfig      `yaml:"mongo"`
	Redis     RedisConfig      `yaml:"redis"`
	Kafka     KafkaConfig      `yaml:"kafka"`
	Provider  ProviderConfig   `yaml:"provider"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Dedup     DedupConfig      `yaml:"dedup"`
	Export    ExportConfig     `yaml:"export"`
	Log       LogConfig        `yaml:"log"`
	Watchlist models.Watchlist `yaml:"watchlist"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	DBName       string `yaml:"dbname"`
	SSLMode      string `yaml:"sslmode"`
	Schema       string `yaml:"schema"`
	QuotesTable  string `yaml:"quotes_table"`
	HistoryTable string `yaml:"history_table"`
	Migrate      bool   `yaml:"migrate"`
}

// MongoConfig holds the document store configuration
type MongoConfig struct {
	URI        string        `yaml:"uri"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RedisConfig holds the latest-quote cache configuration
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// ProviderConfig holds market data provider configuration
type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Proxy   string        `yaml:"proxy"`
}

// SchedulerConfig holds the polling loop configuration
type SchedulerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	HistoryCron  string        `yaml:"history_cron"`
	HistoryDays  int           `yaml:"history_days"`
	RunOnStartup bool          `yaml:"run_on_startup"`
}

// DedupConfig selects the duplicate detection mode per table
type DedupConfig struct {
	Quotes  string `yaml:"quotes"`
	History string `yaml:"history"`
}

// ExportConfig holds flat-file export configuration
type ExportConfig struct {
	CSVPath string `yaml:"csv_path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultWatchlist is the symbol list used when none is configured
var DefaultWatchlist = models.Watchlist{
	{Symbol: "FDX", Name: "Fedex"},
	{Symbol: "^GSPC", Name: "Standard & Poor's 500"},
	{Symbol: "GOOGL", Name: "Google"},
	{Symbol: "MSFT", Name: "Microsoft"},
	{Symbol: "AMZN", Name: "Amazon"},
	{Symbol: "TSLA", Name: "Tesla"},
	{Symbol: "^DJI", Name: "Dow Jones Industrial"},
	{Symbol: "COMP", Name: "Compass, Inc."},
	{Symbol: "AAPL", Name: "Apple"},
	{Symbol: "AVGO", Name: "Avago Technologies Limited (Broadcom)"},
	{Symbol: "NBIX", Name: "Neurocrine Biosciences, Inc."},
	{Symbol: "NVDA", Name: "Nvidia"},
	{Symbol: "NKE", Name: "Nike"},
	{Symbol: "LULU", Name: "Lululemon"},
	{Symbol: "CYBR", Name: "Cyber Arc Software Ltd."},
	{Symbol: "BLK", Name: "Black Rock, Inc."},
}

// Load reads configuration from a YAML file, then applies environment
// variable overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrideString(&c.Server.Port, "SERVER_PORT")
	overrideString(&c.Server.Host, "SERVER_HOST")

	overrideString(&c.Database.Host, "DB_HOST")
	overrideString(&c.Database.Port, "DB_PORT")
	overrideString(&c.Database.User, "DB_USER")
	overrideString(&c.Database.Password, "DB_PASSWORD")
	overrideString(&c.Database.DBName, "DB_NAME")
	overrideString(&c.Database.SSLMode, "DB_SSLMODE")
	overrideString(&c.Database.Schema, "DB_SCHEMA")

	overrideString(&c.Mongo.URI, "MONGO_URI")
	overrideString(&c.Mongo.Database, "MONGO_DATABASE")
	overrideString(&c.Mongo.Collection, "MONGO_COLLECTION")

	overrideString(&c.Redis.Address, "REDIS_ADDR")
	overrideString(&c.Redis.Password, "REDIS_PASSWORD")

	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	overrideString(&c.Kafka.Topic, "KAFKA_TOPIC")

	overrideString(&c.Provider.BaseURL, "PROVIDER_BASE_URL")
	overrideString(&c.Provider.Proxy, "HTTPS_PROXY")

	if v := getEnv("POLL_INTERVAL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scheduler.Interval = d
		}
	}

	overrideString(&c.Log.Level, "LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.Port, "8080")
	setDefault(&c.Server.Host, "0.0.0.0")

	setDefault(&c.Database.Host, "localhost")
	setDefault(&c.Database.Port, "5432")
	setDefault(&c.Database.User, "postgres")
	setDefault(&c.Database.Password, "postgres")
	setDefault(&c.Database.DBName, "stockdashboard")
	setDefault(&c.Database.SSLMode, "disable")
	setDefault(&c.Database.Schema, "student")
	setDefault(&c.Database.QuotesTable, "stock")
	setDefault(&c.Database.HistoryTable, "historic_stock")

	setDefault(&c.Mongo.URI, "mongodb://localhost:27017")
	setDefault(&c.Mongo.Database, "stockdashboard")
	setDefault(&c.Mongo.Collection, "historic_stock")
	if c.Mongo.Timeout == 0 {
		c.Mongo.Timeout = 10 * time.Second
	}

	if c.Redis.TTL == 0 {
		c.Redis.TTL = 24 * time.Hour
	}

	setDefault(&c.Kafka.Topic, "quote-events")
	setDefault(&c.Kafka.GroupID, "stock-dashboard")

	setDefault(&c.Provider.BaseURL, "https://query1.finance.yahoo.com")
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 30 * time.Second
	}

	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = 10 * time.Second
	}
	if c.Scheduler.HistoryDays == 0 {
		c.Scheduler.HistoryDays = 30
	}

	setDefault(&c.Dedup.Quotes, DedupRow)
	setDefault(&c.Dedup.History, DedupDate)

	setDefault(&c.Export.CSVPath, "mongo_data.csv")

	setDefault(&c.Log.Level, "info")
	setDefault(&c.Log.Format, "text")

	if len(c.Watchlist) == 0 {
		c.Watchlist = append(models.Watchlist(nil), DefaultWatchlist...)
	}
}

// Validate checks that all required fields are set and well formed
func (c *Config) Validate() error {
	if len(c.Watchlist) == 0 {
		return fmt.Errorf("watchlist must contain at least one symbol")
	}
	seen := make(map[string]bool, len(c.Watchlist))
	for i, e := range c.Watchlist {
		if strings.TrimSpace(e.Symbol) == "" {
			return fmt.Errorf("watchlist[%d].symbol is required", i)
		}
		if seen[e.Symbol] {
			return fmt.Errorf("watchlist symbol %s is duplicated", e.Symbol)
		}
		seen[e.Symbol] = true
	}

	for field, ident := range map[string]string{
		"database.schema":        c.Database.Schema,
		"database.quotes_table":  c.Database.QuotesTable,
		"database.history_table": c.Database.HistoryTable,
	} {
		if !identPattern.MatchString(ident) {
			return fmt.Errorf("%s %q is not a valid identifier", field, ident)
		}
	}
	if c.Database.QuotesTable == c.Database.HistoryTable {
		return fmt.Errorf("database.quotes_table and database.history_table must differ")
	}

	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if c.Scheduler.HistoryDays < 0 {
		return fmt.Errorf("scheduler.history_days must not be negative")
	}

	for field, mode := range map[string]string{
		"dedup.quotes":  c.Dedup.Quotes,
		"dedup.history": c.Dedup.History,
	} {
		switch mode {
		case DedupRow, DedupDate, DedupValues:
		default:
			return fmt.Errorf("%s: unknown mode %q", field, mode)
		}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}

	if c.Provider.Proxy != "" {
		u, err := url.Parse(c.Provider.Proxy)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("provider.proxy %q is not a valid proxy URL", c.Provider.Proxy)
		}
	}

	if c.Export.CSVPath == "" {
		return fmt.Errorf("export.csv_path is required")
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// Address returns the HTTP listen address
func (s *ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func overrideString(dst *string, key string) {
	*dst = getEnv(key, *dst)
}

func setDefault(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
