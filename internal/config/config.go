package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BotToken    string
	BotUsername string

	AdminIDs   []int64
	ManagerIDs []int64
	StaffIDs   []int64

	PostgresURL string
	DBDriver    string
	Port        string

	EventBroker  string
	KafkaBrokers []string
	RabbitMQURL  string

	EmailServiceURL string
	ReportEmail     string
	StaffEmail      string
	ReportTime      string
	ReportDays      int

	RoomSessionTTL time.Duration
	RoomSessionMax int
	ReceiptsDir    string
	NotifyRetries  int

	MigrationsPath string
}

const (
	BrokerKafka    = "kafka"
	BrokerRabbitMQ = "rabbitmq"
)

// Load reads the environment, after applying an optional .env file from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		BotToken:        os.Getenv("BOT_TOKEN"),
		BotUsername:     strings.TrimPrefix(os.Getenv("BOT_USERNAME"), "@"),
		PostgresURL:     os.Getenv("POSTGRES_URL"),
		DBDriver:        getEnv("DB_DRIVER", "postgres"),
		Port:            getEnv("PORT", "8080"),
		EventBroker:     getEnv("EVENT_BROKER", BrokerKafka),
		KafkaBrokers:    splitList(os.Getenv("KAFKA_BROKERS")),
		RabbitMQURL:     os.Getenv("RABBITMQ_URL"),
		EmailServiceURL: os.Getenv("EMAIL_SERVICE_URL"),
		ReportEmail:     os.Getenv("REPORT_EMAIL"),
		StaffEmail:      os.Getenv("STAFF_EMAIL"),
		ReportTime:      getEnv("REPORT_TIME", "08:00"),
		ReceiptsDir:     os.Getenv("RECEIPTS_DIR"),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "file://migrations"),
	}

	var err error
	if cfg.AdminIDs, err = parseIDs("ADMIN_IDS"); err != nil {
		return nil, err
	}
	if cfg.ManagerIDs, err = parseIDs("MANAGER_IDS"); err != nil {
		return nil, err
	}
	if cfg.StaffIDs, err = parseIDs("STAFF_IDS"); err != nil {
		return nil, err
	}
	if cfg.ReportDays, err = getInt("REPORT_DAYS", 30); err != nil {
		return nil, err
	}
	if cfg.RoomSessionMax, err = getInt("ROOM_SESSION_MAX", 10000); err != nil {
		return nil, err
	}
	if cfg.NotifyRetries, err = getInt("NOTIFY_RETRIES", 0); err != nil {
		return nil, err
	}
	if cfg.RoomSessionTTL, err = getDuration("ROOM_SESSION_TTL", 72*time.Hour); err != nil {
		return nil, err
	}

	switch cfg.EventBroker {
	case BrokerKafka, BrokerRabbitMQ:
	default:
		return nil, fmt.Errorf("EVENT_BROKER must be %q or %q, got %q", BrokerKafka, BrokerRabbitMQ, cfg.EventBroker)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration, got %q", key, v)
	}
	return d, nil
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

func parseIDs(key string) ([]int64, error) {
	var ids []int64
	for _, part := range splitList(os.Getenv(key)) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid id %q", key, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
