package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	applog "bilancio/internal/log"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string
	BackupDir    string

	// Ledger
	PeriodStartDay        int
	HorizonMonths         int
	RolloverExtendMonths  int
	OverdueCountsAsActual bool
	AutoRollover          bool

	// AMQP, disabled when the URL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/bilancio.db"),
		BackupDir:    getEnv("BACKUP_DIR", ""),

		PeriodStartDay:        getEnvInt("PERIOD_START_DAY", 27),
		HorizonMonths:         getEnvInt("HORIZON_MONTHS", 6),
		RolloverExtendMonths:  getEnvInt("ROLLOVER_EXTEND_MONTHS", 1),
		OverdueCountsAsActual: getEnvBool("OVERDUE_COUNTS_AS_ACTUAL", true),
		AutoRollover:          getEnvBool("AUTO_ROLLOVER", true),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "bilancio"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate validates the configuration and returns an error listing every problem.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.BackupDir != "" {
		if info, err := os.Stat(c.BackupDir); err == nil && !info.IsDir() {
			errors = append(errors, fmt.Sprintf("backup path '%s' is not a directory", c.BackupDir))
		}
	}

	// 28 keeps every start day valid in February.
	if c.PeriodStartDay < 2 || c.PeriodStartDay > 28 {
		errors = append(errors, fmt.Sprintf("invalid period start day %d: must be between 2 and 28", c.PeriodStartDay))
	}
	if c.HorizonMonths < 1 || c.HorizonMonths > 6 {
		errors = append(errors, fmt.Sprintf("invalid horizon %d: must be between 1 and 6 months", c.HorizonMonths))
	}
	if c.RolloverExtendMonths < 1 || c.RolloverExtendMonths > 6 {
		errors = append(errors, fmt.Sprintf("invalid rollover extension %d: must be between 1 and 6 months", c.RolloverExtendMonths))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if _, err := applog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// EventsEnabled reports whether ledger events are published.
func (c *Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
