package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/maverick250/aml-interactive-dashboard/internal/core"
)

type Config struct {
	// HTTP Server
	Port           string
	MaxUploadBytes int64
	SessionTTL     time.Duration

	// Aggregation
	HomeCountry string

	// Narrative (optional)
	OpenAIKey        string
	OpenAIModel      string
	NarrativeTimeout time.Duration

	// Analysis history (optional; empty path disables)
	HistoryDBPath string

	// Spotlight alerts over AMQP (optional; empty URL disables)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets report export (optional)
	GoogleSpreadsheetID string
	ReportSheetName     string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 16<<20),
		SessionTTL:     getEnvDuration("SESSION_TTL", 30*time.Minute),

		HomeCountry: getEnv("HOME_COUNTRY_CODE", core.DefaultHomeCountry),

		OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", ""),
		NarrativeTimeout: getEnvDuration("NARRATIVE_TIMEOUT", 15*time.Second),

		HistoryDBPath: getEnv("HISTORY_DB_PATH", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "quicklook"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "spotlight_alerts"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		ReportSheetName:     getEnv("REPORT_SHEET_NAME", "QuickLook Reports"),
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	home := strings.TrimSpace(c.HomeCountry)
	if len(home) != 2 {
		errs = append(errs, fmt.Sprintf("invalid home country code '%s': must be a 2-letter code", c.HomeCountry))
	}

	if c.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Sprintf("invalid max upload bytes %d: must be at least 1", c.MaxUploadBytes))
	}

	if c.SessionTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if c.NarrativeTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("invalid narrative timeout %v: must be at least 1 second", c.NarrativeTimeout))
	}

	if c.HistoryDBPath != "" {
		dir := filepath.Dir(c.HistoryDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create history database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// NarrativeEnabled reports whether the optional analyst-note feature
// has a credential configured.
func (c *Config) NarrativeEnabled() bool {
	return strings.TrimSpace(c.OpenAIKey) != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
