package config

import (
	"log"
	"os"
	"time"
)

// Config holds the service configuration. Capabilities like CRM sync are
// resolved once here and injected, never read from a process-global flag
// client at call time.
type Config struct {
	Env         string
	Port        string
	JWTSecret   string
	DatabaseURL string

	QueueDriver    string // outbox | redis | memory
	RedisAddr      string
	WorkerInterval time.Duration

	CRMEnabled     bool
	HubSpotToken   string
	HubSpotBaseURL string

	MailerAPIKey  string
	MailerBaseURL string
	MailFrom      string
}

// Load reads the configuration from environment variables.
func Load() Config {
	cfg := Config{
		Env:         getEnv("API_ENV", "development"),
		Port:        getEnv("API_PORT", "8080"),
		JWTSecret:   getEnv("API_JWT_SECRET", "changeme-super-secret"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		QueueDriver:    getEnv("QUEUE_DRIVER", "outbox"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		WorkerInterval: getDuration("WORKER_INTERVAL", 5*time.Second),

		CRMEnabled:     getEnv("CRM_ENABLED", "false") == "true",
		HubSpotToken:   getEnv("HUBSPOT_TOKEN", ""),
		HubSpotBaseURL: getEnv("HUBSPOT_BASE_URL", ""),

		MailerAPIKey:  getEnv("MAILER_API_KEY", ""),
		MailerBaseURL: getEnv("MAILER_BASE_URL", ""),
		MailFrom:      getEnv("MAIL_FROM", "no-reply@scope3.example"),
	}

	if cfg.JWTSecret == "" || cfg.JWTSecret == "changeme-super-secret" {
		log.Println("[WARNING] API_JWT_SECRET is unset or using the default value. Do not use in production.")
	}

	if cfg.CRMEnabled && cfg.HubSpotToken == "" {
		log.Println("[INFO] CRM_ENABLED is set but HUBSPOT_TOKEN is empty. CRM jobs will fail until configured.")
	}

	return cfg
}

func (c Config) HTTPAddr() string {
	return ":" + c.Port
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("[WARNING] %s is not a valid duration, using default %s", key, def)
	}
	return def
}
