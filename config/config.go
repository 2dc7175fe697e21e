package config

import (
	"github.com/archiveworks/mailarch/internal/logger"
	"github.com/archiveworks/mailarch/internal/tracing"
)

type Config struct {
	App      *AppConfig
	Logger   *logger.Config
	Tracing  *tracing.JaegerConfig
	Database *DatabaseConfig
	Purge    *PurgeConfig
	ListSync *ListSyncConfig
	SMTP     *SMTPConfig
}

type AppConfig struct {
	// LockTimeout bounds the wait on the global load serialization
	// lock so a stuck loader cannot wedge the pipeline.
	LockTimeoutSeconds int `env:"LOAD_LOCK_TIMEOUT" envDefault:"30"`
}

type DatabaseConfig struct {
	Host            string `env:"ARCHIVES_POSTGRES_HOST,required"`
	Port            string `env:"ARCHIVES_POSTGRES_PORT" envDefault:"5432"`
	User            string `env:"ARCHIVES_POSTGRES_USER,required"`
	DBName          string `env:"ARCHIVES_POSTGRES_DB_NAME,required"`
	Password        string `env:"ARCHIVES_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"ARCHIVES_POSTGRES_DB_MAX_CONN" envDefault:"10"`
	MaxIdleConn     int    `env:"ARCHIVES_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"5"`
	ConnMaxLifetime int    `env:"ARCHIVES_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"300"`
	LogLevel        string `env:"ARCHIVES_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"ARCHIVES_POSTGRES_SSL_MODE" envDefault:"disable"`
}

type PurgeConfig struct {
	// URL of the cache purge endpoint. Empty disables purging.
	URL        string `env:"PURGE_URL"`
	HostHeader string `env:"PURGE_HOST_HEADER"`
}

type ListSyncConfig struct {
	// URL serving the list/group membership document.
	URL      string `env:"LISTSYNC_URL"`
	Schedule string `env:"LISTSYNC_CRON" envDefault:"17 */4 * * *"`
}

type SMTPConfig struct {
	Server       string `env:"SMTP_SERVER" envDefault:"localhost:25"`
	HeloName     string `env:"SMTP_HELO_NAME"`
	Resender     string `env:"SMTP_RESENDER_ADDRESS"`
	PollInterval int    `env:"SMTP_RESEND_POLL_SECONDS" envDefault:"300"`
}
