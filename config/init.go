package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/archiveworks/mailarch/internal/logger"
	"github.com/archiveworks/mailarch/internal/tracing"
)

func InitConfig() (*Config, error) {
	config := &Config{
		App:      &AppConfig{},
		Logger:   &logger.Config{},
		Tracing:  &tracing.JaegerConfig{},
		Database: &DatabaseConfig{},
		Purge:    &PurgeConfig{},
		ListSync: &ListSyncConfig{},
		SMTP:     &SMTPConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, err
	}

	return config, nil
}
