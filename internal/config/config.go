/**
 * @description
 * This file handles configuration management for the billing-service.
 * It loads settings from environment variables, providing defaults for the
 * cron schedules, worker pool size and boundary-call timeout.
 */
package config

import (
	"errors"

	"github.com/spf13/viper"
)

// Config holds all configuration for the billing service.
type Config struct {
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	AMQPURL                string `mapstructure:"AMQP_URL"`
	KafkaBrokerURL         string `mapstructure:"KAFKA_BROKER_URL"`
	KafkaCommandsTopic     string `mapstructure:"KAFKA_COMMANDS_TOPIC"`
	ServerPort             string `mapstructure:"SERVER_PORT"`
	MonthlyPassSchedule    string `mapstructure:"MONTHLY_PASS_SCHEDULE"`
	HourlyPassSchedule     string `mapstructure:"HOURLY_PASS_SCHEDULE"`
	NotificationSchedule   string `mapstructure:"NOTIFICATION_PASS_SCHEDULE"`
	BillingWorkerCount     int    `mapstructure:"BILLING_WORKER_COUNT"`
	BoundaryTimeoutSeconds int    `mapstructure:"BOUNDARY_TIMEOUT_SECONDS"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("MONTHLY_PASS_SCHEDULE", "0 2 1 * *")   // At 02:00 on day-of-month 1.
	viper.SetDefault("HOURLY_PASS_SCHEDULE", "0 * * * *")    // At the top of every hour.
	viper.SetDefault("NOTIFICATION_PASS_SCHEDULE", "30 * * * *") // At minute 30 of every hour.
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("KAFKA_COMMANDS_TOPIC", "device-commands")
	viper.SetDefault("BILLING_WORKER_COUNT", 16)
	viper.SetDefault("BOUNDARY_TIMEOUT_SECONDS", 5)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("AMQP_URL")
	_ = viper.BindEnv("KAFKA_BROKER_URL")
	_ = viper.BindEnv("KAFKA_COMMANDS_TOPIC")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("MONTHLY_PASS_SCHEDULE")
	_ = viper.BindEnv("HOURLY_PASS_SCHEDULE")
	_ = viper.BindEnv("NOTIFICATION_PASS_SCHEDULE")
	_ = viper.BindEnv("BILLING_WORKER_COUNT")
	_ = viper.BindEnv("BOUNDARY_TIMEOUT_SECONDS")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if config.BillingWorkerCount <= 0 {
		config.BillingWorkerCount = 16
	}

	return &config, nil
}
