/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 * - github.com/shopspring/decimal: Validation of the payout threshold.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the credits-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	EventDedupePrefix     string `mapstructure:"EVENT_DEDUPE_PREFIX"`
	EventDedupeTTLMinutes int    `mapstructure:"EVENT_DEDUPE_TTL_MINUTES"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	CheckoutEventQueue    string `mapstructure:"CHECKOUT_EVENT_QUEUE"`
	AuthJWKSURL           string `mapstructure:"AUTH_JWKS_URL"`
	InternalAPIKey        string `mapstructure:"INTERNAL_API_KEY"`
	WebhookAuthToken      string `mapstructure:"ENTITLEMENT_WEBHOOK_TOKEN"`
	PayoutCronSchedule    string `mapstructure:"PAYOUT_CRON_SCHEDULE"`
	MinPayoutThreshold    string `mapstructure:"MIN_PAYOUT_THRESHOLD"`
	CheckoutRewardFirst   int64  `mapstructure:"CHECKOUT_REWARD_FIRST"`
	CheckoutRewardSecond  int64  `mapstructure:"CHECKOUT_REWARD_SECOND"`
	CheckoutRewardSteady  int64  `mapstructure:"CHECKOUT_REWARD_STEADY"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("EVENT_DEDUPE_PREFIX", "pantrychef:entitlement_events")
	viper.SetDefault("EVENT_DEDUPE_TTL_MINUTES", 1440)
	viper.SetDefault("CHECKOUT_EVENT_QUEUE", "credits_service.checkout_events")
	viper.SetDefault("PAYOUT_CRON_SCHEDULE", "0 2 * * *")
	viper.SetDefault("MIN_PAYOUT_THRESHOLD", "10.00")
	viper.SetDefault("CHECKOUT_REWARD_FIRST", 15)
	viper.SetDefault("CHECKOUT_REWARD_SECOND", 10)
	viper.SetDefault("CHECKOUT_REWARD_STEADY", 5)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "CREDITS_REDIS_URL")
	_ = viper.BindEnv("EVENT_DEDUPE_PREFIX")
	_ = viper.BindEnv("EVENT_DEDUPE_TTL_MINUTES")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("CHECKOUT_EVENT_QUEUE")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "CREDITS_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("ENTITLEMENT_WEBHOOK_TOKEN")
	_ = viper.BindEnv("PAYOUT_CRON_SCHEDULE")
	_ = viper.BindEnv("MIN_PAYOUT_THRESHOLD")
	_ = viper.BindEnv("CHECKOUT_REWARD_FIRST")
	_ = viper.BindEnv("CHECKOUT_REWARD_SECOND")
	_ = viper.BindEnv("CHECKOUT_REWARD_STEADY")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("CREDITS_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.EventDedupePrefix = strings.TrimSpace(config.EventDedupePrefix)
	if config.EventDedupePrefix == "" {
		config.EventDedupePrefix = "pantrychef:entitlement_events"
	}
	if config.EventDedupeTTLMinutes <= 0 {
		config.EventDedupeTTLMinutes = 1440
	}

	config.MinPayoutThreshold = strings.TrimSpace(config.MinPayoutThreshold)
	if threshold, parseErr := decimal.NewFromString(config.MinPayoutThreshold); parseErr != nil || threshold.IsNegative() {
		log.Printf("level=warn component=config msg=\"invalid MIN_PAYOUT_THRESHOLD; using default\" value=%q", config.MinPayoutThreshold)
		config.MinPayoutThreshold = "10.00"
	}

	if config.CheckoutRewardFirst < 0 {
		log.Printf("level=warn component=config msg=\"negative first checkout reward configured; coercing to zero\" amount=%d", config.CheckoutRewardFirst)
		config.CheckoutRewardFirst = 0
	}
	if config.CheckoutRewardSecond < 0 {
		log.Printf("level=warn component=config msg=\"negative second checkout reward configured; coercing to zero\" amount=%d", config.CheckoutRewardSecond)
		config.CheckoutRewardSecond = 0
	}
	if config.CheckoutRewardSteady < 0 {
		log.Printf("level=warn component=config msg=\"negative steady checkout reward configured; coercing to zero\" amount=%d", config.CheckoutRewardSteady)
		config.CheckoutRewardSteady = 0
	}

	return
}

// PayoutThreshold returns the minimum payout threshold as a decimal. The value
// is validated during LoadConfig, so parsing here cannot fail.
func (c Config) PayoutThreshold() decimal.Decimal {
	threshold, err := decimal.NewFromString(c.MinPayoutThreshold)
	if err != nil {
		return decimal.RequireFromString("10.00")
	}
	return threshold
}
