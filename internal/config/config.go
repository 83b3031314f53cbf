/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the transfer-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                   string `mapstructure:"SERVER_PORT"`
	DatabaseURL                  string `mapstructure:"DATABASE_URL"`
	RedisURL                     string `mapstructure:"REDIS_URL"`
	RedisCachePrefix             string `mapstructure:"REDIS_CACHE_PREFIX"`
	RabbitMQURL                  string `mapstructure:"RABBITMQ_URL"`
	EventExchange                string `mapstructure:"EVENT_EXCHANGE"`
	GatewayAPIBaseURL            string `mapstructure:"GATEWAY_API_BASE_URL"`
	GatewayAPIKey                string `mapstructure:"GATEWAY_API_KEY"`
	JWKSURL                      string `mapstructure:"JWKS_URL"`
	FeeServiceURL                string `mapstructure:"FEE_SERVICE_URL"`
	FeeServiceInternalAPIKey     string `mapstructure:"FEE_SERVICE_INTERNAL_API_KEY"`
	AccountServiceURL            string `mapstructure:"ACCOUNT_SERVICE_URL"`
	AccountServiceInternalAPIKey string `mapstructure:"ACCOUNT_SERVICE_INTERNAL_API_KEY"`
	InternalAPIKey               string `mapstructure:"INTERNAL_API_KEY"`
	MinTransferAmountMinor       int64  `mapstructure:"MIN_TRANSFER_AMOUNT_MINOR"`
	NarrationMaxLength           int    `mapstructure:"NARRATION_MAX_LENGTH"`
	AccountNumberLength          int    `mapstructure:"ACCOUNT_NUMBER_LENGTH"`
	TransactionPINLength         int    `mapstructure:"TRANSACTION_PIN_LENGTH"`
	ResolverDebounceMS           int    `mapstructure:"RESOLVER_DEBOUNCE_MS"`
	ResolverCacheTTLMinutes      int    `mapstructure:"RESOLVER_CACHE_TTL_MINUTES"`
	GatewayTimeoutSeconds        int    `mapstructure:"GATEWAY_TIMEOUT_SECONDS"`
	RefundReconcileSchedule      string `mapstructure:"REFUND_RECONCILE_SCHEDULE"`
	RefundReconcileBatchSize     int    `mapstructure:"REFUND_RECONCILE_BATCH_SIZE"`
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
	viper.SetDefault("EVENT_EXCHANGE", "payvault.events")
	viper.SetDefault("REDIS_CACHE_PREFIX", "payvault:transfer")
	viper.SetDefault("MIN_TRANSFER_AMOUNT_MINOR", 100)
	viper.SetDefault("NARRATION_MAX_LENGTH", 140)
	viper.SetDefault("ACCOUNT_NUMBER_LENGTH", 10)
	viper.SetDefault("TRANSACTION_PIN_LENGTH", 4)
	viper.SetDefault("RESOLVER_DEBOUNCE_MS", 400)
	viper.SetDefault("RESOLVER_CACHE_TTL_MINUTES", 15)
	viper.SetDefault("GATEWAY_TIMEOUT_SECONDS", 30)
	viper.SetDefault("REFUND_RECONCILE_SCHEDULE", "@every 5m")
	viper.SetDefault("REFUND_RECONCILE_BATCH_SIZE", 20)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "TRANSFER_REDIS_URL")
	_ = viper.BindEnv("REDIS_CACHE_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("GATEWAY_API_BASE_URL")
	_ = viper.BindEnv("GATEWAY_API_KEY")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("FEE_SERVICE_URL")
	_ = viper.BindEnv("FEE_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("ACCOUNT_SERVICE_URL")
	_ = viper.BindEnv("ACCOUNT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "TRANSFER_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("MIN_TRANSFER_AMOUNT_MINOR")
	_ = viper.BindEnv("NARRATION_MAX_LENGTH")
	_ = viper.BindEnv("ACCOUNT_NUMBER_LENGTH")
	_ = viper.BindEnv("TRANSACTION_PIN_LENGTH")
	_ = viper.BindEnv("RESOLVER_DEBOUNCE_MS")
	_ = viper.BindEnv("RESOLVER_CACHE_TTL_MINUTES")
	_ = viper.BindEnv("GATEWAY_TIMEOUT_SECONDS")
	_ = viper.BindEnv("REFUND_RECONCILE_SCHEDULE")
	_ = viper.BindEnv("REFUND_RECONCILE_BATCH_SIZE")

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
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("TRANSFER_SERVICE_INTERNAL_API_KEY"))
	}
	config.FeeServiceInternalAPIKey = strings.TrimSpace(config.FeeServiceInternalAPIKey)
	if config.FeeServiceInternalAPIKey == "" {
		config.FeeServiceInternalAPIKey = config.InternalAPIKey
	}
	config.AccountServiceInternalAPIKey = strings.TrimSpace(config.AccountServiceInternalAPIKey)
	if config.AccountServiceInternalAPIKey == "" {
		config.AccountServiceInternalAPIKey = config.InternalAPIKey
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisCachePrefix = strings.TrimSpace(config.RedisCachePrefix)
	if config.RedisCachePrefix == "" {
		config.RedisCachePrefix = "payvault:transfer"
	}

	if config.MinTransferAmountMinor < 0 {
		log.Printf("level=warn component=config msg=\"negative minimum transfer amount configured; coercing to zero\" amount_minor=%d", config.MinTransferAmountMinor)
		config.MinTransferAmountMinor = 0
	}
	if config.NarrationMaxLength <= 0 {
		config.NarrationMaxLength = 140
	}
	if config.AccountNumberLength <= 0 {
		config.AccountNumberLength = 10
	}
	if config.TransactionPINLength <= 0 {
		config.TransactionPINLength = 4
	}
	if config.ResolverDebounceMS < 0 {
		log.Printf("level=warn component=config msg=\"negative resolver debounce configured; coercing to zero\" debounce_ms=%d", config.ResolverDebounceMS)
		config.ResolverDebounceMS = 0
	}
	if config.ResolverCacheTTLMinutes <= 0 {
		config.ResolverCacheTTLMinutes = 15
	}
	if config.GatewayTimeoutSeconds <= 0 {
		config.GatewayTimeoutSeconds = 30
	}
	if strings.TrimSpace(config.RefundReconcileSchedule) == "" {
		config.RefundReconcileSchedule = "@every 5m"
	}
	if config.RefundReconcileBatchSize <= 0 {
		config.RefundReconcileBatchSize = 20
	}

	return
}
