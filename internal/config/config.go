package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Payment     PaymentConfig
	Blockchain  BlockchainConfig
	Upstream    UpstreamConfig
	RateLimit   RateLimitConfig
	ClaimSigner ClaimSignerConfig
	Admin       AdminConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode + "&prepare_threshold=0"
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	PASSWORD string
}

// PaymentConfig holds the network selector and on-chain identities the
// proxy quotes against.
type PaymentConfig struct {
	Network            string // e.g. "solana-mainnet", "solana-devnet"
	TreasuryAddress    string // recipient for the platform's own fees, unused by runs directly
	FacilitatorBaseURL string
	FundedWalletSecret string // base58/hex secret for the reward-disbursement keypair
	RefundWalletSecret string // base58/hex secret for the platform refund keypair
}

// BlockchainConfig holds blockchain RPC URLs for on-chain verification/scan/broadcast.
type BlockchainConfig struct {
	SolanaRPC string
	EVMRPC    string
}

// UpstreamConfig bounds the dispatcher.
type UpstreamConfig struct {
	BaseURL        string
	Timeout        time.Duration
	MaxResponseMiB int64
}

// RateLimitConfig holds the fixed-window rate-limit thresholds: each
// wallet's counter resets when its window expires; the window does not slide.
type RateLimitConfig struct {
	ChargeWindow      time.Duration
	ChargeMaxRequests int
	RewardWindow      time.Duration
	RewardMaxRequests int
}

// ClaimSignerConfig configures the HS256 signer for reward claim receipts.
type ClaimSignerConfig struct {
	Secret string
	Expiry time.Duration
}

// AdminConfig configures the service-to-service bearer token the
// catalog-admin and ledger endpoints require.
type AdminConfig struct {
	AuthSecret string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "blinkgate"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			PASSWORD: getEnv("REDIS_PASSWORD", ""),
		},
		Payment: PaymentConfig{
			Network:            getEnv("PAYMENT_NETWORK", "solana-devnet"),
			TreasuryAddress:    getEnv("TREASURY_ADDRESS", ""),
			FacilitatorBaseURL: getEnv("FACILITATOR_BASE_URL", "http://localhost:4020"),
			FundedWalletSecret: getEnv("FUNDED_WALLET_SECRET", ""),
			RefundWalletSecret: getEnv("REFUND_WALLET_SECRET", ""),
		},
		Blockchain: BlockchainConfig{
			SolanaRPC: getEnv("SOLANA_RPC_URL", "https://api.devnet.solana.com"),
			EVMRPC:    getEnv("EVM_RPC_URL", "https://sepolia.base.org"),
		},
		Upstream: UpstreamConfig{
			BaseURL:        getEnv("UPSTREAM_API_BASE_URL", ""),
			Timeout:        getEnvAsDuration("UPSTREAM_TIMEOUT", 30*time.Second),
			MaxResponseMiB: int64(getEnvAsInt("UPSTREAM_MAX_RESPONSE_MIB", 10)),
		},
		RateLimit: RateLimitConfig{
			ChargeWindow:      getEnvAsDuration("RATE_LIMIT_CHARGE_WINDOW", time.Hour),
			ChargeMaxRequests: getEnvAsInt("RATE_LIMIT_CHARGE_MAX", 10),
			RewardWindow:      getEnvAsDuration("RATE_LIMIT_REWARD_WINDOW", time.Hour),
			RewardMaxRequests: getEnvAsInt("RATE_LIMIT_REWARD_MAX", 5),
		},
		ClaimSigner: ClaimSignerConfig{
			Secret: getEnv("CLAIM_RECEIPT_SECRET", "change-this-in-production"),
			Expiry: getEnvAsDuration("CLAIM_RECEIPT_EXPIRY", 24*time.Hour),
		},
		Admin: AdminConfig{
			AuthSecret: getEnv("ADMIN_AUTH_SECRET", "change-this-in-production"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
