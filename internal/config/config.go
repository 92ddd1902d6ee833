package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	StoreBackend   string // "dynamo" | "memory"
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	LockBackend      string // "dynamo" | "redis" | "memory"
	LockTTL          time.Duration
	LockWait         time.Duration
	LockPollInterval time.Duration
	RedisAddr        string
	RedisDB          int

	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SMTPTLS      bool

	VerificationMailSubject string

	S3TemplateBucket string // empty disables template keys
	SNSRegion        string
	SNSTopicARN      string // empty disables verification events

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	AllowedOrigins    []string // CORS allowed origins
	TrustProxyHeaders bool     // take the client address from X-Forwarded-For / X-Real-Ip
	VerifyRateLimit   float64
	VerifyRateBurst   int
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	EmailAddresses       string
	Counters             string
	VerifiableData       string
	VerificationRequests string
	VerificationTokens   string
	Locks                string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:  getEnv("APP_PORT", "3000"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreBackend:   getEnv("STORE_BACKEND", "dynamo"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			EmailAddresses:       getEnv("DYNAMO_TABLE_EMAIL_ADDRESSES", "email_addresses"),
			Counters:             getEnv("DYNAMO_TABLE_COUNTERS", "counters"),
			VerifiableData:       getEnv("DYNAMO_TABLE_VERIFIABLE_DATA", "verifiable_data"),
			VerificationRequests: getEnv("DYNAMO_TABLE_VERIFICATION_REQUESTS", "verification_requests"),
			VerificationTokens:   getEnv("DYNAMO_TABLE_VERIFICATION_TOKENS", "verification_tokens"),
			Locks:                getEnv("DYNAMO_TABLE_LOCKS", "locks"),
		},

		LockBackend:      getEnv("LOCK_BACKEND", "dynamo"),
		LockTTL:          getEnvDuration("LOCK_TTL", 30*time.Second),
		LockWait:         getEnvDuration("LOCK_WAIT", 5*time.Second),
		LockPollInterval: getEnvDuration("LOCK_POLL_INTERVAL", 50*time.Millisecond),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:          getEnvInt("REDIS_DB", 0),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvInt("SMTP_PORT", 1025),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPTLS:      getEnvBool("SMTP_TLS", false),

		VerificationMailSubject: getEnv("VERIFICATION_MAIL_SUBJECT", "Verification email"),

		S3TemplateBucket: getEnv("S3_TEMPLATE_BUCKET", ""),
		SNSRegion:        getEnv("SNS_REGION", "us-east-1"),
		SNSTopicARN:      getEnv("SNS_TOPIC_ARN", ""),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,

		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),
		VerifyRateLimit:   getEnvFloat("VERIFY_RATE_LIMIT", 5),
		VerifyRateBurst:   getEnvInt("VERIFY_RATE_BURST", 10),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
