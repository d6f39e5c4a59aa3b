// ============================================================================
// backend/internal/shared/config.go
// Ledger service configuration read from the environment
// ============================================================================

package shared

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultHTTPPort        = "8080"
	DefaultGRPCPort        = "50060"
	DefaultMaxBackfillDays = 366
)

// ServiceConfig holds the configuration for the ledger service
type ServiceConfig struct {
	ServiceName string
	ServicePort string // gRPC health/reflection port
	HTTPPort    string
	Environment string

	MongoDB    MongoConfig
	GRPC       GRPCConfig
	Security   SecurityConfig
	Payment    PaymentConfig
	Attendance AttendanceConfig
	CORS       CORSConfig
}

// GRPCConfig caps message sizes on the health endpoint
type GRPCConfig struct {
	MaxRecvMsgSize int
	MaxSendMsgSize int
}

// SecurityConfig holds token verification settings. Tokens are issued elsewhere.
type SecurityConfig struct {
	JWTSecret  string
	BCryptCost int // used by the seeder only
}

// PaymentConfig holds the shared secret agreed with the payment gateway
type PaymentConfig struct {
	GatewaySecret string
}

// AttendanceConfig bounds leave backfills
type AttendanceConfig struct {
	MaxBackfillDays int
}

// CORSConfig is passed straight to go-chi/cors
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int // seconds
}

// LoadEnv reads a .env file into the process environment. Variables already
// set are not overridden.
func LoadEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		return err
	}
	log.Printf("Loaded environment from %s", envFile)
	return nil
}

// LoadServiceConfig loads service configuration from environment.
// Missing secrets are not an error here; ValidateServiceConfig decides that.
func LoadServiceConfig(serviceName string) (*ServiceConfig, error) {
	mongoURI := GetEnv("MONGO_URI", "")
	if mongoURI == "" {
		return nil, &ConfigurationError{Key: "MONGO_URI"}
	}

	const mb = 1 << 20
	return &ServiceConfig{
		ServiceName: serviceName,
		ServicePort: GetEnv("SERVICE_PORT", DefaultGRPCPort),
		HTTPPort:    GetEnv("HTTP_PORT", DefaultHTTPPort),
		Environment: GetEnv("ENVIRONMENT", "development"),

		MongoDB: MongoConfig{
			URI:            mongoURI,
			Database:       GetEnv("MONGO_DB_NAME", "SchoolLedger"),
			ConnectTimeout: GetDurationEnv("MONGO_CONNECT_TIMEOUT", 20*time.Second),
			MaxPoolSize:    uint64(GetIntEnv("MONGO_MAX_POOL_SIZE", 50)),
			MinPoolSize:    uint64(GetIntEnv("MONGO_MIN_POOL_SIZE", 10)),
			MaxIdleTime:    GetDurationEnv("MONGO_MAX_IDLE_TIME", 30*time.Second),
		},
		GRPC: GRPCConfig{
			MaxRecvMsgSize: GetIntEnv("GRPC_MAX_RECV_MSG_SIZE", 4*mb),
			MaxSendMsgSize: GetIntEnv("GRPC_MAX_SEND_MSG_SIZE", 4*mb),
		},
		Security: SecurityConfig{
			JWTSecret:  GetEnv("JWT_SECRET", ""),
			BCryptCost: GetIntEnv("BCRYPT_COST", 10),
		},
		Payment: PaymentConfig{
			GatewaySecret: GetEnv("PAYMENT_GATEWAY_SECRET", ""),
		},
		Attendance: AttendanceConfig{
			MaxBackfillDays: GetIntEnv("ATTENDANCE_MAX_BACKFILL_DAYS", DefaultMaxBackfillDays),
		},
		CORS: CORSConfig{
			AllowedOrigins:   GetStringSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			AllowedMethods:   GetStringSliceEnv("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   GetStringSliceEnv("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type"}),
			AllowCredentials: GetBoolEnv("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           GetIntEnv("CORS_MAX_AGE", 300),
		},
	}, nil
}

// ============================================================================
// Environment helpers
// ============================================================================

// envParsed reads key through parse. Unset keys and parse failures yield def;
// failures are logged so a typo in .env does not go unnoticed.
func envParsed[T any](key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		log.Printf("Warning: ignoring %s=%q (%v), using default %v", key, raw, err, def)
		return def
	}
	return v
}

// GetEnv returns the variable or def when it is unset or empty
func GetEnv(key, def string) string {
	return envParsed(key, def, func(s string) (string, error) { return s, nil })
}

func GetIntEnv(key string, def int) int {
	return envParsed(key, def, strconv.Atoi)
}

func GetBoolEnv(key string, def bool) bool {
	return envParsed(key, def, strconv.ParseBool)
}

// GetDurationEnv accepts time.ParseDuration syntax ("30s", "5m")
func GetDurationEnv(key string, def time.Duration) time.Duration {
	return envParsed(key, def, time.ParseDuration)
}

// GetStringSliceEnv splits a comma-separated list, dropping blanks
func GetStringSliceEnv(key string, def []string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// ValidateServiceConfig checks everything the server cannot start without.
// Returned errors are *ConfigurationError and are meant to be fatal.
func ValidateServiceConfig(config *ServiceConfig) error {
	required := []struct {
		key   string
		value string
	}{
		{"SERVICE_NAME", config.ServiceName},
		{"SERVICE_PORT", config.ServicePort},
		{"HTTP_PORT", config.HTTPPort},
		{"MONGO_URI", config.MongoDB.URI},
		{"MONGO_DB_NAME", config.MongoDB.Database},
		{"JWT_SECRET", config.Security.JWTSecret},
		{"PAYMENT_GATEWAY_SECRET", config.Payment.GatewaySecret},
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ConfigurationError{Key: r.key}
		}
	}

	if config.Attendance.MaxBackfillDays <= 0 {
		return &ConfigurationError{Key: "ATTENDANCE_MAX_BACKFILL_DAYS", Reason: "must be positive"}
	}
	return nil
}

// PrintConfig logs the non-secret settings at startup
func PrintConfig(config *ServiceConfig) {
	log.Printf("[Config] %s env=%s http=:%s grpc=:%s",
		config.ServiceName, config.Environment, config.HTTPPort, config.ServicePort)
	log.Printf("[Config] mongo db=%s pool=%d..%d",
		config.MongoDB.Database, config.MongoDB.MinPoolSize, config.MongoDB.MaxPoolSize)
	log.Printf("[Config] attendance max backfill=%d days", config.Attendance.MaxBackfillDays)
	log.Printf("[Config] cors origins=%v", config.CORS.AllowedOrigins)
}
