// Package config reads runtime settings from the environment, after loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendHTTP = "http"
	BackendGRPC = "grpc"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultHTTPVerifierAddr = "http://localhost:5005"
	defaultGRPCVerifierAddr = "localhost:50051"
	defaultMaxFileSize      = 10 << 20
	defaultDatabaseDSN      = "host=postgres user=postgres password=postgres dbname=facecompare port=5432 sslmode=disable"
)

// ErrInvalid is wrapped by every validation failure returned from this package.
var ErrInvalid = errors.New("invalid configuration")

// Verifier describes how to reach the face-verification service.
type Verifier struct {
	Backend string
	Addr    string
	// Timeout bounds a single verification call. Zero means no limit.
	Timeout time.Duration
}

// Log carries logger settings.
type Log struct {
	Level string
	File  string
}

// CLI is everything the comparison command needs.
type CLI struct {
	Verifier Verifier
	Log      Log
}

// Server extends CLI with the HTTP service settings.
type Server struct {
	CLI

	HTTPAddr          string
	DatabaseDriver    string
	DatabaseDSN       string
	RedisAddr         string
	JWTSecret         string
	JWTAudience       string
	MaxFileSize       int64
	AllowedExtensions []string
}

// LoadCLI loads the command configuration.
func LoadCLI() (CLI, error) {
	loadDotEnv()
	return cliFromEnv()
}

// LoadServer loads the HTTP service configuration.
func LoadServer() (Server, error) {
	loadDotEnv()

	cli, err := cliFromEnv()
	if err != nil {
		return Server{}, err
	}

	cfg := Server{
		CLI:               cli,
		HTTPAddr:          httpAddr(),
		DatabaseDriver:    strings.ToLower(getEnv("DATABASE_DRIVER", DriverPostgres)),
		DatabaseDSN:       getEnv("DATABASE_DSN", defaultDatabaseDSN),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		JWTSecret:         strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAudience:       strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
		AllowedExtensions: parseExtensions(getEnv("ALLOWED_EXTENSIONS", "jpg,jpeg,png,gif")),
	}

	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return Server{}, fmt.Errorf("%w: DATABASE_DRIVER must be %s or %s, got %q", ErrInvalid, DriverPostgres, DriverSQLite, cfg.DatabaseDriver)
	}

	cfg.MaxFileSize = defaultMaxFileSize
	if raw := os.Getenv("MAX_FILE_SIZE"); raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || size <= 0 {
			return Server{}, fmt.Errorf("%w: MAX_FILE_SIZE must be a positive byte count, got %q", ErrInvalid, raw)
		}
		cfg.MaxFileSize = size
	}

	if len(cfg.AllowedExtensions) == 0 {
		return Server{}, fmt.Errorf("%w: ALLOWED_EXTENSIONS is empty", ErrInvalid)
	}

	return cfg, nil
}

func cliFromEnv() (CLI, error) {
	backend := strings.ToLower(getEnv("FACE_VERIFIER_BACKEND", BackendHTTP))

	var addr string
	switch backend {
	case BackendHTTP:
		addr = getEnv("FACE_VERIFIER_ADDR", defaultHTTPVerifierAddr)
	case BackendGRPC:
		addr = getEnv("FACE_VERIFIER_ADDR", defaultGRPCVerifierAddr)
	default:
		return CLI{}, fmt.Errorf("%w: FACE_VERIFIER_BACKEND must be %s or %s, got %q", ErrInvalid, BackendHTTP, BackendGRPC, backend)
	}

	var timeout time.Duration
	if raw := os.Getenv("FACE_VERIFIER_TIMEOUT"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			return CLI{}, fmt.Errorf("%w: FACE_VERIFIER_TIMEOUT must be a non-negative duration, got %q", ErrInvalid, raw)
		}
		timeout = parsed
	}

	return CLI{
		Verifier: Verifier{Backend: backend, Addr: addr, Timeout: timeout},
		Log: Log{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
	}, nil
}

// loadDotEnv never overrides variables that are already set; a missing file is fine.
func loadDotEnv() {
	_ = godotenv.Load()
}

func httpAddr() string {
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		return addr
	}
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":5000"
}

func parseExtensions(raw string) []string {
	var out []string
	for _, ext := range strings.Split(raw, ",") {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
