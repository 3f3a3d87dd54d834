package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the application configuration. Secret fields carry no
// envconfig tag: they are read from secret files, with an environment
// fallback for local development.
type Config struct {
	Env        string `envconfig:"ENV" default:"development"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"debug"`
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`

	// AI provider
	AIClientType  string        `envconfig:"AI_CLIENT_TYPE" default:"openai"`
	AIBaseURL     string        `envconfig:"AI_BASE_URL"`
	AIModel       string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	AIVisionModel string        `envconfig:"AI_VISION_MODEL"`
	AIImageModel  string        `envconfig:"AI_IMAGE_MODEL" default:"dall-e-3"`
	AITimeout     time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	// Secret field without an envconfig tag
	AIAPIKey string

	// Generation history backend: "memory" or "postgres"
	RepositoryBackend string `envconfig:"REPOSITORY_BACKEND" default:"memory"`
	DBHost            string `envconfig:"DB_HOST"`
	DBPort            string `envconfig:"DB_PORT" default:"5432"`
	DBUser            string `envconfig:"DB_USER"`
	DBName            string `envconfig:"DB_NAME"`
	DBSSLMode         string `envconfig:"DB_SSL_MODE" default:"disable"`
	// Secret field without an envconfig tag
	DBPassword string

	// File storage backend: "local" or "firebase"
	StorageBackend     string `envconfig:"STORAGE_BACKEND" default:"local"`
	ImageSavePath      string `envconfig:"IMAGE_SAVE_PATH" default:"./data/files"`
	ImagePublicBaseURL string `envconfig:"IMAGE_PUBLIC_BASE_URL" default:"http://localhost:8080/files"`

	// Firebase (authentication, and storage when selected)
	FirebaseCredentialsPath string `envconfig:"FIREBASE_CREDENTIALS_PATH"`
	FirebaseStorageBucket   string `envconfig:"FIREBASE_STORAGE_BUCKET"`

	// Rate limiting (Redis-backed, optional)
	RateLimitEnabled bool   `envconfig:"RATE_LIMIT_ENABLED" default:"false"`
	RateLimitPerMin  int    `envconfig:"RATE_LIMIT_PER_MIN" default:"30"`
	RedisAddr        string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB          int    `envconfig:"REDIS_DB" default:"0"`
	// Secret field without an envconfig tag
	RedisPassword string

	// Message broker (optional; events are disabled when empty)
	RabbitMQURL string `envconfig:"RABBITMQ_URL"`

	// CORS Settings
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// GetAllowedOrigins splits the CORSAllowedOrigins string into a slice.
func (c *Config) GetAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(c.CORSAllowedOrigins, " ", ""), ",")
}

// LoadConfig loads configuration from environment variables and secret
// files.
func LoadConfig(envFilePath string) (*Config, error) {
	if _, err := os.Stat(envFilePath); err == nil {
		if err := godotenv.Load(envFilePath); err != nil {
			log.Printf("Warning: Could not load %s file: %v", envFilePath, err)
		} else {
			log.Printf("Loaded configuration from %s", envFilePath)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("Warning: Error checking %s file: %v", envFilePath, err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env vars: %w", err)
	}

	// The AI key is required; the rest of the secrets depend on which
	// backends are enabled.
	cfg.AIAPIKey = readSecretOrEnv("ai_api_key", "AI_API_KEY")
	if cfg.AIAPIKey == "" && cfg.AIClientType != "ollama" {
		return nil, fmt.Errorf("AI API key is not configured (secret 'ai_api_key' or env AI_API_KEY)")
	}

	cfg.DBPassword = readSecretOrEnv("db_password", "DB_PASSWORD")
	if cfg.RepositoryBackend == "postgres" && cfg.DBPassword == "" {
		return nil, fmt.Errorf("database password is not configured (secret 'db_password' or env DB_PASSWORD)")
	}

	cfg.RedisPassword = readSecretOrEnv("redis_password", "REDIS_PASSWORD")

	log.Println("Configuration loaded successfully.")
	return &cfg, nil
}

// ReadSecret reads a secret from the standard Docker Secrets path.
func ReadSecret(secretName string) (string, error) {
	filePath := fmt.Sprintf("/run/secrets/%s", secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

func readSecretOrEnv(secretName, envName string) string {
	if value, err := ReadSecret(secretName); err == nil {
		return value
	}
	return strings.TrimSpace(os.Getenv(envName))
}
