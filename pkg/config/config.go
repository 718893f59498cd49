// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Tables holds the logical DynamoDB table names the generated access
// policies are scoped to. The user table doubles as the user->pool index
// this service reads during provisioning and login.
type Tables struct {
	Tenant  string `yaml:"tenant"`
	User    string `yaml:"user"`
	Product string `yaml:"product"`
	Order   string `yaml:"order"`
}

type Config struct {
	Env      string
	HTTPAddr string

	// AWS control plane
	AWSRegion    string
	AWSAccountID string // discovered via STS when empty

	Tables Tables

	// Token -> credentials cache
	RedisURL        string
	CredCacheTTLCap time.Duration // upper bound; token expiry still wins

	// Per-call deadline for control-plane operations
	ProviderTimeout time.Duration
}

// Load reads environment (plus optional .env) and, when IDBROKER_CONFIG_FILE
// is set, overlays table names from a YAML file.
func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:          env("IDBROKER_ENV", "dev"),
		HTTPAddr:     env("IDBROKER_HTTP_ADDR", ":8080"),
		AWSRegion:    env("AWS_REGION", "us-east-1"),
		AWSAccountID: env("AWS_ACCOUNT_ID", ""),
		Tables: Tables{
			Tenant:  env("TENANT_TABLE", "Tenant"),
			User:    env("USER_TABLE", "User"),
			Product: env("PRODUCT_TABLE", "Product"),
			Order:   env("ORDER_TABLE", "Order"),
		},
		RedisURL:        env("REDIS_URL", ""),
		CredCacheTTLCap: envDur("CRED_CACHE_TTL_SEC", 3300) * time.Second,
		ProviderTimeout: envDur("PROVIDER_TIMEOUT_SEC", 30) * time.Second,
	}
	if f := os.Getenv("IDBROKER_CONFIG_FILE"); f != "" {
		if err := cfg.overlayFile(f); err != nil {
			log.Printf("[WARN] config file %s: %v", f, err)
		}
	}
	if cfg.AWSAccountID == "" {
		log.Println("[WARN] AWS_ACCOUNT_ID not set; will discover via STS at startup")
	}
	return cfg
}

func (c *Config) overlayFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f struct {
		Tables Tables `yaml:"tables"`
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		return err
	}
	if f.Tables.Tenant != "" {
		c.Tables.Tenant = f.Tables.Tenant
	}
	if f.Tables.User != "" {
		c.Tables.User = f.Tables.User
	}
	if f.Tables.Product != "" {
		c.Tables.Product = f.Tables.Product
	}
	if f.Tables.Order != "" {
		c.Tables.Order = f.Tables.Order
	}
	return nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i)
		}
	}
	return time.Duration(def)
}
