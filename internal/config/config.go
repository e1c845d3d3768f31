// Package config loads runtime configuration from the environment. A .env
// file in the working directory is honored when present.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/lmb/settlements/internal/domain"
)

// Config carries everything the CLI and server need to run.
type Config struct {
	Port   string
	DBPath string

	LedgerBaseURL      string
	LedgerAccessToken  string
	LedgerRefreshToken string

	AmazonBaseURL string
	AmazonToken   string

	// BrandRules maps SKUs (exact, or prefix rules ending in "*") to brand
	// names. KnownBrands is the closed set of brands expected per run.
	BrandRules  map[string]string
	KnownBrands []string

	// MaxHistoryPages caps how far back account resolution scans posted
	// entries.
	MaxHistoryPages int

	// Workers bounds concurrent settlement processing.
	Workers int
}

// Load reads configuration from the environment, applying defaults for
// anything optional. Remote credentials are only validated by the callers
// that need them.
func Load() (*Config, error) {
	// Missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	cfg := &Config{
		Port:   getenvDefault("PORT", "8080"),
		DBPath: getenvDefault("DB_PATH", "settlements.db"),

		LedgerBaseURL:      os.Getenv("LEDGER_BASE_URL"),
		LedgerAccessToken:  os.Getenv("LEDGER_ACCESS_TOKEN"),
		LedgerRefreshToken: os.Getenv("LEDGER_REFRESH_TOKEN"),

		AmazonBaseURL: os.Getenv("AMAZON_BASE_URL"),
		AmazonToken:   os.Getenv("AMAZON_TOKEN"),

		KnownBrands: splitList(os.Getenv("KNOWN_BRANDS")),
	}

	rules, err := ParseBrandRules(os.Getenv("BRAND_MAP"))
	if err != nil {
		return nil, err
	}
	cfg.BrandRules = rules

	cfg.MaxHistoryPages, err = getenvInt("MAX_HISTORY_PAGES", 10)
	if err != nil {
		return nil, err
	}
	cfg.Workers, err = getenvInt("WORKERS", 1)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseBrandRules parses "BX-*=BrandX,BY-100=BrandY" into a rule table.
func ParseBrandRules(s string) (map[string]string, error) {
	rules := make(map[string]string)
	for _, pair := range splitList(s) {
		key, brand, ok := strings.Cut(pair, "=")
		key, brand = strings.TrimSpace(key), strings.TrimSpace(brand)
		if !ok || key == "" || brand == "" {
			return nil, domain.E(domain.KindMalformed, "brand rule %q is not of the form sku=brand", pair)
		}
		if prev, dup := rules[key]; dup && prev != brand {
			return nil, domain.E(domain.KindAmbiguous, "brand rule %q maps to both %s and %s", key, prev, brand)
		}
		rules[key] = brand
	}
	return rules, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, domain.E(domain.KindMalformed, "%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
