package config

import (
	"testing"

	"github.com/lmb/settlements/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port = %q", cfg.Port)
	}
	if cfg.DBPath != "settlements.db" {
		t.Errorf("db path = %q", cfg.DBPath)
	}
	if cfg.MaxHistoryPages != 10 || cfg.Workers != 1 {
		t.Errorf("pages/workers = %d/%d", cfg.MaxHistoryPages, cfg.Workers)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("KNOWN_BRANDS", "BrandX, BrandY")
	t.Setenv("BRAND_MAP", "BX-*=BrandX, BY-100=BrandY")
	t.Setenv("WORKERS", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.Workers != 4 {
		t.Errorf("port/workers = %q/%d", cfg.Port, cfg.Workers)
	}
	if len(cfg.KnownBrands) != 2 || cfg.KnownBrands[1] != "BrandY" {
		t.Errorf("brands = %v", cfg.KnownBrands)
	}
	if cfg.BrandRules["BX-*"] != "BrandX" || cfg.BrandRules["BY-100"] != "BrandY" {
		t.Errorf("rules = %v", cfg.BrandRules)
	}
}

func TestParseBrandRulesErrors(t *testing.T) {
	if _, err := ParseBrandRules("BX-100"); !domain.IsKind(err, domain.KindMalformed) {
		t.Errorf("missing '=': kind = %q", domain.KindOf(err))
	}
	if _, err := ParseBrandRules("BX-*=BrandX,BX-*=BrandY"); !domain.IsKind(err, domain.KindAmbiguous) {
		t.Errorf("conflicting rule: kind = %q", domain.KindOf(err))
	}
}

func TestLoadRejectsBadInt(t *testing.T) {
	t.Setenv("MAX_HISTORY_PAGES", "zero")
	if _, err := Load(); !domain.IsKind(err, domain.KindMalformed) {
		t.Fatalf("kind = %q, want malformed", domain.KindOf(err))
	}
}
