package config

import (
	"testing"
	"time"
)

func TestEntitlementsValidate(t *testing.T) {
	valid := EntitlementsConfig{
		Timezone:        "America/Sao_Paulo",
		HeavyUserWindow: 7,
		HeavyUserRatio:  0.8,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := []struct {
		name string
		cfg  EntitlementsConfig
	}{
		{"missing timezone", EntitlementsConfig{HeavyUserWindow: 7, HeavyUserRatio: 0.8}},
		{"bogus timezone", EntitlementsConfig{Timezone: "Mars/Olympus", HeavyUserWindow: 7, HeavyUserRatio: 0.8}},
		{"zero window", EntitlementsConfig{Timezone: "UTC", HeavyUserWindow: 0, HeavyUserRatio: 0.8}},
		{"ratio above one", EntitlementsConfig{Timezone: "UTC", HeavyUserWindow: 7, HeavyUserRatio: 1.5}},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestEntitlementsLocation(t *testing.T) {
	cfg := EntitlementsConfig{Timezone: "America/Sao_Paulo"}
	loc := cfg.Location()
	if loc == nil || loc == time.UTC {
		t.Fatalf("expected Sao Paulo location, got %v", loc)
	}
}

func TestAppConfigEnvHelpers(t *testing.T) {
	if !(AppConfig{Env: "DEV"}).IsDev() {
		t.Fatal("expected IsDev to be case-insensitive")
	}
	if !(AppConfig{Env: "prod"}).IsProd() {
		t.Fatal("expected IsProd true for prod")
	}
}
