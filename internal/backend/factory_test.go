package backend

import (
	"context"
	"testing"
	"time"

	"lifedesk/internal/config"
)

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{
		DataBackend:    "strapi",
		StrapiURL:      "http://localhost:1337/api",
		StrapiAPIToken: "svc",
		HTTPTimeout:    5 * time.Second,
	}
	bc, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bc.Type != StrapiBackend || bc.APIToken != "svc" || bc.BaseURL != cfg.StrapiURL {
		t.Fatalf("unexpected config: %+v", bc)
	}

	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"memory", Config{Type: MemoryBackend}, true},
		{"strapi", Config{Type: StrapiBackend, BaseURL: "http://cms/api", HTTPTimeout: time.Second}, true},
		{"strapi without url", Config{Type: StrapiBackend, HTTPTimeout: time.Second}, false},
		{"strapi without timeout", Config{Type: StrapiBackend, BaseURL: "http://cms/api"}, false},
		{"unknown", Config{Type: "sheets"}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: expected ok, got %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestCreateBackend(t *testing.T) {
	f := NewFactory(nil)

	res, err := f.CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: t.TempDir()})
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	words, err := res.Provider.ForToken("any").ListWordsByLevel(context.Background(), "EASY")
	if err != nil || len(words) == 0 {
		t.Fatalf("memory backend should seed default words, got %d (%v)", len(words), err)
	}

	res, err = f.CreateBackend(context.Background(), Config{Type: StrapiBackend, BaseURL: "http://cms/api", HTTPTimeout: time.Second})
	if err != nil {
		t.Fatalf("strapi backend: %v", err)
	}
	if res.Provider.ForToken("") == nil || res.Provider.ForToken("user-token") == nil {
		t.Fatalf("strapi provider returned nil backend")
	}
}
