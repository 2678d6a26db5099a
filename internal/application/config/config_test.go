package config

import "testing"

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != "3000" {
		t.Errorf("expected default port 3000, got %q", cfg.Port)
	}

	if cfg.MetricsPort != "9090" {
		t.Errorf("expected default metrics port 9090, got %q", cfg.MetricsPort)
	}

	if len(cfg.StunServer.URLs) == 0 {
		t.Error("expected a default STUN server")
	}

	if cfg.Turn.Enabled {
		t.Error("TURN must be disabled by default")
	}
}

func TestNewParsesEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("DEBUG", "true")
	t.Setenv("STUN_URLS", "stun:one.test:3478,stun:two.test:3478")

	cfg, err := New()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %q", cfg.Port)
	}

	if !cfg.Debug {
		t.Error("expected debug mode")
	}

	if len(cfg.StunServer.URLs) != 2 {
		t.Errorf("expected 2 stun urls, got %v", cfg.StunServer.URLs)
	}
}

func TestNewRequiresTurnSecret(t *testing.T) {
	t.Setenv("TURN_ENABLED", "true")

	if _, err := New(); err == nil {
		t.Error("TURN without a secret must be rejected")
	}

	t.Setenv("TURN_SECRET", "s3cret")

	if _, err := New(); err != nil {
		t.Errorf("unexpected error with secret set: %v", err)
	}
}

func TestTurnURLs(t *testing.T) {
	cfg := &Config{
		Turn: TurnConfig{
			Host: "turn.example.com",
			Port: 3478,
		},
	}

	urls := cfg.TurnURLs()

	want := []string{
		"turn:turn.example.com:3478?transport=udp",
		"turn:turn.example.com:3478?transport=tcp",
	}

	if len(urls) != len(want) {
		t.Fatalf("expected %d urls, got %v", len(want), urls)
	}

	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("url %d: expected %q, got %q", i, want[i], urls[i])
		}
	}
}

func TestTurnURLsFallBackToPublicIP(t *testing.T) {
	cfg := &Config{
		Turn: TurnConfig{
			PublicIP: "203.0.113.7",
			Port:     3478,
		},
	}

	urls := cfg.TurnURLs()

	if urls[0] != "turn:203.0.113.7:3478?transport=udp" {
		t.Errorf("expected public ip fallback, got %q", urls[0])
	}
}
