package config

import "testing"

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
		Queue:    QueueConfig{URL: "nats://localhost:4222"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidBudgetAction(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Budget = BudgetConfig{
		DailyTokenLimit: 1000000,
		Action:          "invalid_action",
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid budget action")
	}

	expected := `embedding.budget.action must be "warn" or "reject", got "invalid_action"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ValidBudgetActions(t *testing.T) {
	validActions := []string{"", "warn", "reject"}

	for _, action := range validActions {
		t.Run("action="+action, func(t *testing.T) {
			cfg := validConfig()
			cfg.Embedding.Budget.Action = action

			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for valid action %q: %v", action, err)
			}
		})
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingRedisAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing redis addrs")
	}
}

func TestValidate_MissingQueueURL(t *testing.T) {
	cfg := validConfig()
	cfg.Queue.URL = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing queue url")
	}
}

func TestValidate_NegativeWeight(t *testing.T) {
	cfg := validConfig()
	cfg.Search.WVector = -0.5

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative weight")
	}
}

func TestValidate_ZeroDimensions(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Dimensions = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero dimensions")
	}
}

func TestValidate_UnknownTypePriority(t *testing.T) {
	cfg := validConfig()
	cfg.Search.TypePriority = []string{"document", "widget"}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown entity type in type_priority")
	}
}

func TestValidate_RecencyFloorOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Search.RecencyFloor = 1.5

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for recency floor > 1")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 10 {
		t.Errorf("expected WriteTimeoutSec=10, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected Dimensions=1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Search.WVector != 0.5 || cfg.Search.WKeyword != 0.5 {
		t.Errorf("expected even weight split, got %g/%g", cfg.Search.WVector, cfg.Search.WKeyword)
	}
	if cfg.Search.TimeoutSec != 3 {
		t.Errorf("expected search TimeoutSec=3, got %d", cfg.Search.TimeoutSec)
	}
	if cfg.RAG.DefaultTokenBudget != 1024 {
		t.Errorf("expected DefaultTokenBudget=1024, got %d", cfg.RAG.DefaultTokenBudget)
	}
	if cfg.RAG.Encoding != "cl100k_base" {
		t.Errorf("expected Encoding=cl100k_base, got %q", cfg.RAG.Encoding)
	}
	if cfg.Queue.Subject != "calliope.embed.jobs" {
		t.Errorf("expected queue subject default, got %q", cfg.Queue.Subject)
	}
	if cfg.Index.HNSWM != 32 {
		t.Errorf("expected HNSWM=32, got %d", cfg.Index.HNSWM)
	}
	if cfg.Index.HNSWEFConstruct != 400 {
		t.Errorf("expected HNSWEFConstruct=400, got %d", cfg.Index.HNSWEFConstruct)
	}
	if cfg.Storage.KeyPrefix != "calliope:" {
		t.Errorf("expected KeyPrefix='calliope:', got %q", cfg.Storage.KeyPrefix)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database: DatabaseConfig{ReadinessTimeout: 15},
		Search:   SearchConfig{WVector: 0.7, WKeyword: 0.3, TimeoutSec: 5},
		Index:    IndexConfig{HNSWM: 16, HNSWEFConstruct: 200},
		Storage:  StorageConfig{KeyPrefix: "custom:"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Search.WVector != 0.7 || cfg.Search.WKeyword != 0.3 {
		t.Errorf("weights must not be overridden, got %g/%g", cfg.Search.WVector, cfg.Search.WKeyword)
	}
	if cfg.Index.HNSWM != 16 {
		t.Errorf("expected HNSWM=16, got %d", cfg.Index.HNSWM)
	}
	if cfg.Storage.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Storage.KeyPrefix)
	}
}

func TestTypePriority(t *testing.T) {
	cfg := validConfig()
	types := cfg.TypePriority()
	if len(types) != 3 || string(types[0]) != "document" {
		t.Errorf("unexpected type priority: %v", types)
	}
}
