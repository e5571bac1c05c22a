package config

import (
	"encoding/json"
	"os"
	"testing"
)

func TestValidateAndAddDefaults(t *testing.T) {
	// Test case with empty ProjectName and DataSource DNS
	cnf := Configuration{
		ProjectName: "",
		DataSource: DataSourceConfig{
			Dns: "",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "data source DNS is required" {
		t.Errorf("Expected data source DNS required error, got %v", err)
	}

	cnf = Configuration{
		ProjectName: "",
		DataSource: DataSourceConfig{
			Dns: "postgres://localhost:5432",
		},
		Redis: RedisConfig{
			Dns: "",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "redis DNS is required" {
		t.Errorf("Expected redis DNS required error, got %v", err)
	}

	// Test case with all required fields filled, expect no error
	cnf = Configuration{
		ProjectName: "Test Project",
		DataSource: DataSourceConfig{
			Dns: "some-dns",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	// Test default port setting
	cnf.Server.Port = ""
	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if cnf.Server.Port != DEFAULT_PORT {
		t.Errorf("Expected default port %s, got %s", DEFAULT_PORT, cnf.Server.Port)
	}

	// Billing defaults
	if cnf.Billing.ClaimTimeoutSec != 300 {
		t.Errorf("Expected default claim timeout of 300, got %d", cnf.Billing.ClaimTimeoutSec)
	}
	if cnf.Billing.MaxChargeBatchSize != 100 {
		t.Errorf("Expected default charge batch size of 100, got %d", cnf.Billing.MaxChargeBatchSize)
	}
	if cnf.Queue.WebhookQueue == "" || cnf.Queue.GrantExpiryQueue == "" {
		t.Error("Expected queue names to have defaults")
	}
}

func TestLoadConfigFromFileAndEnvOverride(t *testing.T) {
	cnf := Configuration{
		ProjectName: "meterline-test",
		DataSource:  DataSourceConfig{Dns: "postgres://localhost:5432/meterline"},
		Redis:       RedisConfig{Dns: "localhost:6379"},
		Billing:     BillingConfig{UnitPrice: 2.5},
	}

	f, err := os.CreateTemp(t.TempDir(), "meterline*.json")
	if err != nil {
		t.Fatal(err)
	}
	if err := json.NewEncoder(f).Encode(&cnf); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	t.Setenv("METERLINE_SERVER_PORT", "6001")

	if err := loadConfigFromFile(f.Name()); err != nil {
		t.Fatalf("Expected no error loading config, got %v", err)
	}

	loaded, err := Fetch()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != "6001" {
		t.Errorf("Expected env override port 6001, got %s", loaded.Server.Port)
	}
	if loaded.Billing.UnitPrice != 2.5 {
		t.Errorf("Expected unit price 2.5, got %f", loaded.Billing.UnitPrice)
	}
}
