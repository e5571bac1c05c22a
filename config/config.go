/*
Copyright 2024 Meterline Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5401"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"METERLINE_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"METERLINE_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"METERLINE_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"METERLINE_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"METERLINE_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"METERLINE_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"METERLINE_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"METERLINE_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"METERLINE_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	WebhookQueue     string `json:"webhook_queue" envconfig:"METERLINE_QUEUE_WEBHOOK"`
	GrantExpiryQueue string `json:"grant_expiry_queue" envconfig:"METERLINE_QUEUE_GRANT_EXPIRY"`
	ArchiveQueue     string `json:"archive_queue" envconfig:"METERLINE_QUEUE_ARCHIVE"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"METERLINE_QUEUE_MAX_RETRY_ATTEMPTS"`
	MonitoringPort   string `json:"monitoring_port" envconfig:"METERLINE_QUEUE_MONITORING_PORT"`
}

// PriceTier is one volume tier of a tiered pricing plan. UpTo is the
// cumulative quantity the tier covers; the last tier uses UpTo = 0 and
// absorbs all remaining quantity.
type PriceTier struct {
	UpTo      int64   `json:"up_to"`
	UnitPrice float64 `json:"unit_price"`
}

type BillingConfig struct {
	ClaimTimeoutSec     int         `json:"claim_timeout_sec" envconfig:"METERLINE_BILLING_CLAIM_TIMEOUT_SEC"`
	ExpiryHorizonHours  int         `json:"expiry_horizon_hours" envconfig:"METERLINE_BILLING_EXPIRY_HORIZON_HOURS"`
	MaxChargeBatchSize  int         `json:"max_charge_batch_size" envconfig:"METERLINE_BILLING_MAX_CHARGE_BATCH"`
	UnitPrice           float64     `json:"unit_price" envconfig:"METERLINE_BILLING_UNIT_PRICE"`
	Tiers               []PriceTier `json:"tiers"`
	BalanceCacheTTLSecs int         `json:"balance_cache_ttl_secs" envconfig:"METERLINE_BILLING_BALANCE_CACHE_TTL_SECS"`
}

type ArchiveConfig struct {
	Enabled            bool   `json:"enabled" envconfig:"METERLINE_ARCHIVE_ENABLED"`
	AwsAccessKeyId     string `json:"aws_access_key_id"`
	AwsSecretAccessKey string `json:"aws_secret_access_key"`
	S3Endpoint         string `json:"s3_endpoint"`
	S3BucketName       string `json:"s3_bucket_name"`
	S3Region           string `json:"s3_region"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"METERLINE_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"METERLINE_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"METERLINE_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"METERLINE_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"METERLINE_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Queue           QueueConfig      `json:"queue"`
	Billing         BillingConfig    `json:"billing"`
	Archive         ArchiveConfig    `json:"archive"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("meterline", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called meterline.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Meterline Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "new:webhook"
	}
	if cnf.Queue.GrantExpiryQueue == "" {
		cnf.Queue.GrantExpiryQueue = "new:grant-expiry"
	}
	if cnf.Queue.ArchiveQueue == "" {
		cnf.Queue.ArchiveQueue = "new:archive"
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 5
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5403"
	}

	if cnf.Billing.ClaimTimeoutSec <= 0 {
		cnf.Billing.ClaimTimeoutSec = 300
		log.Printf("Warning: Claim timeout not specified. Setting default value: %d seconds", cnf.Billing.ClaimTimeoutSec)
	}
	if cnf.Billing.ExpiryHorizonHours <= 0 {
		cnf.Billing.ExpiryHorizonHours = 72
	}
	if cnf.Billing.MaxChargeBatchSize <= 0 {
		cnf.Billing.MaxChargeBatchSize = 100
	}
	if cnf.Billing.UnitPrice <= 0 && len(cnf.Billing.Tiers) == 0 {
		cnf.Billing.UnitPrice = 1
		log.Println("Warning: No unit price or tiers configured. Defaulting to a unit price of 1 credit.")
	}
	if cnf.Billing.BalanceCacheTTLSecs <= 0 {
		cnf.Billing.BalanceCacheTTLSecs = 30
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.applyTestDefaults()
	ConfigStore.Store(mockConfig)
}

func (cnf *Configuration) applyTestDefaults() {
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "new:webhook"
	}
	if cnf.Queue.GrantExpiryQueue == "" {
		cnf.Queue.GrantExpiryQueue = "new:grant-expiry"
	}
	if cnf.Queue.ArchiveQueue == "" {
		cnf.Queue.ArchiveQueue = "new:archive"
	}
	if cnf.Billing.ClaimTimeoutSec <= 0 {
		cnf.Billing.ClaimTimeoutSec = 300
	}
	if cnf.Billing.ExpiryHorizonHours <= 0 {
		cnf.Billing.ExpiryHorizonHours = 72
	}
	if cnf.Billing.MaxChargeBatchSize <= 0 {
		cnf.Billing.MaxChargeBatchSize = 100
	}
	if cnf.Billing.BalanceCacheTTLSecs <= 0 {
		cnf.Billing.BalanceCacheTTLSecs = 30
	}
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
