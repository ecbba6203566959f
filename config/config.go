/*
Copyright 2025 ListingLens Engineering.

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
	DEFAULT_PORT = "5070"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"SKILLRUN_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"SKILLRUN_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"SKILLRUN_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"SKILLRUN_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"SKILLRUN_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"SKILLRUN_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"SKILLRUN_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"SKILLRUN_REDIS_DNS"`
}

type TypeSenseConfig struct {
	Dns string `json:"dns" envconfig:"SKILLRUN_TYPESENSE_DNS"`
}

// QueueConfig names the asynq queues and sets worker-side knobs. Execution
// queues are sharded by schedule so one schedule's runs serialize; the shard
// count controls how many of those queues exist.
type QueueConfig struct {
	ExecutionQueue   string `json:"execution_queue" envconfig:"SKILLRUN_QUEUE_EXECUTION"`
	WebhookQueue     string `json:"webhook_queue" envconfig:"SKILLRUN_QUEUE_WEBHOOK"`
	IndexQueue       string `json:"index_queue" envconfig:"SKILLRUN_QUEUE_INDEX"`
	NumberOfQueues   int    `json:"number_of_queues" envconfig:"SKILLRUN_QUEUE_NUMBER_OF_QUEUES"`
	MonitoringPort   string `json:"monitoring_port" envconfig:"SKILLRUN_QUEUE_MONITORING_PORT"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"SKILLRUN_QUEUE_MAX_RETRY_ATTEMPTS"`
}

// EngineConfig holds the execution engine knobs: where the skill invocation
// service lives, how long a single invocation may run, the worker concurrency
// ceiling, and the token-to-credit conversion rate for usage-priced skills.
// SkillCosts maps agent slugs to fixed credit prices; runs of a priced skill
// are paid for before the skill is invoked, so an account that cannot cover
// the price is rejected without doing the work.
type EngineConfig struct {
	AdapterURL             string           `json:"adapter_url" envconfig:"SKILLRUN_ENGINE_ADAPTER_URL"`
	AdapterTimeoutSec      int              `json:"adapter_timeout_sec" envconfig:"SKILLRUN_ENGINE_ADAPTER_TIMEOUT_SEC"`
	MaxConcurrent          int              `json:"max_concurrent" envconfig:"SKILLRUN_ENGINE_MAX_CONCURRENT"`
	CreditsPer1KTokens     float64          `json:"credits_per_1k_tokens" envconfig:"SKILLRUN_ENGINE_CREDITS_PER_1K_TOKENS"`
	SkillCosts             map[string]int64 `json:"skill_costs" envconfig:"SKILLRUN_ENGINE_SKILL_COSTS"`
	StuckRunningAfterMin   int              `json:"stuck_running_after_min" envconfig:"SKILLRUN_ENGINE_STUCK_RUNNING_AFTER_MIN"`
	TickIntervalSec        int              `json:"tick_interval_sec" envconfig:"SKILLRUN_ENGINE_TICK_INTERVAL_SEC"`
	LedgerMaxConflictTries uint64           `json:"ledger_max_conflict_tries" envconfig:"SKILLRUN_ENGINE_LEDGER_MAX_CONFLICT_TRIES"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"SKILLRUN_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"SKILLRUN_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"SKILLRUN_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
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
	ProjectName     string           `json:"project_name" envconfig:"SKILLRUN_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"SKILLRUN_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	TypeSense       TypeSenseConfig  `json:"typesense"`
	TypeSenseKey    string           `json:"type_sense_key" envconfig:"SKILLRUN_TYPESENSE_KEY"`
	Queue           QueueConfig      `json:"queue"`
	Engine          EngineConfig     `json:"engine"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
	Notification    Notification     `json:"notification"`
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
	err = envconfig.Process("skillrun", &cnf)
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
		return nil, errors.New("config not loaded from file. Create a json file called skillrun.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Skillrun Server"
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Queue.ExecutionQueue == "" {
		cnf.Queue.ExecutionQueue = "new:execution"
	}
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "new:webhook"
	}
	if cnf.Queue.IndexQueue == "" {
		cnf.Queue.IndexQueue = "new:index"
	}
	if cnf.Queue.NumberOfQueues <= 0 {
		cnf.Queue.NumberOfQueues = 4
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5071"
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 3
	}

	if cnf.Engine.AdapterTimeoutSec <= 0 {
		cnf.Engine.AdapterTimeoutSec = 120
	}
	if cnf.Engine.MaxConcurrent <= 0 {
		cnf.Engine.MaxConcurrent = 10
	}
	if cnf.Engine.CreditsPer1KTokens <= 0 {
		cnf.Engine.CreditsPer1KTokens = 1
	}
	if cnf.Engine.StuckRunningAfterMin <= 0 {
		cnf.Engine.StuckRunningAfterMin = 30
	}
	if cnf.Engine.TickIntervalSec <= 0 {
		cnf.Engine.TickIntervalSec = 30
	}
	if cnf.Engine.LedgerMaxConflictTries == 0 {
		cnf.Engine.LedgerMaxConflictTries = 5
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

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mock := *mockConfig
	_ = mock.validateAndAddDefaults()
	ConfigStore.Store(&mock)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
