package config

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	Gateway      GatewayConfig      `json:"gateway"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Storage      StorageConfig      `json:"storage"`
	Auth         AuthConfig         `json:"auth"`
	ChatOps      ChatOpsConfig      `json:"chatops"`
	Approvals    ApprovalsConfig    `json:"approvals"`
	Healing      HealingConfig      `json:"healing"`
	Runner       RunnerConfig       `json:"runner"`
	Analysis     AnalysisConfig     `json:"analysis"`
	Risk         RiskConfig         `json:"risk"`
	Bus          BusConfig          `json:"bus"`
	Reconciler   ReconcilerConfig   `json:"reconciler"`
}

type GatewayConfig struct {
	HTTPAddr       string  `json:"http_addr"`
	RateLimitRPS   float64 `json:"rate_limit_rps"`
	RateLimitBurst int     `json:"rate_limit_burst"`
}

type OrchestratorConfig struct {
	TemporalAddr   string `json:"temporal_addr"`
	Namespace      string `json:"namespace"`
	TaskQueue      string `json:"task_queue"`
	HealthAddr     string `json:"health_addr"`
	RepollSecs     int    `json:"repoll_secs"`
	RepollAttempts int    `json:"repoll_attempts"`
}

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type StorageConfig struct {
	Driver      string `json:"driver"`
	PostgresDSN string `json:"postgres_dsn"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
	Audience  string `json:"audience"`
	DevMode   bool   `json:"dev_mode"`
}

type ChatOpsConfig struct {
	SlackSigningSecret string `json:"slack_signing_secret"`
	SlackWebhookURL    string `json:"slack_webhook_url"`
	ApprovalBaseURL    string `json:"approval_base_url"`
}

type ApprovalsConfig struct {
	TTLSecs int `json:"ttl_secs"`
}

type HealingConfig struct {
	PollIntervalSecs int               `json:"poll_interval_secs"`
	MaxPolls         int               `json:"max_polls"`
	Cluster          string            `json:"cluster"`
	Service          string            `json:"service"`
	InstanceID       string            `json:"instance_id"`
	Documents        map[string]string `json:"documents"`
}

type RunnerConfig struct {
	Addr      string `json:"addr"`
	Token     string `json:"token"`
	TimeoutMS int    `json:"timeout_ms"`
}

type AnalysisConfig struct {
	Addr      string `json:"addr"`
	Token     string `json:"token"`
	TimeoutMS int    `json:"timeout_ms"`
}

type RiskConfig struct {
	CostThreshold float64 `json:"cost_threshold"`
}

type BusConfig struct {
	NATSURL      string `json:"nats_url"`
	AlarmSubject string `json:"alarm_subject"`
	EventSubject string `json:"event_subject"`
}

type ReconcilerConfig struct {
	Cron  string `json:"cron"`
	Batch int    `json:"batch"`
}

// DefaultReconcilerCron runs the re-poll sweep every minute.
const DefaultReconcilerCron = "@every 1m"

// Secret overrides. A set variable wins over the file value.
const (
	EnvPostgresDSN        = "AUTOHEAL_POSTGRES_DSN"
	EnvJWTSecret          = "AUTOHEAL_JWT_SECRET"
	EnvSlackSigningSecret = "AUTOHEAL_SLACK_SIGNING_SECRET"
	EnvRunnerToken        = "AUTOHEAL_RUNNER_TOKEN"
	EnvAnalysisToken      = "AUTOHEAL_ANALYSIS_TOKEN"
)

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyEnv(os.Getenv)
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&c.Storage.PostgresDSN, EnvPostgresDSN)
	override(&c.Auth.JWTSecret, EnvJWTSecret)
	override(&c.ChatOps.SlackSigningSecret, EnvSlackSigningSecret)
	override(&c.Runner.Token, EnvRunnerToken)
	override(&c.Analysis.Token, EnvAnalysisToken)
}

func (c Config) Validate() error {
	if c.Gateway.HTTPAddr == "" {
		return errors.New("gateway.http_addr required")
	}
	switch c.StorageDriver() {
	case StorageDriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn required")
		}
	case StorageDriverMemory:
	default:
		return errors.New("storage.driver must be postgres or memory")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" && !c.Auth.DevMode {
		return errors.New("auth.jwt_secret required unless auth.dev_mode is true")
	}
	if c.Gateway.RateLimitRPS < 0 || c.Gateway.RateLimitBurst < 0 {
		return errors.New("gateway rate limit must not be negative")
	}
	if c.Gateway.RateLimitRPS > 0 && c.Gateway.RateLimitBurst == 0 {
		return errors.New("gateway.rate_limit_burst required when gateway.rate_limit_rps is set")
	}
	if c.Approvals.TTLSecs < 0 {
		return errors.New("approvals.ttl_secs must not be negative")
	}
	if c.Healing.PollIntervalSecs < 0 || c.Healing.MaxPolls < 0 {
		return errors.New("healing polling must not be negative")
	}
	if err := validateTokenAddr("runner", c.Runner.Addr, c.Runner.Token); err != nil {
		return err
	}
	if err := validateTokenAddr("analysis", c.Analysis.Addr, c.Analysis.Token); err != nil {
		return err
	}
	if strings.TrimSpace(c.ChatOps.SlackWebhookURL) != "" && strings.TrimSpace(c.ChatOps.ApprovalBaseURL) == "" {
		return errors.New("chatops.approval_base_url required when chatops.slack_webhook_url is set")
	}
	if strings.TrimSpace(c.Reconciler.Cron) != "" {
		if _, err := cron.ParseStandard(c.Reconciler.Cron); err != nil {
			return errors.New("reconciler.cron invalid: " + err.Error())
		}
	}
	return nil
}

// StorageDriver defaults to postgres.
func (c Config) StorageDriver() string {
	d := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if d == "" {
		return StorageDriverPostgres
	}
	return d
}

func (c Config) ApprovalTTL() time.Duration {
	return time.Duration(c.Approvals.TTLSecs) * time.Second
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Healing.PollIntervalSecs) * time.Second
}

func (c Config) RepollDelay() time.Duration {
	return time.Duration(c.Orchestrator.RepollSecs) * time.Second
}

func (c Config) ReconcilerSchedule() string {
	if s := strings.TrimSpace(c.Reconciler.Cron); s != "" {
		return s
	}
	return DefaultReconcilerCron
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (c RunnerConfig) Timeout() time.Duration   { return millis(c.TimeoutMS) }
func (c AnalysisConfig) Timeout() time.Duration { return millis(c.TimeoutMS) }

func validateTokenAddr(prefix string, addr string, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	if strings.TrimSpace(addr) == "" {
		return errors.New(prefix + ".addr required when token is set")
	}
	return nil
}
