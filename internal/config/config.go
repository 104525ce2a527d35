package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Gateway   GatewayConfig
	Scheduler SchedulerConfig
	Sender    SenderConfig
	Connect   ConnectConfig
	Reconcile ReconcileConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type GatewayConfig struct {
	URL string
}

type SchedulerConfig struct {
	Interval   time.Duration
	BatchSize  int
	StuckAfter time.Duration
}

type SenderConfig struct {
	RetryAttempts int
	RetryDelay    time.Duration
	PaceMin       time.Duration
	PaceMax       time.Duration
}

type ConnectConfig struct {
	Timeout        time.Duration
	ReconnectDelay time.Duration
	RetryAttempts  int
	RetryBase      time.Duration
}

type ReconcileConfig struct {
	Buffer int
}

func LoadAll() (*Config, error) {
	var errs []error

	postgresURL, err := requireEnv("POSTGRES_URL")
	if err != nil {
		errs = append(errs, err)
	}
	gatewayURL, err := requireEnv("GATEWAY_URL")
	if err != nil {
		errs = append(errs, err)
	}

	schedInterval, err := getEnvInt("SCHED_INTERVAL_SECONDS", 2)
	if err != nil {
		errs = append(errs, err)
	}
	batchSize, err := getEnvInt("SCHED_BATCH_SIZE", 25)
	if err != nil {
		errs = append(errs, err)
	}
	stuckAfter, err := getEnvInt("SCHED_STUCK_AFTER_SECONDS", 300)
	if err != nil {
		errs = append(errs, err)
	}

	retryAttempts, err := getEnvInt("SEND_RETRY_ATTEMPTS", 3)
	if err != nil {
		errs = append(errs, err)
	}
	retryDelayMs, err := getEnvInt("SEND_RETRY_DELAY_MS", 3000)
	if err != nil {
		errs = append(errs, err)
	}
	paceMinMs, err := getEnvInt("SEND_PACE_MIN_MS", 2000)
	if err != nil {
		errs = append(errs, err)
	}
	paceMaxMs, err := getEnvInt("SEND_PACE_MAX_MS", 2500)
	if err != nil {
		errs = append(errs, err)
	}

	connectTimeout, err := getEnvInt("CONNECT_TIMEOUT_SECONDS", 120)
	if err != nil {
		errs = append(errs, err)
	}
	reconnectDelay, err := getEnvInt("RECONNECT_DELAY_SECONDS", 5)
	if err != nil {
		errs = append(errs, err)
	}
	connectAttempts, err := getEnvInt("CONNECT_RETRY_ATTEMPTS", 3)
	if err != nil {
		errs = append(errs, err)
	}
	connectRetryBaseMs, err := getEnvInt("CONNECT_RETRY_BASE_MS", 3000)
	if err != nil {
		errs = append(errs, err)
	}

	reconcileBuffer, err := getEnvInt("RECONCILE_BUFFER", 256)
	if err != nil {
		errs = append(errs, err)
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		errs = append(errs, err)
	}

	if err := joinErrors(errs); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: postgresURL,
		},
		Gateway: GatewayConfig{
			URL: gatewayURL,
		},
		Scheduler: SchedulerConfig{
			Interval:   time.Duration(schedInterval) * time.Second,
			BatchSize:  batchSize,
			StuckAfter: time.Duration(stuckAfter) * time.Second,
		},
		Sender: SenderConfig{
			RetryAttempts: retryAttempts,
			RetryDelay:    time.Duration(retryDelayMs) * time.Millisecond,
			PaceMin:       time.Duration(paceMinMs) * time.Millisecond,
			PaceMax:       time.Duration(paceMaxMs) * time.Millisecond,
		},
		Connect: ConnectConfig{
			Timeout:        time.Duration(connectTimeout) * time.Second,
			ReconnectDelay: time.Duration(reconnectDelay) * time.Second,
			RetryAttempts:  connectAttempts,
			RetryBase:      time.Duration(connectRetryBaseMs) * time.Millisecond,
		},
		Reconcile: ReconcileConfig{
			Buffer: reconcileBuffer,
		},
		Redis: redisCfg,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, nil
}

func validate(cfg *Config) error {
	var errs []error

	if cfg.Scheduler.BatchSize <= 0 {
		errs = append(errs, errors.New("SCHED_BATCH_SIZE must be > 0"))
	}
	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHED_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Scheduler.StuckAfter <= 0 {
		errs = append(errs, errors.New("SCHED_STUCK_AFTER_SECONDS must be > 0"))
	}
	if cfg.Sender.RetryAttempts <= 0 {
		errs = append(errs, errors.New("SEND_RETRY_ATTEMPTS must be > 0"))
	}
	if cfg.Sender.PaceMin <= 0 || cfg.Sender.PaceMax < cfg.Sender.PaceMin {
		errs = append(errs, errors.New("SEND_PACE_MIN_MS/SEND_PACE_MAX_MS must satisfy 0 < min <= max"))
	}
	if cfg.Connect.Timeout <= 0 {
		errs = append(errs, errors.New("CONNECT_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Connect.RetryAttempts <= 0 {
		errs = append(errs, errors.New("CONNECT_RETRY_ATTEMPTS must be > 0"))
	}
	if cfg.Reconcile.Buffer <= 0 {
		errs = append(errs, errors.New("RECONCILE_BUFFER must be > 0"))
	}

	return joinErrors(errs)
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
