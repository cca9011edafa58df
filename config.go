package main

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	rpclog "github.com/corewallet/wcnode/pkg/log"
	"github.com/corewallet/wcnode/pkg/sign"
)

type Mode string

const (
	ModeProduction Mode = "production"
	ModeTest       Mode = "test"
)

const (
	configDirPathEnv     = "WCNODE_CONFIG_DIR_PATH"
	defaultConfigDirPath = "."
)

// EnvConfig holds the settings read from the environment.
type EnvConfig struct {
	Mode Mode `env:"WCNODE_MODE" env-default:"production"`

	AccountKeys    string `env:"WCNODE_ACCOUNT_KEYS"`
	AuthPrivateKey string `env:"WCNODE_AUTH_PRIVATE_KEY"`

	DeveloperMode bool   `env:"WCNODE_DEVELOPER_MODE" env-default:"false"`
	ActiveChainID uint64 `env:"WCNODE_ACTIVE_CHAIN_ID" env-default:"43114"`

	ApprovalTimeout time.Duration `env:"WCNODE_APPROVAL_TIMEOUT" env-default:"0s"`
	DedupWindow     time.Duration `env:"WCNODE_DEDUP_WINDOW" env-default:"10m"`
	PeerTokenTTL    time.Duration `env:"WCNODE_PEER_TOKEN_TTL" env-default:"24h"`

	NetworkCallsPerSecond int  `env:"WCNODE_NETWORK_CALLS_PER_SECOND" env-default:"10"`
	CheckNetworks         bool `env:"WCNODE_CHECK_NETWORKS" env-default:"false"`

	SentryDSN       string        `env:"WCNODE_SENTRY_DSN"`
	RetentionCron   string        `env:"WCNODE_RETENTION_CRON" env-default:"0 * * * *"`
	RetentionPeriod time.Duration `env:"WCNODE_RETENTION_PERIOD" env-default:"720h"`

	RPCListenAddr     string `env:"WCNODE_RPC_LISTEN_ADDR" env-default:":8000"`
	AdminListenAddr   string `env:"WCNODE_ADMIN_LISTEN_ADDR" env-default:":8080"`
	MetricsListenAddr string `env:"WCNODE_METRICS_LISTEN_ADDR" env-default:":4242"`

	TrustedOrigins string `env:"WCNODE_TRUSTED_ORIGINS"`

	Log rpclog.Config
}

// Config represents the overall application configuration
type Config struct {
	env      EnvConfig
	networks map[uint64]Network
	dbConf   DatabaseConfig
	keyring  *sign.Keyring
	authKey  *ecdsa.PrivateKey
}

func configDirPath() string {
	if p := os.Getenv(configDirPathEnv); p != "" {
		return p
	}
	return defaultConfigDirPath
}

// loadDotEnv loads <config dir>/.env into the process environment.
func loadDotEnv(logger Logger) string {
	dir := configDirPath()
	configDotEnvPath := filepath.Join(dir, ".env")
	logger.Info("loading .env file", "path", configDotEnvPath)
	if err := godotenv.Load(configDotEnvPath); err != nil {
		logger.Warn(".env file not found")
	}
	return dir
}

// LoadConfig builds configuration from environment variables
func LoadConfig(logger Logger) (*Config, error) {
	logger = logger.NewSystem("config")
	dir := loadDotEnv(logger)

	var env EnvConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}
	if env.Mode != ModeProduction && env.Mode != ModeTest {
		return nil, fmt.Errorf("invalid WCNODE_MODE value %q", env.Mode)
	}
	logger.Info("set mode", "value", env.Mode)

	dbConf, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	keyring, err := sign.NewKeyring(splitList(env.AccountKeys))
	if err != nil {
		return nil, fmt.Errorf("invalid WCNODE_ACCOUNT_KEYS: %w", err)
	}
	if keyring.Len() == 0 {
		return nil, fmt.Errorf("WCNODE_ACCOUNT_KEYS environment variable is required")
	}
	logger.Info("wallet accounts loaded", "count", keyring.Len())

	authKey, err := loadAuthKey(env.AuthPrivateKey)
	if err != nil {
		return nil, err
	}

	networks, err := LoadNetworks(dir, env.CheckNetworks)
	if err != nil {
		return nil, fmt.Errorf("failed to load networks: %w", err)
	}
	logger.Info("networks loaded", "count", len(networks))

	return &Config{
		env:      env,
		networks: networks,
		dbConf:   dbConf,
		keyring:  keyring,
		authKey:  authKey,
	}, nil
}

// loadDatabaseConfig prefers WCNODE_DATABASE_URL over the individual settings.
func loadDatabaseConfig() (DatabaseConfig, error) {
	if dbURL := os.Getenv("WCNODE_DATABASE_URL"); dbURL != "" {
		dbConf, err := ParseConnectionString(dbURL)
		if err != nil {
			return DatabaseConfig{}, fmt.Errorf("failed to parse connection string: %w", err)
		}
		return dbConf, nil
	}

	var dbConf DatabaseConfig
	if err := cleanenv.ReadEnv(&dbConf); err != nil {
		return DatabaseConfig{}, fmt.Errorf("failed to read database env: %w", err)
	}
	return dbConf, nil
}

func loadAuthKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("WCNODE_AUTH_PRIVATE_KEY environment variable is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid WCNODE_AUTH_PRIVATE_KEY: %w", err)
	}
	return key, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// defaultWalletSettings are used on the first start, before any settings row exists.
func (c *Config) defaultWalletSettings() WalletSettings {
	return WalletSettings{
		DeveloperMode: c.env.DeveloperMode,
		ActiveChainID: c.env.ActiveChainID,
	}
}
