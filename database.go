package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// In order to connect to Postgresql you need to fill out all the fields.
//
// To connect to sqlite, you just need to specify "sqlite" driver.
// By default it will use in-memory database. You can provide WCNODE_DATABASE_NAME to use the file.
type DatabaseConfig struct {
	URL      string `env:"WCNODE_DATABASE_URL" env-default:""`
	Name     string `env:"WCNODE_DATABASE_NAME" env-default:""`
	Schema   string `env:"WCNODE_DATABASE_SCHEMA" env-default:""`
	Driver   string `env:"WCNODE_DATABASE_DRIVER" env-default:"sqlite"`
	Username string `env:"WCNODE_DATABASE_USERNAME"  env-default:"postgres"`
	Password string `env:"WCNODE_DATABASE_PASSWORD" env-default:""`
	Host     string `env:"WCNODE_DATABASE_HOST" env-default:"localhost"`
	Port     string `env:"WCNODE_DATABASE_PORT" env-default:"5432"`
	Retries  int    `env:"WCNODE_DATABASE_RETRIES" env-default:"5"`
}

// ParseConnectionString parses a PostgreSQL URI or a "file:" sqlite path and returns a DatabaseConfig
func ParseConnectionString(connStr string) (DatabaseConfig, error) {
	// SQLite detection: starts with "file:"
	if strings.HasPrefix(connStr, "file:") {
		// Separate path from query
		parts := strings.SplitN(connStr[5:], "?", 2)
		return DatabaseConfig{
			URL:     connStr,
			Name:    parts[0],
			Driver:  "sqlite",
			Retries: 1,
		}, nil
	}

	parsedURL, err := url.Parse(connStr)
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid connection string: %w", err)
	}

	if parsedURL.Scheme != "postgres" && parsedURL.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}

	username := ""
	password := ""
	if user := parsedURL.User; user != nil {
		username = user.Username()
		password, _ = user.Password()
	}

	port := parsedURL.Port()
	if port == "" {
		port = "5432"
	}

	retries := 5
	query := parsedURL.Query()
	if r := query.Get("retries"); r != "" {
		if retryVal, err := strconv.Atoi(r); err == nil {
			retries = retryVal
		}
	}

	return DatabaseConfig{
		URL:      connStr,
		Name:     strings.TrimPrefix(parsedURL.Path, "/"),
		Schema:   query.Get("search_path"),
		Driver:   "postgres",
		Username: username,
		Password: password,
		Host:     parsedURL.Hostname(),
		Port:     port,
		Retries:  retries,
	}, nil
}

// ConnectToDB opens the database described by cnf and brings its schema up to date.
func ConnectToDB(cnf DatabaseConfig, logger Logger) (*gorm.DB, error) {
	logger = logger.NewSystem("database")
	switch cnf.Driver {
	case "postgres":
		return connectToPostgresql(cnf, logger)
	case "sqlite", "":
		return connectToSqlite(cnf, logger)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cnf.Driver)
	}
}

func gormConfig(cnf DatabaseConfig) *gorm.Config {
	naming := schema.NamingStrategy{}
	if cnf.Schema != "" {
		naming.TablePrefix = cnf.Schema + "."
	}
	return &gorm.Config{NamingStrategy: naming}
}

func connectToPostgresql(cnf DatabaseConfig, logger Logger) (*gorm.DB, error) {
	logger.Info("connecting to postgresql", "host", cnf.Host, "database", cnf.Name)
	if err := ensurePostgresqlSchema(cnf, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure Postgresql schema: %w", err)
	}

	if err := migratePostgres(cnf, logger); err != nil {
		return nil, fmt.Errorf("failed to apply Postgresql migrations: %w", err)
	}

	dsn, err := postgresqlDbUrl(cnf)
	if err != nil {
		return nil, err
	}

	var db *gorm.DB
	attempts := max(cnf.Retries, 1)
	for attempt := 1; attempt <= attempts; attempt++ {
		if db, err = gorm.Open(postgres.Open(dsn), gormConfig(cnf)); err == nil {
			return db, nil
		}
		logger.Warn("failed to connect to postgresql", "attempt", attempt, "error", err)
	}
	return nil, err
}

func connectToSqlite(cnf DatabaseConfig, logger Logger) (*gorm.DB, error) {
	var dsn string
	if cnf.Name != "" {
		logger.Info("connecting to sqlite", "file", cnf.Name)
		dsn = fmt.Sprintf("file:%s?cache=shared", cnf.Name)
	} else {
		logger.Info("connecting to in-memory sqlite")
		dsn = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(cnf))
	if err != nil {
		return nil, err
	}

	if err := migrateSqlite(db); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate sqlite: %w", err)
	}
	logger.Info("successfully auto-migrated")

	return db, nil
}

func postgresqlDbUrl(cnf DatabaseConfig) (string, error) {
	switch cnf.Driver {
	case "postgres":
		dsn := fmt.Sprintf(
			"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
			cnf.Username, cnf.Password, cnf.Host, cnf.Port, cnf.Name,
		)

		if cnf.Schema != "" {
			dsn = fmt.Sprintf("%s search_path=%s", dsn, cnf.Schema)
		}

		return dsn, nil

	default:
		return "", fmt.Errorf("unsupported driver: %s", cnf.Driver)
	}
}

func ensurePostgresqlSchema(cnf DatabaseConfig, logger Logger) error {
	if cnf.Schema == "" {
		logger.Debug("no schema specified, skipping schema creation")
		return nil
	}

	dbConf := cnf
	dbConf.Schema = ""
	dsn, err := postgresqlDbUrl(dbConf)
	if err != nil {
		return err
	}

	db, err := sqlx.Connect(dbConf.Driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	var exists bool
	if err := db.Get(&exists, "SELECT EXISTS(SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)", cnf.Schema); err != nil {
		return fmt.Errorf("error while checking schema existence: %w", err)
	}
	if exists {
		logger.Debug("schema already exists", "schema", cnf.Schema)
		return nil
	}

	if _, err = db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", cnf.Schema)); err != nil {
		return fmt.Errorf("error while creating schema: %w", err)
	}

	logger.Info("schema created", "schema", cnf.Schema)
	return nil
}

func migratePostgres(cnf DatabaseConfig, logger Logger) error {
	dsn, err := postgresqlDbUrl(cnf)
	if err != nil {
		return err
	}

	db, err := goose.OpenDBWithDriver(cnf.Driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if cnf.Schema != "" {
		if _, err := db.Exec(fmt.Sprintf("SET search_path TO %s", cnf.Schema)); err != nil {
			return fmt.Errorf("failed to set search path: %w", err)
		}
	}

	logger.Info("applying database migrations")
	goose.SetBaseFS(embedMigrations)
	if err := goose.Up(db, "config/migrations/"+cnf.Driver); err != nil {
		return err
	}

	logger.Info("applied migrations")
	return nil
}

func migrateSqlite(db *gorm.DB) error {
	return db.AutoMigrate(
		&RequestRecord{},
		&SessionRecord{},
		&CustomNetwork{},
		&WalletSettings{},
		&Contact{},
	)
}
