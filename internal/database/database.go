// Package database opens the report database, starting an embedded
// PostgreSQL for local development when no server is configured.
package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/snaglog/snaglog-api/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const embeddedPassword = "postgres"

// DB wraps gorm.DB and the embedded server it may own
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
}

// target is the server a connection is opened against
type target struct {
	Embedded bool
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// resolveTarget picks the embedded server for a local host without a password
func resolveTarget(cfg config.DatabaseConfig) target {
	t := target{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.Username,
		Password: cfg.Password,
		Name:     cfg.Database,
	}
	if (cfg.Host == "localhost" || cfg.Host == "127.0.0.1") && cfg.Password == "" {
		t.Embedded = true
		t.Port = strconv.FormatUint(uint64(cfg.EmbeddedPort), 10)
		t.Password = embeddedPassword
	}
	return t
}

func (t target) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		t.Host, t.Port, t.User, t.Password, t.Name)
}

// logLevel echoes SQL only in debug mode
func logLevel(debug bool) logger.LogLevel {
	if debug {
		return logger.Info
	}
	return logger.Warn
}

// clearStalePID removes a postmaster.pid left behind by a crashed embedded
// server. A pid file whose process is still alive is an error.
func clearStalePID(dataPath string) error {
	pidFile := filepath.Join(dataPath, "postmaster.pid")
	data, err := os.ReadFile(pidFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", pidFile, err)
	}

	first, _, _ := strings.Cut(string(data), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err == nil && pid > 0 {
		if proc, ferr := os.FindProcess(pid); ferr == nil && proc.Signal(syscall.Signal(0)) == nil {
			return fmt.Errorf("embedded PostgreSQL already running with PID %d", pid)
		}
	}

	log.Printf("🧹 Removing stale postmaster.pid from %s", dataPath)
	return os.Remove(pidFile)
}

// portFree reports whether nothing listens on the local port
func portFree(port uint32) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 500*time.Millisecond)
	if err != nil {
		return true
	}
	conn.Close()
	return false
}

func startEmbedded(cfg config.DatabaseConfig) (*embeddedpostgres.EmbeddedPostgres, error) {
	if err := clearStalePID(cfg.EmbeddedDataPath); err != nil {
		return nil, err
	}
	if !portFree(cfg.EmbeddedPort) {
		return nil, fmt.Errorf("port %d is already in use", cfg.EmbeddedPort)
	}

	embedded := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		DataPath(cfg.EmbeddedDataPath).
		Port(cfg.EmbeddedPort).
		Database(cfg.Database).
		Username(cfg.Username).
		Password(embeddedPassword))
	if err := embedded.Start(); err != nil {
		return nil, fmt.Errorf("failed to start embedded database: %w", err)
	}
	log.Printf("✅ Embedded PostgreSQL started on port %d (data in %s)", cfg.EmbeddedPort, cfg.EmbeddedDataPath)
	return embedded, nil
}

// Connect opens the report database, external or embedded
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	t := resolveTarget(cfg)

	var embedded *embeddedpostgres.EmbeddedPostgres
	if t.Embedded {
		log.Println("📦 Mode: [Embedded PostgreSQL]")
		var err error
		if embedded, err = startEmbedded(cfg); err != nil {
			return nil, err
		}
	} else {
		log.Printf("🌐 Mode: [External PostgreSQL] - Connecting to %s:%s", t.Host, t.Port)
	}

	db, err := gorm.Open(postgres.Open(t.DSN()), &gorm.Config{
		Logger:  logger.Default.LogMode(logLevel(cfg.Debug)),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.Println("✅ Database connection established")
	return &DB{DB: db, embedded: embedded}, nil
}

// Close closes the pool and stops an embedded server
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if db.embedded != nil {
		log.Println("🛑 Stopping embedded PostgreSQL...")
		if stopErr := db.embedded.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	return err
}

// Migrate synchronizes the report schema. With alter unset an existing
// schema is left alone and only missing tables are created.
func (db *DB) Migrate(alter bool, models ...interface{}) error {
	if alter {
		log.Println("🔧 DB_ALTER set, synchronizing schema")
		return db.DB.AutoMigrate(models...)
	}
	for _, m := range models {
		if db.Migrator().HasTable(m) {
			continue
		}
		if err := db.Migrator().CreateTable(m); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Ping checks that the database answers within ctx
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
