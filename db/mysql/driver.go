package mysql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kasuganosora/afkagent/config"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const pingTimeout = 5 * time.Second

// Open connects the journal and settings store to MySQL. The pool limits
// come from cfg; zero values fall back to small defaults since the agent
// writes at most a few rows per second.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.MySQLDSN == "" {
		return nil, errors.New("mysql: database.mysql_dsn is empty")
	}
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:               normalizeDSN(cfg.MySQLDSN),
		DefaultStringSize: 255,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("mysql: pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(orDefault(cfg.MySQLMaxOpen, 10))
	sqlDB.SetMaxIdleConns(orDefault(cfg.MySQLMaxIdle, 2))
	if cfg.MySQLMaxLife > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MySQLMaxLife)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return db, nil
}

// normalizeDSN adds the parameters the journal relies on: parseTime for
// entry timestamps and utf8mb4 for chat lines in any script. Parameters the
// operator already set are left alone.
func normalizeDSN(dsn string) string {
	var extra []string
	if !strings.Contains(dsn, "parseTime=") {
		extra = append(extra, "parseTime=true")
	}
	if !strings.Contains(dsn, "charset=") {
		extra = append(extra, "charset=utf8mb4")
	}
	if len(extra) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(extra, "&")
}

func orDefault(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}
