package db

import (
	"fmt"

	"github.com/kasuganosora/afkagent/config"
	dbmysql "github.com/kasuganosora/afkagent/db/mysql"
	dbsqlite "github.com/kasuganosora/afkagent/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite       = "sqlite"
	ModeSQLiteMemory = "sqlite_memory"
	ModeMySQL        = "mysql"
)

// Open returns a *gorm.DB for the configured database mode.
// For ModeSQLiteMemory, SQLitePath names the shared in-memory database.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeSQLiteMemory:
		return dbsqlite.OpenMemory(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
