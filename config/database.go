package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const DefaultDBPath = "data/invoices.db"

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// ConnectDatabase opens (creating if necessary) the SQLite ledger file and
// sets the global DB. The ledger assumes a single-writer discipline: WAL mode
// lets readers proceed alongside the one writer, and busy_timeout makes a
// losing concurrent writer wait instead of failing immediately.
func ConnectDatabase() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	ConnectDatabaseAt(dbPath)
}

// ConnectDatabaseAt opens the ledger at an explicit path. Tests use this with
// a temp directory.
func ConnectDatabaseAt(dbPath string) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create data directory %s: %v", dir, err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	var err error
	db, err = gorm.Open(sqlite.Open(dsn), initConfig())
	if err != nil {
		log.Fatalf("failed to connect database %s: %v", dbPath, err)
	}

	// One writer at a time; the pool must not hand out a second write
	// connection that would trip SQLITE_BUSY mid-transaction.
	if sqlDB, derr := db.DB(); derr == nil && sqlDB != nil {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxIdleTime(time.Minute)
	}

	log.Printf("connected to database %s", dbPath)
}

// InitConfig Initialize Config
func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

// InitLog Connection Log Configuration
func initLog() logger.Interface {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
	return newLogger
}

// InitNamingStrategy Init NamingStrategy
func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}
