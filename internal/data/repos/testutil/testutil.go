package testutil

import (
	"fmt"
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/notebook-backend/internal/domain"
)

// DB opens a test database and migrates the full schema. With
// TEST_POSTGRES_DSN set it runs against Postgres; otherwise it uses a
// private in-memory SQLite database, so repo tests run everywhere.
func DB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	var db *gorm.DB
	var err error
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	} else {
		dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
	}
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	if err := db.AutoMigrate(
		&domain.Session{},
		&domain.Document{},
		&domain.ChatMessage{},
		&domain.ChatSummary{},
		&domain.Memory{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}
