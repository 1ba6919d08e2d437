package app

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/platform/elastic"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
	"github.com/yungbote/notebook-backend/internal/platform/openai"
	"github.com/yungbote/notebook-backend/internal/realtime/bus"
)

type Clients struct {
	DB      *gorm.DB
	Elastic *elastic.Client
	OpenAI  *openai.Client
	SSEBus  bus.Bus
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return Clients{}, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(
		&domain.Session{},
		&domain.Document{},
		&domain.ChatMessage{},
		&domain.ChatSummary{},
		&domain.Memory{},
	); err != nil {
		return Clients{}, fmt.Errorf("automigrate: %w", err)
	}

	es, err := elastic.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init elasticsearch client: %w", err)
	}
	oa, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	var sseBus bus.Bus
	if cfg.RedisAddr != "" {
		sseBus, err = bus.NewRedisBus(log, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
	} else {
		sseBus = bus.NewLocalBus()
	}

	return Clients{DB: db, Elastic: es, OpenAI: oa, SSEBus: sseBus}, nil
}

// openDatabase connects to Postgres when DATABASE_URL is set and falls
// back to a local SQLite file for single-binary development setups.
func openDatabase(cfg Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	if cfg.DatabaseURL != "" {
		return gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
	}
	return gorm.Open(sqlite.Open("notebook.db"), gormCfg)
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
