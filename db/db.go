package db

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/techagentng/dmchat/config"
	"github.com/techagentng/dmchat/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

type GormDB struct {
	DB *gorm.DB
}

func GetDB(c *config.Config) *GormDB {
	gormConfig := &gorm.Config{TranslateError: true}
	if c.Env != "prod" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	} else {
		gormConfig.Logger = logger.Default.LogMode(logger.Warn)
	}

	gormDB, err := Open(dialector(c), gormConfig)
	if err != nil {
		log.Fatalf("unable to open database: %v", err)
	}
	return gormDB
}

// Open connects with the given dialector and runs migrations.
func Open(dialector gorm.Dialector, gormConfig *gorm.Config) (*GormDB, error) {
	if gormConfig == nil {
		gormConfig = &gorm.Config{}
	}
	gormConfig.TranslateError = true
	if gormConfig.NowFunc == nil {
		gormConfig.NowFunc = func() time.Time { return time.Now().UTC() }
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &GormDB{DB: db}, nil
}

// dialector picks sqlite for a sqlite:// DATABASE_URL (local runs) and
// postgres otherwise.
func dialector(c *config.Config) gorm.Dialector {
	if strings.HasPrefix(c.DatabaseURL, sqlitePrefix) {
		return sqlite.Open(strings.TrimPrefix(c.DatabaseURL, sqlitePrefix))
	}

	dsn := c.DatabaseURL
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d TimeZone=UTC",
			c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort)
		log.Printf("Connecting to postgres at %s:%d", c.PostgresHost, c.PostgresPort)
	}
	return postgres.New(postgres.Config{
		DSN: dsn,
	})
}

func migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Blacklist{},
		&models.Conversation{},
		&models.Message{},
		&models.DeviceToken{},
	)
	if err != nil {
		return fmt.Errorf("migrations error: %v", err)
	}
	return nil
}
