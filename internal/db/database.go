package db

import (
	"log"
	"time"

	"darkpool-backend/internal/config"
	"darkpool-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB connects to postgres and migrates the schema. The database is the
// durable audit/query store; live matching and ledger state is owned in
// memory by the services.
func InitDB() {
	var err error

	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		log.Fatalf("Database DSN is required")
	}

	dsn := config.AppConfig.Database.DSN

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	log.Println("✅ Database connected successfully")

	log.Println("🚀 Starting database schema migration with GORM AutoMigrate...")
	if err := DB.AutoMigrate(
		&models.CommitmentRecord{},
		&models.Order{},
		&models.Match{},
		&models.Channel{},
		&models.EmergencyRequest{},
		&models.TradingPair{},
		&models.UserBalance{},
	); err != nil {
		log.Fatalf("Failed to migrate database schema: %v", err)
	}
	log.Println("✅ Database schema migration completed")

	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
}
