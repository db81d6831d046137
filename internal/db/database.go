package db

import (
	"fmt"
	"os"

	"github.com/28devcom/whats-suite-feed-nps-sub002/pkg/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase creates a new database connection
func NewDatabase() (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_SSLMODE"),
		os.Getenv("DB_TIMEZONE"),
	)

	config := &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: false,
	}

	db, err := gorm.Open(postgres.Open(dsn), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// RunMigrations runs database migrations using GORM
func RunMigrations(db *gorm.DB) error {
	log.Info().Msg("Running GORM AutoMigrate...")

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Warn().Err(err).Msg("Could not create uuid-ossp extension")
	}

	if err := db.AutoMigrate(models.GetAllModels()...); err != nil {
		return fmt.Errorf("failed to run GORM AutoMigrate: %w", err)
	}

	if err := createCustomIndexes(db); err != nil {
		log.Warn().Err(err).Msg("Failed to create some custom indexes")
	}

	log.Info().Msg("GORM AutoMigrate completed successfully")
	return nil
}

// createCustomIndexes creates any custom indexes that GORM might not handle
func createCustomIndexes(db *gorm.DB) error {
	indexes := []string{
		// The dispatcher scans pending targets per campaign in creation order
		`CREATE INDEX IF NOT EXISTS idx_campaign_targets_pending ON campaign_targets (campaign_id, created_at) WHERE status = 'pending'`,

		// The scheduler tick polls due scheduled campaigns
		`CREATE INDEX IF NOT EXISTS idx_campaigns_due ON campaigns (scheduled_at) WHERE status = 'scheduled'`,

		// Auto-assignment computes per-agent load from assigned conversations
		`CREATE INDEX IF NOT EXISTS idx_conversations_agent_load ON conversations (assigned_agent_id) WHERE status = 'assigned'`,

		// History reads walk both event trails per conversation
		`CREATE INDEX IF NOT EXISTS idx_assignment_events_conversation ON assignment_events (conversation_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_status_events_conversation ON status_events (conversation_id, created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			log.Warn().Err(err).Str("index", idx).Msg("Failed to create index")
		}
	}

	return nil
}
