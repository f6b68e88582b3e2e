package database

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whatsapp-suite/internal/config"
	"whatsapp-suite/internal/logging"
	"whatsapp-suite/internal/models"
)

// Open connects to the configured database and migrates the schema.
func Open(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.PostgresDSN())
	default:
		dialector = sqlite.Open(cfg.DBPath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logging.NewGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.DBDriver, err)
	}
	log.Info("Connected to database", zap.String("driver", cfg.DBDriver))

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("Database migration completed")
	return db, nil
}

// OpenSQLite opens a sqlite database at dsn, migrated and ready to use.
// Tests pass a "file:<name>?mode=memory&cache=shared" dsn.
func OpenSQLite(dsn string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logging.NewGormLogger(log),
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migration: %w", err)
	}
	return nil
}

// Tables with serial ids whose sequences may lag after bulk imports.
var sequenceTables = []string{
	"provider_configs",
	"operators",
	"contacts",
	"templates",
	"template_components",
	"template_buttons",
	"template_button_apps",
	"template_parameters",
	"parameter_mappings",
	"message_history",
	"messaging_lists",
	"list_contacts",
	"campaigns",
	"campaign_notes",
	"chatbots",
	"chatbot_scripts",
	"linked_records",
	"chat_threads",
	"thread_messages",
	"reactions",
}

// SyncSequences moves every PostgreSQL id sequence past the current max id.
func SyncSequences(db *gorm.DB, log *zap.Logger) error {
	if db.Dialector.Name() != "postgres" {
		return errors.New("sequence sync needs a postgres database")
	}
	var failed int
	for _, table := range sequenceTables {
		query := "SELECT setval(pg_get_serial_sequence('" + table + "', 'id'), coalesce(max(id), 0) + 1, false) FROM " + table
		if err := db.Exec(query).Error; err != nil {
			log.Error("Error syncing sequence", zap.String("table", table), zap.Error(err))
			failed++
			continue
		}
		log.Info("Synced sequence", zap.String("table", table))
	}
	if failed > 0 {
		return fmt.Errorf("%d sequences failed to sync", failed)
	}
	return nil
}

// GetSetting returns the stored value for key, or "" when unset.
func GetSetting(db *gorm.DB, key string) (string, error) {
	var setting models.SystemSetting
	err := db.Where("key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func SetSetting(db *gorm.DB, key, value string) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.SystemSetting{Key: key, Value: value}).Error
}
