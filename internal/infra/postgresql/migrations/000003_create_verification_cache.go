package migrations

import (
	"github.com/cembakir/veriflow/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createVerificationCacheTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_verification_cache",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.CacheEntryModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CacheEntryModel{})
		},
	}
}
