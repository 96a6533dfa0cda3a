package migrations

import (
	"github.com/cembakir/veriflow/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createQuotaCountersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_quota_counters",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.QuotaCountersModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.QuotaCountersModel{})
		},
	}
}
