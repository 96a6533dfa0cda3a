package migrations

import (
	"github.com/cembakir/veriflow/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createResultsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_results",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.ResultModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ResultModel{})
		},
	}
}
