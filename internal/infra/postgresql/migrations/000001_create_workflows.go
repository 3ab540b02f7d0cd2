package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/community-notify/internal/repository"
	"gorm.io/gorm"
)

func createWorkflowsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_workflows",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.WorkflowModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_workflows_due ON workflows (scheduled_at) WHERE status = 'pending'`,
				`CREATE INDEX IF NOT EXISTS idx_workflows_status_created ON workflows (status, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_workflows_gathering_id ON workflows (gathering_id) WHERE gathering_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_workflows_candidate_id ON workflows (candidate_id) WHERE candidate_id IS NOT NULL`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.WorkflowModel{})
		},
	}
}
