package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/community-notify/internal/repository"
	"gorm.io/gorm"
)

// The directory tables are owned by the community app. They are created here
// only when absent so local stacks and tests have something to read.
func createDirectoryTables() *gormigrate.Migration {
	tables := []any{
		&repository.UserModel{},
		&repository.PushTokenModel{},
		&repository.GroupModel{},
		&repository.GroupMemberModel{},
		&repository.GatheringModel{},
		&repository.RSVPModel{},
		&repository.CandidateModel{},
	}

	return &gormigrate.Migration{
		ID: "000004_create_directory",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(tables...); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_group_members_user_id ON group_members (user_id)`,
				`CREATE INDEX IF NOT EXISTS idx_gathering_rsvps_status ON gathering_rsvps (gathering_id, status)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			for i := len(tables) - 1; i >= 0; i-- {
				if err := tx.Migrator().DropTable(tables[i]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
