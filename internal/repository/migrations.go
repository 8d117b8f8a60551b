package repository

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/nsvirk/attendanceapi/internal/models"
	"github.com/nsvirk/attendanceapi/pkg/utils/logger"
	"gorm.io/gorm"
)

// SessionEventChannel is the Postgres NOTIFY channel fed by the sessions trigger
const SessionEventChannel = "attendance_session_events"

const createNotifyTriggerSQL = `
CREATE OR REPLACE FUNCTION notify_session_change() RETURNS trigger AS $$
BEGIN
	IF TG_OP = 'INSERT' OR NEW.status IS DISTINCT FROM OLD.status THEN
		PERFORM pg_notify('` + SessionEventChannel + `', json_build_object(
			'op', TG_OP,
			'id', NEW.id,
			'user_id', NEW.user_id,
			'username', NEW.username,
			'status', NEW.status,
			'check_out_reason', NEW.check_out_reason
		)::text);
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS sessions_notify ON sessions;
CREATE TRIGGER sessions_notify AFTER INSERT OR UPDATE ON sessions
	FOR EACH ROW EXECUTE FUNCTION notify_session_change();
`

const dropNotifyTriggerSQL = `
DROP TRIGGER IF EXISTS sessions_notify ON sessions;
DROP FUNCTION IF EXISTS notify_session_change();
`

// Migrations returns the versioned schema changes
func Migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "20241018_create_attendance_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&models.UserModel{},
					&models.SessionModel{},
					&models.ActivityLogModel{},
					&logger.ErrorReport{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					logger.ErrorReportsTableName,
					models.ActivityLogsTableName,
					models.SessionsTableName,
					models.UsersTableName,
				)
			},
		},
		{
			ID: "20241019_sessions_notify_trigger",
			Migrate: func(tx *gorm.DB) error {
				if tx.Dialector.Name() != "postgres" {
					return nil
				}
				return tx.Exec(createNotifyTriggerSQL).Error
			},
			Rollback: func(tx *gorm.DB) error {
				if tx.Dialector.Name() != "postgres" {
					return nil
				}
				return tx.Exec(dropNotifyTriggerSQL).Error
			},
		},
		{
			ID: "20241021_sessions_cleanup_requested_at",
			Migrate: func(tx *gorm.DB) error {
				if tx.Migrator().HasColumn(&models.SessionModel{}, "CleanupRequestedAt") {
					return nil
				}
				return tx.Migrator().AddColumn(&models.SessionModel{}, "CleanupRequestedAt")
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropColumn(&models.SessionModel{}, "CleanupRequestedAt")
			},
		},
	}
}

// Migrate applies every pending migration
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, Migrations())
	if err := m.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}
