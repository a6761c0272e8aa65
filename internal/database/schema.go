package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order on every start; each statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS units (
		id               VARCHAR(36)  NOT NULL PRIMARY KEY,
		name             VARCHAR(255) NOT NULL,
		slug             VARCHAR(255) NOT NULL,
		is_active        TINYINT(1)   NOT NULL DEFAULT 1,
		orthanc_base_url VARCHAR(512) NOT NULL DEFAULT '',
		ae_title         VARCHAR(64)  NOT NULL DEFAULT '',
		ip_address       VARCHAR(64)  NULL,
		port             INT          NOT NULL DEFAULT 4242,
		created_at       DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at       DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_units_slug (slug)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS users (
		id            VARCHAR(36)  NOT NULL PRIMARY KEY,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		full_name     VARCHAR(255) NOT NULL,
		role          VARCHAR(32)  NOT NULL,
		unit_id       VARCHAR(36)  NULL,
		is_active     TINYINT(1)   NOT NULL DEFAULT 1,
		sessions_valid_from DATETIME(3) NULL,
		created_at    DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at    DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_users_email (email),
		KEY idx_users_unit (unit_id),
		CONSTRAINT fk_users_unit FOREIGN KEY (unit_id) REFERENCES units (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS studies (
		id                 VARCHAR(64)  NOT NULL PRIMARY KEY,
		unit_id            VARCHAR(36)  NULL,
		study_instance_uid VARCHAR(128) NOT NULL,
		patient_name       VARCHAR(255) NOT NULL,
		patient_id         VARCHAR(64)  NOT NULL DEFAULT '',
		accession_number   VARCHAR(64)  NOT NULL DEFAULT '',
		study_date         DATE         NOT NULL,
		study_time         TIME         NOT NULL DEFAULT '00:00:00',
		modalities         VARCHAR(64)  NOT NULL DEFAULT '',
		description        VARCHAR(255) NOT NULL DEFAULT '',
		report_status      VARCHAR(16)  NULL,
		created_at         DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at         DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		KEY idx_studies_date (study_date, study_time),
		KEY idx_studies_unit (unit_id),
		KEY idx_studies_accession (accession_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS report_templates (
		id         VARCHAR(36)  NOT NULL PRIMARY KEY,
		unit_id    VARCHAR(36)  NULL,
		name       VARCHAR(255) NOT NULL,
		modality   VARCHAR(8)   NULL,
		body       TEXT         NOT NULL,
		created_at DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS report_snippets (
		id       VARCHAR(36)  NOT NULL PRIMARY KEY,
		category VARCHAR(64)  NOT NULL,
		name     VARCHAR(255) NOT NULL,
		body     TEXT         NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reports (
		id             VARCHAR(36) NOT NULL PRIMARY KEY,
		study_id       VARCHAR(64) NOT NULL,
		unit_id        VARCHAR(36) NULL,
		author_user_id VARCHAR(36) NOT NULL,
		template_id    VARCHAR(36) NULL,
		content        MEDIUMTEXT  NOT NULL,
		status         VARCHAR(16) NOT NULL DEFAULT 'draft',
		created_at     DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at     DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		signed_at      DATETIME(3) NULL,
		UNIQUE KEY uq_reports_study (study_id),
		CONSTRAINT fk_reports_study FOREIGN KEY (study_id) REFERENCES studies (id),
		CONSTRAINT fk_reports_author FOREIGN KEY (author_user_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS audit_logs (
		id          VARCHAR(36) NOT NULL PRIMARY KEY,
		user_id     VARCHAR(36) NULL,
		unit_id     VARCHAR(36) NULL,
		action      VARCHAR(32) NOT NULL,
		target_type VARCHAR(32) NOT NULL,
		target_id   VARCHAR(64) NULL,
		ip_address  VARCHAR(64) NULL,
		created_at  DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		KEY idx_audit_created (created_at, id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS revoked_tokens (
		jti        VARCHAR(64) NOT NULL PRIMARY KEY,
		expires_at DATETIME(3) NOT NULL,
		KEY idx_revoked_expires (expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates missing tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}

// hasUsers reports whether at least one account exists.
func hasUsers(ctx context.Context, db *sql.DB) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SeedAdmin creates a bootstrap admin_master when the users table is empty.
// It returns true when the account was created.
func SeedAdmin(ctx context.Context, db *sql.DB, id, email, passwordHash string) (bool, error) {
	exists, err := hasUsers(ctx, db)
	if err != nil || exists {
		return false, err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, full_name, role, is_active)
		 VALUES (?,?,?,?,?,1)`,
		id, email, passwordHash, "Administrator", "admin_master")
	if err != nil {
		return false, err
	}
	return true, nil
}
