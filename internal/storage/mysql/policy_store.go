package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"Karana-Planner/internal/policy"
)

// SQLPolicyStore persists user policy profiles in MySQL so consent and
// permission decisions survive restarts and are shared across instances.
type SQLPolicyStore struct {
	db *sql.DB
}

// NewSQLPolicyStore creates the store using the provided connection settings
// and applies pending schema migrations.
func NewSQLPolicyStore(ctx context.Context, cfg Config) (*SQLPolicyStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLPolicyStore{db: db}, nil
}

// Close releases the underlying database connection pool.
func (s *SQLPolicyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Profile implements policy.Provider. Unknown users yield
// policy.ErrProfileNotFound so callers can fall back to anonymous defaults.
func (s *SQLPolicyStore) Profile(ctx context.Context, userID string) (*policy.Profile, error) {
	const query = `SELECT user_id, display_name, vision_consent, preferred_chain, permissions, disabled
FROM policy_profiles WHERE user_id = ?`

	var (
		profile     policy.Profile
		permissions sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.DisplayName,
		&profile.VisionConsent,
		&profile.PreferredChain,
		&permissions,
		&profile.Disabled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, policy.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户策略失败: %w", err)
	}
	if permissions.Valid && permissions.String != "" {
		if err := json.Unmarshal([]byte(permissions.String), &profile.Permissions); err != nil {
			return nil, fmt.Errorf("解析用户权限失败: %w", err)
		}
	}
	return &profile, nil
}

// SaveProfile implements policy.Store with an insert-or-update keyed by
// user id.
func (s *SQLPolicyStore) SaveProfile(ctx context.Context, profile *policy.Profile) error {
	if profile == nil || strings.TrimSpace(profile.UserID) == "" {
		return fmt.Errorf("用户策略不能为空")
	}

	permissions, err := encodePermissions(profile.Permissions)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	const stmt = `INSERT INTO policy_profiles
(user_id, display_name, vision_consent, preferred_chain, permissions, disabled, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE display_name = VALUES(display_name), vision_consent = VALUES(vision_consent),
preferred_chain = VALUES(preferred_chain), permissions = VALUES(permissions),
disabled = VALUES(disabled), updated_at = VALUES(updated_at)`
	if _, err := s.db.ExecContext(ctx, stmt,
		profile.UserID,
		profile.DisplayName,
		profile.VisionConsent,
		profile.PreferredChain,
		permissions,
		profile.Disabled,
		now,
		now,
	); err != nil {
		return fmt.Errorf("保存用户策略失败: %w", err)
	}
	return nil
}

// ApplySeed loads the given profiles in a single transaction, skipping users
// that already have a stored profile so operator edits are not clobbered.
func (s *SQLPolicyStore) ApplySeed(ctx context.Context, seeds []policy.Seed) error {
	if len(seeds) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启策略事务失败: %w", err)
	}

	now := time.Now().Unix()
	const stmt = `INSERT IGNORE INTO policy_profiles
(user_id, display_name, vision_consent, preferred_chain, permissions, disabled, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for _, seed := range seeds {
		if strings.TrimSpace(seed.UserID) == "" {
			continue
		}
		permissions, err := encodePermissions(seed.Permissions)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt,
			seed.UserID,
			seed.DisplayName,
			seed.VisionConsent,
			seed.PreferredChain,
			permissions,
			seed.Disabled,
			now,
			now,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("写入用户策略 %s 失败: %w", seed.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交策略种子失败: %w", err)
	}
	return nil
}

func encodePermissions(permissions []string) (sql.NullString, error) {
	if len(permissions) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(permissions)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("序列化用户权限失败: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

var _ policy.Store = (*SQLPolicyStore)(nil)
