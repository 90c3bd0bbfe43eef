// Package sqlite provides a single-file fallback for the catalog and policy
// stores, aimed at edge deployments without a MySQL server. One database file
// carries both tables so a process opens it exactly once.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"Karana-Planner/internal/catalog"
	"Karana-Planner/internal/policy"

	_ "modernc.org/sqlite"
)

const (
	driverName         = "sqlite"
	defaultBusyTimeout = 5 * time.Second
)

var schemaStatements = [...]string{
	`CREATE TABLE IF NOT EXISTS catalog_apps (
		name TEXT NOT NULL PRIMARY KEY,
		package TEXT NOT NULL DEFAULT '',
		size_mb REAL NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_catalog_category ON catalog_apps(category);`,
	`CREATE TABLE IF NOT EXISTS policy_profiles (
		user_id TEXT NOT NULL PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		vision_consent INTEGER NOT NULL DEFAULT 0,
		preferred_chain TEXT NOT NULL DEFAULT '',
		permissions TEXT,
		disabled INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
}

// Store serves the app catalog and user policy profiles from one SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

// Open initialises the store at the given path, creating the file and schema
// on first use.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite 数据文件路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", filepath.ToSlash(path), int(defaultBusyTimeout/time.Millisecond))
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开 sqlite 失败: %w", err)
	}

	// modernc.org/sqlite serialises writers per connection; a single
	// connection avoids SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("执行 %s 失败: %w", strings.TrimSuffix(pragma, ";"), err)
		}
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("初始化 sqlite 表结构失败: %w", err)
		}
	}

	return &Store{db: db, path: path}, nil
}

// Close shuts down the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Directory implements catalog.Provider.
func (s *Store) Directory(ctx context.Context) (catalog.Directory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, package, size_mb, category, description FROM catalog_apps`)
	if err != nil {
		return nil, fmt.Errorf("查询应用目录失败: %w", err)
	}
	defer rows.Close()

	var apps []catalog.App
	for rows.Next() {
		var app catalog.App
		if err := rows.Scan(&app.Name, &app.Package, &app.SizeMB, &app.Category, &app.Description); err != nil {
			return nil, fmt.Errorf("解析应用目录失败: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历应用目录失败: %w", err)
	}
	return catalog.BuildDirectory(apps), nil
}

// SaveApp upserts a single catalog entry keyed by app name.
func (s *Store) SaveApp(ctx context.Context, app catalog.App) error {
	if strings.TrimSpace(app.Name) == "" {
		return fmt.Errorf("应用名称不能为空")
	}
	const stmt = `INSERT INTO catalog_apps (name, package, size_mb, category, description, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET package = excluded.package, size_mb = excluded.size_mb,
category = excluded.category, description = excluded.description, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, stmt,
		app.Name,
		app.Package,
		app.SizeMB,
		app.Category,
		app.Description,
		time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("保存应用目录条目失败: %w", err)
	}
	return nil
}

// ReplaceApps swaps the stored directory for the given set in one transaction.
func (s *Store) ReplaceApps(ctx context.Context, apps []catalog.App) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启目录事务失败: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_apps`); err != nil {
		tx.Rollback()
		return fmt.Errorf("清空应用目录失败: %w", err)
	}

	now := time.Now().Unix()
	const stmt = `INSERT INTO catalog_apps (name, package, size_mb, category, description, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`
	for _, app := range apps {
		if strings.TrimSpace(app.Name) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt,
			app.Name,
			app.Package,
			app.SizeMB,
			app.Category,
			app.Description,
			now,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("写入应用 %s 失败: %w", app.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交目录事务失败: %w", err)
	}
	return nil
}

// EnsureSeeded loads the given apps only when the table is still empty.
func (s *Store) EnsureSeeded(ctx context.Context, apps []catalog.App) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalog_apps`).Scan(&count); err != nil {
		return fmt.Errorf("统计应用目录失败: %w", err)
	}
	if count > 0 {
		return nil
	}
	return s.ReplaceApps(ctx, apps)
}

// Profile implements policy.Provider. Unknown users yield
// policy.ErrProfileNotFound so callers can fall back to anonymous defaults.
func (s *Store) Profile(ctx context.Context, userID string) (*policy.Profile, error) {
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
func (s *Store) SaveProfile(ctx context.Context, profile *policy.Profile) error {
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
ON CONFLICT(user_id) DO UPDATE SET display_name = excluded.display_name,
vision_consent = excluded.vision_consent, preferred_chain = excluded.preferred_chain,
permissions = excluded.permissions, disabled = excluded.disabled, updated_at = excluded.updated_at`
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

// ApplySeed loads the given profiles, skipping users that already have a
// stored profile so operator edits are not clobbered.
func (s *Store) ApplySeed(ctx context.Context, seeds []policy.Seed) error {
	if len(seeds) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启策略事务失败: %w", err)
	}

	now := time.Now().Unix()
	const stmt = `INSERT OR IGNORE INTO policy_profiles
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

var (
	_ catalog.Provider = (*Store)(nil)
	_ policy.Store     = (*Store)(nil)
)
