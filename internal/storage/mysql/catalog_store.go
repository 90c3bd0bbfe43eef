package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"Karana-Planner/internal/catalog"
)

// SQLCatalogStore serves the installable-app directory from MySQL, letting a
// fleet share one curated catalog instead of the built-in list.
type SQLCatalogStore struct {
	db *sql.DB
}

// NewSQLCatalogStore creates the store using the provided connection settings
// and applies pending schema migrations.
func NewSQLCatalogStore(ctx context.Context, cfg Config) (*SQLCatalogStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLCatalogStore{db: db}, nil
}

// Close releases the underlying database connection pool.
func (s *SQLCatalogStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Directory implements catalog.Provider.
func (s *SQLCatalogStore) Directory(ctx context.Context) (catalog.Directory, error) {
	const query = `SELECT name, package, size_mb, category, description FROM catalog_apps`
	rows, err := s.db.QueryContext(ctx, query)
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
func (s *SQLCatalogStore) SaveApp(ctx context.Context, app catalog.App) error {
	if strings.TrimSpace(app.Name) == "" {
		return fmt.Errorf("应用名称不能为空")
	}
	const stmt = `INSERT INTO catalog_apps (name, package, size_mb, category, description, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE package = VALUES(package), size_mb = VALUES(size_mb),
category = VALUES(category), description = VALUES(description), updated_at = VALUES(updated_at)`
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
func (s *SQLCatalogStore) ReplaceApps(ctx context.Context, apps []catalog.App) error {
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

// EnsureSeeded loads the given apps only when the table is still empty, so a
// fresh deployment starts from the built-in directory without overwriting
// later curation.
func (s *SQLCatalogStore) EnsureSeeded(ctx context.Context, apps []catalog.App) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalog_apps`).Scan(&count); err != nil {
		return fmt.Errorf("统计应用目录失败: %w", err)
	}
	if count > 0 {
		return nil
	}
	return s.ReplaceApps(ctx, apps)
}

var _ catalog.Provider = (*SQLCatalogStore)(nil)
