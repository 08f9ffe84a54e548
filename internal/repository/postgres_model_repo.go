package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/smolhub/internal/model"
)

// PostgresModelRepo はPostgreSQLを使用したモデルカタログリポジトリ。
type PostgresModelRepo struct {
	db *sql.DB
}

// NewPostgresModelRepo はPostgresModelRepoを生成する。
func NewPostgresModelRepo(db *sql.DB) *PostgresModelRepo {
	return &PostgresModelRepo{db: db}
}

const selectModelColumns = `SELECT id, name, unique_id, file_path, size_bytes, update_date, readme_content, uploader_id, created_at FROM models`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(s rowScanner) (*model.ModelArtifact, error) {
	m := &model.ModelArtifact{}
	err := s.Scan(&m.ID, &m.Name, &m.UniqueID, &m.FilePath, &m.SizeBytes,
		&m.UpdateDate, &m.ReadmeContent, &m.UploaderID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// List はカタログを新しい順に取得する。
func (r *PostgresModelRepo) List(ctx context.Context, limit, offset int) ([]*model.ModelArtifact, error) {
	rows, err := r.db.QueryContext(ctx,
		selectModelColumns+` ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var models []*model.ModelArtifact
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate models: %w", err)
	}
	return models, nil
}

// FindByUniqueID はunique_idでカタログ行を取得する。見つからない場合はnilを返す。
func (r *PostgresModelRepo) FindByUniqueID(ctx context.Context, uniqueID string) (*model.ModelArtifact, error) {
	m, err := scanModel(r.db.QueryRowContext(ctx, selectModelColumns+` WHERE unique_id = $1`, uniqueID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find model: %w", err)
	}
	return m, nil
}

// ExistsByUniqueID はunique_idの行が存在するかどうかを返す。
func (r *PostgresModelRepo) ExistsByUniqueID(ctx context.Context, uniqueID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM models WHERE unique_id = $1)`,
		uniqueID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check model existence: %w", err)
	}
	return exists, nil
}

// Create はカタログ行を作成する。
func (r *PostgresModelRepo) Create(ctx context.Context, m *model.ModelArtifact) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO models (id, name, unique_id, file_path, size_bytes, update_date, readme_content, uploader_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.Name, m.UniqueID, m.FilePath, m.SizeBytes,
		m.UpdateDate, m.ReadmeContent, m.UploaderID, m.CreatedAt,
	)
	if err != nil {
		return wrapPGError("failed to insert model", err)
	}
	return nil
}

// compile-time interface check
var _ ModelRepository = (*PostgresModelRepo)(nil)
