package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
)

// BatchRepository — интерфейс CRUD для таблицы file_batches.
// Список файлов хранится как jsonb; Update и Delete условные по revision.
type BatchRepository interface {
	// Create создаёт новый батч.
	Create(ctx context.Context, b *model.FileBatch) error
	// GetByID возвращает батч тенанта по ID.
	GetByID(ctx context.Context, tenantID, id string) (*model.FileBatch, error)
	// ListByTenant возвращает все батчи тенанта.
	ListByTenant(ctx context.Context, tenantID string) ([]*model.FileBatch, error)
	// Update обновляет батч при совпадении revision, инкрементирует revision.
	Update(ctx context.Context, b *model.FileBatch) error
	// Delete удаляет батч при совпадении revision.
	Delete(ctx context.Context, tenantID, id string, revision int64) error
	// CountFileUse возвращает количество ссылок на blob из батчей тенанта.
	CountFileUse(ctx context.Context, tenantID, uuid string) (int, error)
}

// batchRepo — реализация BatchRepository.
type batchRepo struct {
	db DBTX
}

// NewBatchRepository создаёт репозиторий батчей.
func NewBatchRepository(db DBTX) BatchRepository {
	return &batchRepo{db: db}
}

func (r *batchRepo) Create(ctx context.Context, b *model.FileBatch) error {
	files, err := marshalFiles(b.Files)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO file_batches (id, tenant_id, files)
		VALUES ($1, $2, $3)
		RETURNING revision, created_at, updated_at`

	err = r.db.QueryRow(ctx, query, b.ID, b.TenantID, files).
		Scan(&b.Revision, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: батч %s", ErrConflict, b.ID)
		}
		return fmt.Errorf("ошибка создания батча: %w", err)
	}
	return nil
}

func (r *batchRepo) GetByID(ctx context.Context, tenantID, id string) (*model.FileBatch, error) {
	query := `
		SELECT id, tenant_id, files, revision, created_at, updated_at
		FROM file_batches
		WHERE tenant_id = $1 AND id = $2`

	b := &model.FileBatch{}
	var files []byte
	err := r.db.QueryRow(ctx, query, tenantID, id).Scan(
		&b.ID, &b.TenantID, &files, &b.Revision, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения батча: %w", err)
	}
	if err := json.Unmarshal(files, &b.Files); err != nil {
		return nil, fmt.Errorf("ошибка разбора файлов батча %s: %w", b.ID, err)
	}
	return b, nil
}

func (r *batchRepo) ListByTenant(ctx context.Context, tenantID string) ([]*model.FileBatch, error) {
	query := `
		SELECT id, tenant_id, files, revision, created_at, updated_at
		FROM file_batches
		WHERE tenant_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка батчей: %w", err)
	}
	defer rows.Close()

	var result []*model.FileBatch
	for rows.Next() {
		b := &model.FileBatch{}
		var files []byte
		if err := rows.Scan(
			&b.ID, &b.TenantID, &files, &b.Revision, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования батча: %w", err)
		}
		if err := json.Unmarshal(files, &b.Files); err != nil {
			return nil, fmt.Errorf("ошибка разбора файлов батча %s: %w", b.ID, err)
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (r *batchRepo) Update(ctx context.Context, b *model.FileBatch) error {
	files, err := marshalFiles(b.Files)
	if err != nil {
		return err
	}

	query := `
		UPDATE file_batches
		SET files = $4, revision = revision + 1, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND revision = $3
		RETURNING revision, updated_at`

	err = r.db.QueryRow(ctx, query, b.TenantID, b.ID, b.Revision, files).
		Scan(&b.Revision, &b.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return r.conflictOrNotFound(ctx, b.TenantID, b.ID)
		}
		return fmt.Errorf("ошибка обновления батча: %w", err)
	}
	return nil
}

func (r *batchRepo) Delete(ctx context.Context, tenantID, id string, revision int64) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM file_batches WHERE tenant_id = $1 AND id = $2 AND revision = $3`,
		tenantID, id, revision,
	)
	if err != nil {
		return fmt.Errorf("ошибка удаления батча: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrNotFound(ctx, tenantID, id)
	}
	return nil
}

// CountFileUse считает ссылки на blob сканированием jsonb-поля files
// всех батчей тенанта. Blob без единой ссылки — кандидат на удаление.
func (r *batchRepo) CountFileUse(ctx context.Context, tenantID, uuid string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM file_batches, jsonb_array_elements(files) AS f
		WHERE tenant_id = $1 AND f->>'uuid' = $2`

	var count int
	if err := r.db.QueryRow(ctx, query, tenantID, uuid).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта использования blob: %w", err)
	}
	return count, nil
}

func (r *batchRepo) conflictOrNotFound(ctx context.Context, tenantID, id string) error {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM file_batches WHERE tenant_id = $1 AND id = $2)`,
		tenantID, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ошибка проверки батча: %w", err)
	}
	if exists {
		return ErrRevisionConflict
	}
	return ErrNotFound
}

func marshalFiles(files []model.BatchFile) ([]byte, error) {
	if files == nil {
		files = []model.BatchFile{}
	}
	data, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации файлов батча: %w", err)
	}
	return data, nil
}
