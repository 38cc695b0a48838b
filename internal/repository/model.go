package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
)

// ModelRepository — интерфейс CRUD для таблицы models.
// Все мутации условные: Update и Delete сверяют revision и возвращают
// ErrRevisionConflict при конкурентном изменении записи.
type ModelRepository interface {
	// Create создаёт новую запись модели.
	Create(ctx context.Context, rec *model.ModelRecord) error
	// GetByID возвращает запись модели тенанта по ID.
	GetByID(ctx context.Context, tenantID, id string) (*model.ModelRecord, error)
	// ListByTenant возвращает все записи моделей тенанта.
	ListByTenant(ctx context.Context, tenantID string) ([]*model.ModelRecord, error)
	// Update обновляет запись при совпадении revision, инкрементирует revision.
	Update(ctx context.Context, rec *model.ModelRecord) error
	// Delete удаляет запись при совпадении revision.
	Delete(ctx context.Context, tenantID, id string, revision int64) error
	// CountByName возвращает количество записей тенанта с данным именем.
	CountByName(ctx context.Context, tenantID, name string) (int, error)
	// ListTenants возвращает идентификаторы всех тенантов, имеющих записи.
	ListTenants(ctx context.Context) ([]string, error)
}

// modelRepo — реализация ModelRepository.
type modelRepo struct {
	db DBTX
}

// NewModelRepository создаёт репозиторий записей моделей.
func NewModelRepository(db DBTX) ModelRepository {
	return &modelRepo{db: db}
}

func (r *modelRepo) Create(ctx context.Context, rec *model.ModelRecord) error {
	query := `
		INSERT INTO models (id, tenant_id, name, project, status, trained_model_id,
			file_batch_id, status_date, creation_date, marked_for_deletion, cloned_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING revision, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		rec.ID, rec.TenantID, rec.Name, rec.Project, rec.Status, rec.TrainedModelID,
		rec.FileBatchID, rec.StatusDate, rec.CreationDate, rec.MarkedForDeletion, rec.ClonedFrom,
	).Scan(&rec.Revision, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: модель %s", ErrConflict, rec.ID)
		}
		return fmt.Errorf("ошибка создания записи модели: %w", err)
	}
	return nil
}

func (r *modelRepo) GetByID(ctx context.Context, tenantID, id string) (*model.ModelRecord, error) {
	query := `
		SELECT id, tenant_id, name, project, status, trained_model_id,
			file_batch_id, status_date, creation_date, marked_for_deletion,
			cloned_from, revision, created_at, updated_at
		FROM models
		WHERE tenant_id = $1 AND id = $2`

	rec := &model.ModelRecord{}
	err := r.db.QueryRow(ctx, query, tenantID, id).Scan(
		&rec.ID, &rec.TenantID, &rec.Name, &rec.Project, &rec.Status, &rec.TrainedModelID,
		&rec.FileBatchID, &rec.StatusDate, &rec.CreationDate, &rec.MarkedForDeletion,
		&rec.ClonedFrom, &rec.Revision, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи модели: %w", err)
	}
	return rec, nil
}

func (r *modelRepo) ListByTenant(ctx context.Context, tenantID string) ([]*model.ModelRecord, error) {
	query := `
		SELECT id, tenant_id, name, project, status, trained_model_id,
			file_batch_id, status_date, creation_date, marked_for_deletion,
			cloned_from, revision, created_at, updated_at
		FROM models
		WHERE tenant_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка моделей: %w", err)
	}
	defer rows.Close()

	var result []*model.ModelRecord
	for rows.Next() {
		rec := &model.ModelRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.Name, &rec.Project, &rec.Status, &rec.TrainedModelID,
			&rec.FileBatchID, &rec.StatusDate, &rec.CreationDate, &rec.MarkedForDeletion,
			&rec.ClonedFrom, &rec.Revision, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи модели: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Update обновляет запись по условию id+revision. Несовпадение revision
// при существующей записи — ErrRevisionConflict: вызывающий перечитывает
// запись и повторяет решение.
func (r *modelRepo) Update(ctx context.Context, rec *model.ModelRecord) error {
	query := `
		UPDATE models
		SET name = $4, project = $5, status = $6, trained_model_id = $7,
			file_batch_id = $8, status_date = $9, marked_for_deletion = $10,
			cloned_from = $11, revision = revision + 1, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND revision = $3
		RETURNING revision, updated_at`

	err := r.db.QueryRow(ctx, query,
		rec.TenantID, rec.ID, rec.Revision,
		rec.Name, rec.Project, rec.Status, rec.TrainedModelID,
		rec.FileBatchID, rec.StatusDate, rec.MarkedForDeletion, rec.ClonedFrom,
	).Scan(&rec.Revision, &rec.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return r.conflictOrNotFound(ctx, rec.TenantID, rec.ID)
		}
		return fmt.Errorf("ошибка обновления записи модели: %w", err)
	}
	return nil
}

func (r *modelRepo) Delete(ctx context.Context, tenantID, id string, revision int64) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM models WHERE tenant_id = $1 AND id = $2 AND revision = $3`,
		tenantID, id, revision,
	)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи модели: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrNotFound(ctx, tenantID, id)
	}
	return nil
}

func (r *modelRepo) CountByName(ctx context.Context, tenantID, name string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM models WHERE tenant_id = $1 AND name = $2`,
		tenantID, name,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта моделей: %w", err)
	}
	return count, nil
}

func (r *modelRepo) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT tenant_id FROM models ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка тенантов: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("ошибка сканирования тенанта: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// conflictOrNotFound различает несовпадение revision и отсутствие записи.
func (r *modelRepo) conflictOrNotFound(ctx context.Context, tenantID, id string) error {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM models WHERE tenant_id = $1 AND id = $2)`,
		tenantID, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ошибка проверки записи модели: %w", err)
	}
	if exists {
		return ErrRevisionConflict
	}
	return ErrNotFound
}
