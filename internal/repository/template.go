package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/foxzi/outreach/internal/models"
	"github.com/google/uuid"
)

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create creates a new template.
func (r *TemplateRepository) Create(t *models.Template) error {
	t.ID = uuid.New().String()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO templates (id, owner_id, name, subject, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Name, t.Subject, t.Body, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// GetOwned returns a template if it exists and belongs to the owner.
func (r *TemplateRepository) GetOwned(id, ownerID string) (*models.Template, error) {
	t := &models.Template{}
	err := r.db.QueryRow(`
		SELECT id, owner_id, name, subject, body, created_at, updated_at
		FROM templates WHERE id = ? AND owner_id = ?`, id, ownerID,
	).Scan(&t.ID, &t.OwnerID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListByOwner returns the owner's templates, most recently updated first.
func (r *TemplateRepository) ListByOwner(ownerID string) ([]models.Template, error) {
	rows, err := r.db.Query(`
		SELECT id, owner_id, name, subject, body, created_at, updated_at
		FROM templates WHERE owner_id = ?
		ORDER BY updated_at DESC`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []models.Template{}
	for rows.Next() {
		t := models.Template{}
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// Update updates a template's content.
func (r *TemplateRepository) Update(t *models.Template) error {
	t.UpdatedAt = time.Now()
	_, err := r.db.Exec(`
		UPDATE templates SET name = ?, subject = ?, body = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		t.Name, t.Subject, t.Body, t.UpdatedAt, t.ID, t.OwnerID,
	)
	return err
}

// Delete deletes a template.
func (r *TemplateRepository) Delete(id, ownerID string) error {
	_, err := r.db.Exec("DELETE FROM templates WHERE id = ? AND owner_id = ?", id, ownerID)
	return err
}
