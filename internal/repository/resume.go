package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/foxzi/outreach/internal/models"
	"github.com/google/uuid"
)

type ResumeRepository struct {
	db *sql.DB
}

func NewResumeRepository(db *sql.DB) *ResumeRepository {
	return &ResumeRepository{db: db}
}

// Create registers an uploaded resume file.
func (r *ResumeRepository) Create(res *models.Resume) error {
	res.ID = uuid.New().String()
	res.CreatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT INTO resumes (id, owner_id, file_name, file_path, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		res.ID, res.OwnerID, res.FileName, res.FilePath, res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create resume: %w", err)
	}
	return nil
}

// GetOwned returns a resume if it exists and belongs to the owner.
func (r *ResumeRepository) GetOwned(id, ownerID string) (*models.Resume, error) {
	res := &models.Resume{}
	err := r.db.QueryRow(`
		SELECT id, owner_id, file_name, file_path, created_at
		FROM resumes WHERE id = ? AND owner_id = ?`, id, ownerID,
	).Scan(&res.ID, &res.OwnerID, &res.FileName, &res.FilePath, &res.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListByOwner returns the owner's uploaded resumes, newest first.
func (r *ResumeRepository) ListByOwner(ownerID string) ([]models.Resume, error) {
	rows, err := r.db.Query(`
		SELECT id, owner_id, file_name, file_path, created_at
		FROM resumes WHERE owner_id = ?
		ORDER BY created_at DESC`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resumes := []models.Resume{}
	for rows.Next() {
		res := models.Resume{}
		if err := rows.Scan(&res.ID, &res.OwnerID, &res.FileName, &res.FilePath, &res.CreatedAt); err != nil {
			return nil, err
		}
		resumes = append(resumes, res)
	}
	return resumes, rows.Err()
}

// Delete deletes a resume record.
func (r *ResumeRepository) Delete(id, ownerID string) error {
	_, err := r.db.Exec("DELETE FROM resumes WHERE id = ? AND owner_id = ?", id, ownerID)
	return err
}
