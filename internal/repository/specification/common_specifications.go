package specification

import (
	"erp-notification-be/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByID filters by ID
type ByID struct {
	ID uuid.UUID
}

func (s ByID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id = ?", s.ID)
}

// Pagination
type Pagination struct {
	Limit  int
	Offset int
}

func (s Pagination) Apply(db *gorm.DB) *gorm.DB {
	return db.Limit(s.Limit).Offset(s.Offset)
}

// PageOf converts a 1-based page into a Pagination.
func PageOf(page, limit int) Pagination {
	return Pagination{Limit: limit, Offset: repository.Offset(page, limit)}
}
