package repository

import (
	"fmt"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/database"
)

// Repositories holds all repository implementations
type Repositories struct {
	Pick       PickRepository
	Adjustment AdjustmentRepository
	Build      BuildRepository
}

// NewRepositories creates and returns all repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Pick:       NewPostgresPickRepository(db),
		Adjustment: NewPostgresAdjustmentRepository(db),
		Build:      NewPostgresBuildRepository(db),
	}, nil
}
