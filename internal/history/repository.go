package history

import "context"

// ListOptions contains options for listing plan records.
type ListOptions struct {
	Limit int
}

// Repository defines the interface for plan record persistence.
type Repository interface {
	// Create stores a new record.
	Create(ctx context.Context, record *PlanRecord) error

	// Get retrieves a record by ID.
	// Returns ErrRecordNotFound if the record doesn't exist.
	Get(ctx context.Context, id string) (*PlanRecord, error)

	// List returns records newest first.
	List(ctx context.Context, opts ListOptions) ([]*PlanRecord, error)
}
