package session

import (
	"time"

	"github.com/felixgeelhaar/edimap/pkg/domain/flow"
)

// Record is the persisted pointer to the active server session. It lets
// non-interactive commands resume review without re-uploading.
type Record struct {
	ID        string               `yaml:"id" json:"id"`
	Flow      flow.Kind            `yaml:"flow" json:"flow"`
	BaseURL   string               `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Documents map[flow.Slot]string `yaml:"documents,omitempty" json:"documents,omitempty"`
	CreatedAt time.Time            `yaml:"created_at" json:"created_at"`
}

// Repository persists the active session record.
type Repository interface {
	SaveSession(r *Record) error
	// LoadSession returns ErrNoSession when nothing is stored.
	LoadSession() (*Record, error)
	ClearSession() error
}
