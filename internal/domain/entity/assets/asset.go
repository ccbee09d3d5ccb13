package assets

import (
	"time"

	"github.com/google/uuid"
)

// Asset is one tradable instrument tracked by the history service. The UID is
// the storage key; the symbol is the identifier exposed on the query surface.
type Asset struct {
	UID       uuid.UUID
	Symbol    string
	Name      string
	Figi      string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}
