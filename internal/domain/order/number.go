package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewNumber returns a human-readable order number such as
// BK-20250814-7F3A21C9. The date prefix makes support lookups easy; the
// random suffix keeps numbers unguessable enough to share in notifications.
// Uniqueness is enforced by the database.
func NewNumber(at time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("BK-%s-%X", at.UTC().Format("20060102"), u[:4])
}
