package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByRecipient scopes every notification query to its owner.
type ByRecipient struct {
	RecipientID uuid.UUID
}

func (s ByRecipient) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("recipient_id = ?", s.RecipientID)
}

type ReadState struct {
	Read bool
}

func (s ReadState) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("is_read = ?", s.Read)
}

var (
	Unread = ReadState{Read: false}
	Read   = ReadState{Read: true}
)

// Owned matches a single notification belonging to recipientID.
func Owned(recipientID, id uuid.UUID) []Specification {
	return []Specification{ByID{ID: id}, ByRecipient{RecipientID: recipientID}}
}
