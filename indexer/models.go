package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is one committed event as stored in the index.
type EventRecord struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence uint64    `gorm:"index"`
	// Position orders events emitted by the same transaction.
	Position    int    `gorm:"not null"`
	Type        string `gorm:"index"`
	VaultID     string `gorm:"index"`
	Account     string `gorm:"index"`
	Attributes  string `gorm:"type:text"`
	Fingerprint string `gorm:"uniqueIndex;size:64"`
	EmittedAt   time.Time
	CreatedAt   time.Time
}

// AutoMigrate creates or updates the index tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}
