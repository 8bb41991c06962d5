package outbox

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

const maxDLQErrorLen = 1024

// DLQRepository keeps the outbox rows the publisher gave up on, with the
// reason it stopped.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx writes entry on tx, clipping long broker errors.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !entry.ErrorReason.IsValid() {
		return fmt.Errorf("unknown dlq error reason %q", entry.ErrorReason)
	}
	if entry.ErrorMessage != nil {
		clipped := clip(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &clipped
	}
	return tx.Create(&entry).Error
}

// clip cuts s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
