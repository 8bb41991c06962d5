package models

import "github.com/google/uuid"

// assignID fills a zero primary key before insert so rows carry an id on
// every dialect, not only where the column default generates one.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
