package models

import "github.com/google/uuid"

// ensureID assigns a client-side id so inserts behave the same on postgres and sqlite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
