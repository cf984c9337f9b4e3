package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is an identity record keyed by the external subject of an identity assertion.
type User struct {
	ID        uuid.UUID `json:"id"`
	Subject   string    `json:"-"` // Stable external subject, unique
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
