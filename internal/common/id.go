package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique identifier for one runner pass.
// Format: run_<short-uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()[:8]
}
