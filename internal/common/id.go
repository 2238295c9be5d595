package common

import (
	"github.com/google/uuid"
)

// NewNodeID generates a unique node ID.
func NewNodeID() string {
	return uuid.New().String()
}

// NewJobID generates a unique enrichment job ID with the "job_" prefix.
func NewJobID() string {
	return "job_" + uuid.New().String()
}
