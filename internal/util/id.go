package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewUUID returns a random (v4) UUID string, used for row identifiers.
func NewUUID() string {
	return uuid.NewString()
}

func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return raw
	}
	return prefix + "_" + raw
}
