// Package record provides the domain types for external and local records.
package record

import (
	"fmt"
	"strings"

	domainerrors "github.com/jbctechsolutions/listingsync/internal/domain/errors"
)

// EntityType identifies which kind of CRM object a record represents.
type EntityType string

const (
	EntityListing EntityType = "listing"
	EntityAgent   EntityType = "agent"
)

// AllEntityTypes lists the supported entity types in a stable order.
var AllEntityTypes = []EntityType{EntityListing, EntityAgent}

// String returns the string representation of the entity type.
func (e EntityType) String() string {
	return string(e)
}

// IsValid reports whether e is a supported entity type.
func (e EntityType) IsValid() bool {
	switch e {
	case EntityListing, EntityAgent:
		return true
	}
	return false
}

// ParseEntityType parses a case-insensitive entity name. Plural forms are accepted.
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "listing", "listings":
		return EntityListing, nil
	case "agent", "agents", "user", "users":
		return EntityAgent, nil
	}
	return "", fmt.Errorf("%w: %q", domainerrors.ErrUnknownEntity, s)
}

// RecordID identifies a local record. It is issued by the record store.
type RecordID string

// MediaID identifies a media asset attached to a local record.
type MediaID string
