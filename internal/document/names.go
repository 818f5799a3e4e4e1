package document

import (
	"regexp"
	"strings"

	"github.com/wanzdb/wanzdb/internal/apperr"
)

// Internal collections that hold service metadata. They are never reachable
// through the generic document API.
const (
	RegistryCollection = "_meta_collections_list"
	SchemaCollection   = "_schemas"
)

// collectionsRoute is the path segment of the registry endpoints; a collection
// with this name would be shadowed by them.
const collectionsRoute = "collections"

var collectionNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,120}$`)

// ValidateCollectionName rejects names that are not safe identifiers or that
// address internal collections.
func ValidateCollectionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Validation("collection name is required")
	}
	if !collectionNameRe.MatchString(name) {
		return apperr.Validation("invalid collection name %q", name)
	}
	if IsReservedCollection(name) {
		return apperr.Validation("collection name %q is reserved", name)
	}
	return nil
}

// IsReservedCollection reports whether name belongs to service metadata or
// collides with a fixed API path.
func IsReservedCollection(name string) bool {
	n := strings.ToLower(name)
	return n == RegistryCollection || n == SchemaCollection || n == collectionsRoute || strings.HasPrefix(n, "system.")
}
