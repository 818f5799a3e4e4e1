// Package schema stores descriptive field definitions per tenant and
// collection. Definitions are informational and are not applied to writes.
package schema

import (
	"context"
	"strings"
	"time"

	"github.com/wanzdb/wanzdb/internal/apperr"
	"github.com/wanzdb/wanzdb/internal/document"
	"github.com/wanzdb/wanzdb/pkg/logger"
)

// Field types accepted in a definition.
var fieldTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"date":    true,
	"object":  true,
	"array":   true,
}

type FieldDef struct {
	Name     string `bson:"name" json:"name"`
	Type     string `bson:"type" json:"type"`
	Required bool   `bson:"required" json:"required"`
}

type Descriptor struct {
	ID             string     `bson:"_id" json:"_id"`
	CollectionName string     `bson:"collectionName" json:"collectionName"`
	TenantID       string     `bson:"tenantId" json:"tenantId"`
	Fields         []FieldDef `bson:"fields" json:"fields"`
	CreatedAt      *time.Time `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt      *time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// descriptorID keys a descriptor by collection and tenant. Collection names
// cannot contain ':', so the pair is recoverable from the id.
func descriptorID(collection, tenant string) string {
	return collection + ":" + tenant
}

// Repository persists descriptors keyed by ID.
type Repository interface {
	// Get returns nil, nil when nothing owned by tenant is stored under id.
	Get(ctx context.Context, id, tenant string) (*Descriptor, error)
	// Upsert replaces the descriptor, keeping createdAt of an existing one,
	// and returns what is stored afterwards. It only matches a stored
	// descriptor of the same tenant.
	Upsert(ctx context.Context, d Descriptor) (*Descriptor, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }}
}

func checkTarget(tenant, collection string) error {
	if strings.TrimSpace(tenant) == "" {
		return apperr.Validation("tenant is required")
	}
	return document.ValidateCollectionName(collection)
}

// Get returns the stored descriptor, or an empty one when none exists.
func (s *Service) Get(ctx context.Context, tenant, collection string) (*Descriptor, error) {
	if err := checkTarget(tenant, collection); err != nil {
		return nil, err
	}
	id := descriptorID(collection, tenant)
	d, err := s.repo.Get(ctx, id, tenant)
	if err != nil {
		logger.Errorf("schema: loading %s failed: %v", id, err)
		return nil, apperr.Store(err)
	}
	if d == nil {
		return &Descriptor{ID: id, CollectionName: collection, TenantID: tenant, Fields: []FieldDef{}}, nil
	}
	if d.Fields == nil {
		d.Fields = []FieldDef{}
	}
	return d, nil
}

// Upsert replaces the field list for (collection, tenant). Fields without a
// name are dropped.
func (s *Service) Upsert(ctx context.Context, tenant, collection string, fields []FieldDef) (*Descriptor, error) {
	if err := checkTarget(tenant, collection); err != nil {
		return nil, err
	}
	kept := make([]FieldDef, 0, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			continue
		}
		if !fieldTypes[f.Type] {
			return nil, apperr.Validation("field %q has unknown type %q", f.Name, f.Type)
		}
		kept = append(kept, f)
	}

	now := s.now()
	d := Descriptor{
		ID:             descriptorID(collection, tenant),
		CollectionName: collection,
		TenantID:       tenant,
		Fields:         kept,
		CreatedAt:      &now,
		UpdatedAt:      &now,
	}
	out, err := s.repo.Upsert(ctx, d)
	if err != nil {
		logger.Errorf("schema: saving %s failed: %v", d.ID, err)
		return nil, apperr.Store(err)
	}
	return out, nil
}
