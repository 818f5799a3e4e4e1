// Package registry keeps the per-tenant catalog of collections.
package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wanzdb/wanzdb/internal/apperr"
	"github.com/wanzdb/wanzdb/internal/document"
	"github.com/wanzdb/wanzdb/internal/store"
	"github.com/wanzdb/wanzdb/pkg/logger"
	"github.com/wanzdb/wanzdb/pkg/metrics"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"
)

// countConcurrency bounds the document counts run by List.
const countConcurrency = 4

type Service struct {
	repo  Repository
	store store.Store
	now   func() time.Time
}

func NewService(repo Repository, st store.Store) *Service {
	return &Service{
		repo:  repo,
		store: st,
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Normalize lower-cases raw and replaces every character outside [a-z0-9_]
// with an underscore.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func record(op string, err error) {
	metrics.RegistryOperations.WithLabelValues(op, apperr.Outcome(err)).Inc()
}

// List returns the tenant's collections with a live count of active documents.
// A failed count is logged and reported as zero.
func (s *Service) List(ctx context.Context, tenant string) (out []Descriptor, err error) {
	defer func() { record("list", err) }()
	if strings.TrimSpace(tenant) == "" {
		return nil, apperr.Validation("tenant is required")
	}
	entry, err := s.repo.Get(ctx, tenant)
	if err != nil {
		logger.Errorf("registry: loading entry for %s failed: %v", tenant, err)
		return nil, apperr.Store(err)
	}
	if entry == nil {
		out = Defaults()
	} else {
		out = append([]Descriptor{}, entry.Collections...)
	}

	var g errgroup.Group
	g.SetLimit(countConcurrency)
	for i := range out {
		i := i // per-iteration copy; module targets go1.21 loop semantics
		g.Go(func() error {
			filter := bson.M{document.FieldUID: tenant, document.FieldDeletedAt: nil}
			n, cerr := s.store.Count(ctx, out[i].Name, filter)
			if cerr != nil {
				logger.Warnf("registry: counting %s for %s failed: %v", out[i].Name, tenant, cerr)
				n = 0
			}
			out[i].DocsCount = n
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// Create registers a new collection for the tenant and provisions it in the
// store.
func (s *Service) Create(ctx context.Context, tenant, raw string) (d Descriptor, err error) {
	defer func() { record("create", err) }()
	if strings.TrimSpace(tenant) == "" {
		return Descriptor{}, apperr.Validation("tenant is required")
	}
	if strings.TrimSpace(raw) == "" {
		return Descriptor{}, apperr.Validation("collection name is required")
	}
	name := Normalize(raw)
	if err = document.ValidateCollectionName(name); err != nil {
		return Descriptor{}, err
	}

	created := s.now()
	d = Descriptor{Name: name, Type: TypeUser, CreatedAt: &created}
	if err = s.repo.Add(ctx, tenant, d, Defaults()); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return Descriptor{}, apperr.Conflict("collection '%s' already exists", name)
		}
		logger.Errorf("registry: adding %s for %s failed: %v", name, tenant, err)
		return Descriptor{}, apperr.Store(err)
	}

	if err = s.store.CreateCollection(ctx, name); err != nil && !errors.Is(err, store.ErrCollectionExists) {
		logger.Errorf("registry: provisioning %s failed: %v", name, err)
		// unregister so the create can be retried
		if rmErr := s.repo.Remove(ctx, tenant, name); rmErr != nil {
			logger.Errorf("registry: rolling back %s for %s failed: %v", name, tenant, rmErr)
		}
		return Descriptor{}, apperr.Store(err)
	}
	logger.Infow("collection created", "tenant", tenant, "collection", name)
	return d, nil
}

// Delete unregisters the collection and removes the tenant's documents from it.
// Other tenants' documents and the physical collection are left in place.
func (s *Service) Delete(ctx context.Context, tenant, name string) (err error) {
	defer func() { record("delete", err) }()
	if strings.TrimSpace(tenant) == "" {
		return apperr.Validation("tenant is required")
	}
	if err = document.ValidateCollectionName(name); err != nil {
		return err
	}
	if err = s.repo.Remove(ctx, tenant, name); err != nil {
		logger.Errorf("registry: removing %s for %s failed: %v", name, tenant, err)
		return apperr.Store(err)
	}
	n, err := s.store.DeleteMany(ctx, name, bson.M{document.FieldUID: tenant})
	if err != nil {
		logger.Errorf("registry: purging %s for %s failed: %v", name, tenant, err)
		return apperr.Store(err)
	}
	logger.Infow("collection deleted", "tenant", tenant, "collection", name, "purged", n)
	return nil
}
