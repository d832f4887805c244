package catalog

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/domain/repository"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uploadstore_catalog_cache_hits_total",
		Help: "Catalog lookups served from the in-memory cache.",
	}, []string{"lookup"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uploadstore_catalog_cache_misses_total",
		Help: "Catalog lookups that went to the backing store.",
	}, []string{"lookup"})
)

// CachedCatalog puts an expiring LRU in front of a FileCatalog. Records
// never change once inserted, so positive lookups by id and by digest can
// be cached without invalidation. Misses are never cached.
type CachedCatalog struct {
	repository.FileCatalog

	byID     *expirable.LRU[string, *entities.FileRecord]
	byDigest *expirable.LRU[string, *entities.FileRecord]
}

var _ repository.FileCatalog = (*CachedCatalog)(nil)

// NewCachedCatalog wraps next with caches of at most size entries each
func NewCachedCatalog(next repository.FileCatalog, size int, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		FileCatalog: next,
		byID:        expirable.NewLRU[string, *entities.FileRecord](size, nil, ttl),
		byDigest:    expirable.NewLRU[string, *entities.FileRecord](size, nil, ttl),
	}
}

// Get returns the record with the given id
func (c *CachedCatalog) Get(ctx context.Context, id string) (*entities.FileRecord, error) {
	if rec, ok := c.byID.Get(id); ok {
		cacheHitsTotal.WithLabelValues("id").Inc()
		return cloneRecord(rec), nil
	}
	cacheMissesTotal.WithLabelValues("id").Inc()

	rec, err := c.FileCatalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.remember(rec)
	return cloneRecord(rec), nil
}

// FindByDigest returns the record owning digest
func (c *CachedCatalog) FindByDigest(ctx context.Context, digest string) (*entities.FileRecord, error) {
	if rec, ok := c.byDigest.Get(digest); ok {
		cacheHitsTotal.WithLabelValues("digest").Inc()
		return cloneRecord(rec), nil
	}
	cacheMissesTotal.WithLabelValues("digest").Inc()

	rec, err := c.FileCatalog.FindByDigest(ctx, digest)
	if err != nil {
		return nil, err
	}
	c.remember(rec)
	return cloneRecord(rec), nil
}

// InsertIfDigestAbsent forwards to the backing store and caches the
// resulting record, whether it was inserted or already present
func (c *CachedCatalog) InsertIfDigestAbsent(ctx context.Context, rec *entities.FileRecord) (entities.InsertResult, error) {
	res, err := c.FileCatalog.InsertIfDigestAbsent(ctx, rec)
	if err != nil {
		return res, err
	}
	c.remember(res.Record)
	return res, nil
}

func (c *CachedCatalog) remember(rec *entities.FileRecord) {
	if rec == nil {
		return
	}
	stored := cloneRecord(rec)
	c.byID.Add(stored.ID, stored)
	c.byDigest.Add(stored.Digest, stored)
}

func cloneRecord(rec *entities.FileRecord) *entities.FileRecord {
	cp := *rec
	return &cp
}
