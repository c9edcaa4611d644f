package redis

import (
	"context"
	"time"

	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

// MoleculeCache is a typed view over the cache keyed by InChIKey, the stable
// structure identity used across the registry.
type MoleculeCache struct {
	cache *Cache
	ttl   time.Duration
}

func NewMoleculeCache(cache *Cache, ttl time.Duration) *MoleculeCache {
	return &MoleculeCache{cache: cache, ttl: ttl}
}

func (mc *MoleculeCache) Get(ctx context.Context, inchiKey string) (*mtypes.MoleculeDTO, error) {
	var dto mtypes.MoleculeDTO
	if err := mc.cache.Get(ctx, mc.key(inchiKey), &dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

func (mc *MoleculeCache) Put(ctx context.Context, dto *mtypes.MoleculeDTO) error {
	return mc.cache.Set(ctx, mc.key(dto.InChIKey), dto, mc.ttl)
}

// GetOrLoad resolves a molecule through the cache. The loader may return
// (nil, nil) for an unknown InChIKey, which is cached as a short-lived miss.
func (mc *MoleculeCache) GetOrLoad(ctx context.Context, inchiKey string, loader func(ctx context.Context) (*mtypes.MoleculeDTO, error)) (*mtypes.MoleculeDTO, error) {
	var dto mtypes.MoleculeDTO
	err := mc.cache.GetOrLoad(ctx, mc.key(inchiKey), &dto, mc.ttl, func(ctx context.Context) (interface{}, error) {
		loaded, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if loaded == nil {
			return nil, nil
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return &dto, nil
}

func (mc *MoleculeCache) Invalidate(ctx context.Context, inchiKey string) error {
	return mc.cache.Delete(ctx, mc.key(inchiKey))
}

func (mc *MoleculeCache) key(inchiKey string) string {
	return "molecule:" + inchiKey
}
