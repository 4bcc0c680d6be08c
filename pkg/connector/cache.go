// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/aiku/mx-puppet-steam/pkg/steamapi"
)

// MetadataCache memoizes persona and product lookups for one session. It
// lives exactly as long as its owning session and never evicts. Concurrent
// callers for the same missing key share a single upstream fetch.
type MetadataCache struct {
	client steamapi.Client

	mu       sync.RWMutex
	personas map[steamapi.SteamID]*steamapi.Persona
	products map[uint32]*steamapi.ProductInfo

	sf singleflight.Group
}

// NewMetadataCache creates an empty cache backed by the given client.
func NewMetadataCache(client steamapi.Client) *MetadataCache {
	return &MetadataCache{
		client:   client,
		personas: make(map[steamapi.SteamID]*steamapi.Persona),
		products: make(map[uint32]*steamapi.ProductInfo),
	}
}

// PushPersona stores an unsolicited persona snapshot pushed by the network.
// Pushed snapshots are preferred over explicit fetches and overwrite any
// cached value; freshness is best effort.
func (mc *MetadataCache) PushPersona(id steamapi.SteamID, persona *steamapi.Persona) {
	if persona == nil {
		return
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.personas[id] = persona
}

// GetPersona returns the cached persona for the given user, issuing one
// batched upstream lookup on miss.
func (mc *MetadataCache) GetPersona(ctx context.Context, id steamapi.SteamID) (*steamapi.Persona, error) {
	mc.mu.RLock()
	persona, ok := mc.personas[id]
	mc.mu.RUnlock()
	if ok {
		return persona, nil
	}

	v, err, _ := mc.sf.Do("persona:"+id.String(), func() (any, error) {
		// A push may have landed while we waited on the flight group.
		mc.mu.RLock()
		cached, ok := mc.personas[id]
		mc.mu.RUnlock()
		if ok {
			return cached, nil
		}
		personas, err := mc.client.GetPersonas(ctx, []steamapi.SteamID{id})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch persona %s: %w", id, err)
		}
		fetched, ok := personas[id]
		if !ok || fetched == nil {
			return nil, fmt.Errorf("no persona returned for %s", id)
		}
		mc.mu.Lock()
		mc.personas[id] = fetched
		mc.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*steamapi.Persona), nil
}

// GetProduct returns the cached product info for the given app id, issuing
// one batched upstream lookup on miss. Product info is immutable for the
// session's lifetime once fetched.
func (mc *MetadataCache) GetProduct(ctx context.Context, appID uint32) (*steamapi.ProductInfo, error) {
	mc.mu.RLock()
	product, ok := mc.products[appID]
	mc.mu.RUnlock()
	if ok {
		return product, nil
	}

	key := "app:" + strconv.FormatUint(uint64(appID), 10)
	v, err, _ := mc.sf.Do(key, func() (any, error) {
		mc.mu.RLock()
		cached, ok := mc.products[appID]
		mc.mu.RUnlock()
		if ok {
			return cached, nil
		}
		products, err := mc.client.GetProductInfo(ctx, []uint32{appID})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch product info for app %d: %w", appID, err)
		}
		fetched, ok := products[appID]
		if !ok || fetched == nil {
			return nil, fmt.Errorf("no product info returned for app %d", appID)
		}
		mc.mu.Lock()
		mc.products[appID] = fetched
		mc.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*steamapi.ProductInfo), nil
}
