/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sounds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	catalogKey      = "catalog"
	maxCatalogBytes = 8 << 20
)

var ErrCatalogUnavailable = errors.New("sound catalog unavailable")

// Client fetches the catalog from a Locator and caches the parsed result.
type Client struct {
	locator *Locator
	http    *http.Client
	cache   *cache.Cache
	group   singleflight.Group
}

// NewClient returns a Client that keeps a fetched catalog for ttl. A ttl of
// zero or less disables caching.
func NewClient(locator *Locator, httpClient *http.Client, ttl time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	c := &Client{
		locator: locator,
		http:    httpClient,
	}

	if ttl > 0 {
		c.cache = cache.New(ttl, 2*ttl)
	}

	return c
}

// Locator returns the Locator the client fetches from.
func (c *Client) Locator() *Locator {
	return c.locator
}

// Catalog returns the current catalog, fetching it if the cached copy has
// expired. Callers must not modify the returned slice.
func (c *Client) Catalog(ctx context.Context) ([]Entry, error) {
	if c.cache != nil {
		if v, found := c.cache.Get(catalogKey); found {
			return v.([]Entry), nil
		}
	}

	// The shared fetch outlives any single caller; each caller stops
	// waiting on its own ctx.
	ch := c.group.DoChan(catalogKey, func() (any, error) {
		entries, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		if c.cache != nil {
			c.cache.SetDefault(catalogKey, entries)
		}

		return entries, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		return res.Val.([]Entry), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, context.Cause(ctx))
	}
}

// Invalidate drops the cached catalog.
func (c *Client) Invalidate() {
	if c.cache != nil {
		c.cache.Delete(catalogKey)
	}
}

func (c *Client) fetch(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.locator.CatalogURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrCatalogUnavailable, req.URL, resp.Status)
	}

	var entries []Entry
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCatalogBytes)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrCatalogUnavailable, req.URL, err)
	}

	return entries, nil
}
