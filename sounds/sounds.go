/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package sounds describes the sound catalog and where its assets live.
package sounds

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const catalogFile = "sounds.json"

var ErrInvalidBase = errors.New("invalid sounds base url")

// Entry is a single catalog item naming one sound asset.
type Entry struct {
	Sound string `json:"sound"`
}

// Locator builds asset URLs under a configurable base location.
type Locator struct {
	base string
}

// NewLocator validates base and returns a Locator rooted at it.
func NewLocator(base string) (*Locator, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBase, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBase, u.Scheme)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidBase)
	}

	return &Locator{base: strings.TrimSuffix(u.String(), "/")}, nil
}

// Base returns the normalized base, without a trailing slash.
func (l *Locator) Base() string {
	return l.base
}

// URL maps a raw relative path to a fully qualified URL.
func (l *Locator) URL(path string) string {
	return l.base + "/" + strings.TrimPrefix(path, "/")
}

// SoundURL returns the URL of the clip named by e.
func (l *Locator) SoundURL(e Entry) string {
	return l.URL("sounds/" + url.PathEscape(e.Sound))
}

// CatalogURL returns the URL of the catalog listing.
func (l *Locator) CatalogURL() string {
	return l.URL(catalogFile)
}

// Distinct returns the identifiers in catalog with duplicates and empty
// names removed, in first-seen order.
func Distinct(catalog []Entry) []string {
	seen := make(map[string]struct{}, len(catalog))
	out := make([]string, 0, len(catalog))

	for _, e := range catalog {
		if e.Sound == "" {
			continue
		}
		if _, ok := seen[e.Sound]; ok {
			continue
		}
		seen[e.Sound] = struct{}{}
		out = append(out, e.Sound)
	}

	return out
}
