package icd

import (
	"context"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/medcert/internal/logging"
	"github.com/dmitrijs2005/medcert/internal/server/config"
	"github.com/dmitrijs2005/medcert/internal/server/models"
)

// codeShapedRe marks a query as legacy-taxonomy-shaped: a letter followed
// by two digits, optionally extended with more digits or a dot-decimal
// (F84, F84.1, Z999).
var codeShapedRe = regexp.MustCompile(`^[A-Z]\d{2}(\.\d+|\d*)?$`)

const cacheFallbackLimit = 20

// DirectorySource is the legacy CID-10 directory slice the resolver needs.
type DirectorySource interface {
	MainTable(ctx context.Context) ([]DirectoryEntry, error)
	SubCodes(ctx context.Context, categoryID int) []DirectoryEntry
}

// TerminologySource is the authoritative ICD-11 lookup slice.
type TerminologySource interface {
	Search(ctx context.Context, term string, release string) ([]Entry, error)
}

// Cache is the persistent terminology cache slice.
type Cache interface {
	Upsert(ctx context.Context, entry *models.IcdCode) error
	GetByCode(ctx context.Context, code string, version string) (*models.IcdCode, error)
	SearchCached(ctx context.Context, term string, limit int) ([]*models.IcdCode, error)
}

// Resolver routes a query to the taxonomy that governs it: code-shaped
// queries go through the legacy directory (enriched against the WHO API),
// free text goes to the WHO API directly. Every successful live lookup is
// upserted into the cache, which doubles as the fallback when the external
// sources are unreachable.
type Resolver struct {
	directory DirectorySource
	who       TerminologySource
	cache     Cache
	logger    logging.Logger
	releases  []string
	preferred string
}

func NewResolver(directory DirectorySource, who TerminologySource, cache Cache, cfg *config.Config, logger logging.Logger) *Resolver {
	return &Resolver{
		directory: directory,
		who:       who,
		cache:     cache,
		logger:    logger,
		releases:  cfg.WhoReleases,
		preferred: cfg.WhoPreferredRelease,
	}
}

// Search resolves a query to a list of {code, title} entries. It never
// fails: every upstream error degrades to a fallback path, and an
// exhausted pipeline yields an empty list. Queries shorter than two
// characters return nil without any I/O.
func (r *Resolver) Search(ctx context.Context, query string, release string) []Entry {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return nil
	}

	if code := strings.ToUpper(query); codeShapedRe.MatchString(code) {
		return r.searchLegacy(ctx, code)
	}
	return r.searchFreeText(ctx, query, release)
}

// searchLegacy resolves a code-shaped query against the legacy directory.
// The base category is the first three characters; a longer query must
// match a sub-code exactly or the result is empty (no parent fallback).
func (r *Resolver) searchLegacy(ctx context.Context, code string) []Entry {
	table, err := r.directory.MainTable(ctx)
	if err != nil {
		r.logger.Warn(ctx, "legacy directory unavailable, falling back to cache", "error", err)
		if cached, cerr := r.cache.GetByCode(ctx, code, models.IcdVersion10); cerr == nil {
			return []Entry{{Code: cached.Code, Title: cached.Title}}
		}
		return r.searchCache(ctx, code)
	}

	base := code[:3]
	var category *DirectoryEntry
	for i := range table {
		if table[i].Code == base {
			category = &table[i]
			break
		}
	}
	if category == nil {
		return nil
	}

	var candidate Entry
	if code == base {
		candidate = Entry{Code: category.Code, Title: category.Description}
	} else {
		found := false
		for _, sub := range r.directory.SubCodes(ctx, category.CategoryID) {
			if sub.Code == code {
				candidate = Entry{Code: sub.Code, Title: sub.Description}
				found = true
				break
			}
		}
		if !found {
			return nil
		}
	}

	r.enrich(ctx, &candidate)
	r.upsert(ctx, candidate, models.IcdVersion10, "")
	return []Entry{candidate}
}

// enrich replaces the legacy title with the authoritative one when the WHO
// API confirms the code. Best-effort: any failure keeps the legacy title.
func (r *Resolver) enrich(ctx context.Context, candidate *Entry) {
	results, err := r.who.Search(ctx, candidate.Code, r.preferred)
	if err != nil {
		r.logger.Debug(ctx, "enrichment lookup failed", "code", candidate.Code, "error", err)
		return
	}
	for _, res := range results {
		if strings.EqualFold(res.Code, candidate.Code) {
			candidate.Title = res.Title
			return
		}
	}
}

// searchFreeText queries the WHO API, either the explicitly requested
// release or every configured one with the preferred release's entries
// first in the merged list. When every release fails, the cache substring
// search is the last resort.
func (r *Resolver) searchFreeText(ctx context.Context, query string, release string) []Entry {
	releases := r.orderedReleases(release)

	var merged []Entry
	anySucceeded := false
	for _, rel := range releases {
		results, err := r.who.Search(ctx, query, rel)
		if err != nil {
			r.logger.Warn(ctx, "terminology search failed", "release", rel, "error", err)
			continue
		}
		anySucceeded = true
		r.upsertBatch(ctx, results, rel)
		merged = append(merged, results...)
	}

	if !anySucceeded {
		return r.searchCache(ctx, query)
	}
	return merged
}

func (r *Resolver) orderedReleases(release string) []string {
	if release != "" {
		return []string{release}
	}
	ordered := make([]string, 0, len(r.releases))
	for _, rel := range r.releases {
		if rel == r.preferred {
			ordered = append([]string{rel}, ordered...)
		} else {
			ordered = append(ordered, rel)
		}
	}
	return ordered
}

// upsertBatch caches one response's entries. Duplicate codes within the
// response collapse to a single upsert (last title wins) so concurrent
// writes stay idempotent; the caller's result list is left untouched.
func (r *Resolver) upsertBatch(ctx context.Context, entries []Entry, release string) {
	seen := make(map[string]Entry, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Code]; !dup {
			order = append(order, e.Code)
		}
		seen[e.Code] = e
	}
	for _, code := range order {
		r.upsert(ctx, seen[code], models.IcdVersion11, release)
	}
}

func (r *Resolver) upsert(ctx context.Context, entry Entry, version string, release string) {
	err := r.cache.Upsert(ctx, &models.IcdCode{
		Code:    entry.Code,
		Title:   entry.Title,
		Version: version,
		Release: release,
	})
	if err != nil {
		r.logger.Warn(ctx, "terminology cache upsert failed", "code", entry.Code, "error", err)
	}
}

func (r *Resolver) searchCache(ctx context.Context, query string) []Entry {
	cached, err := r.cache.SearchCached(ctx, query, cacheFallbackLimit)
	if err != nil {
		r.logger.Warn(ctx, "terminology cache search failed", "error", err)
		return nil
	}
	entries := make([]Entry, 0, len(cached))
	for _, c := range cached {
		entries = append(entries, Entry{Code: c.Code, Title: c.Title})
	}
	return entries
}
