package icd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/medcert/internal/common"
	"github.com/dmitrijs2005/medcert/internal/server/config"
	"github.com/dmitrijs2005/medcert/internal/server/models"
)

type fakeDirectory struct {
	mainCalls int
	subCalls  int
	table     []DirectoryEntry
	tableErr  error
	subCodes  map[int][]DirectoryEntry
}

func (f *fakeDirectory) MainTable(ctx context.Context) ([]DirectoryEntry, error) {
	f.mainCalls++
	return f.table, f.tableErr
}

func (f *fakeDirectory) SubCodes(ctx context.Context, categoryID int) []DirectoryEntry {
	f.subCalls++
	return f.subCodes[categoryID]
}

type fakeTerminology struct {
	calls   []string // "term@release"
	results map[string][]Entry
	err     error
}

func (f *fakeTerminology) Search(ctx context.Context, term string, release string) ([]Entry, error) {
	f.calls = append(f.calls, term+"@"+release)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[term+"@"+release], nil
}

type fakeCache struct {
	upserts   []models.IcdCode
	cached    []*models.IcdCode
	byCode    map[string]*models.IcdCode
	searchErr error
	searches  int
}

func (f *fakeCache) Upsert(ctx context.Context, entry *models.IcdCode) error {
	f.upserts = append(f.upserts, *entry)
	return nil
}

func (f *fakeCache) GetByCode(ctx context.Context, code string, version string) (*models.IcdCode, error) {
	if e, ok := f.byCode[code+"/"+version]; ok {
		return e, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeCache) SearchCached(ctx context.Context, term string, limit int) ([]*models.IcdCode, error) {
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.cached, nil
}

func f84Directory() *fakeDirectory {
	return &fakeDirectory{
		table: []DirectoryEntry{
			{Code: "F84", Description: "Transtornos globais do desenvolvimento", CategoryID: 123},
			{Code: "A00", Description: "Cólera", CategoryID: 7},
		},
		subCodes: map[int][]DirectoryEntry{
			123: {
				{Code: "F84.0", Description: "Autismo infantil"},
				{Code: "F84.1", Description: "Autismo atípico"},
			},
		},
	}
}

func newResolver(dir DirectorySource, who TerminologySource, cache Cache) *Resolver {
	cfg := &config.Config{
		WhoReleases:         []string{"2023-01", "2024-01"},
		WhoPreferredRelease: "2024-01",
	}
	return NewResolver(dir, who, cache, cfg, testLogger())
}

func TestResolver_BaseCodeQuery(t *testing.T) {
	dir := f84Directory()
	who := &fakeTerminology{err: errors.New("unreachable")}
	cache := &fakeCache{}
	r := newResolver(dir, who, cache)

	got := r.Search(context.Background(), "F84", "")

	want := []Entry{{Code: "F84", Title: "Transtornos globais do desenvolvimento"}}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if dir.subCalls != 0 {
		t.Fatalf("sub-code fetch called %d times for a base-code query", dir.subCalls)
	}
	if len(cache.upserts) != 1 || cache.upserts[0].Version != models.IcdVersion10 {
		t.Fatalf("upserts = %+v, want one version-10 entry", cache.upserts)
	}
}

func TestResolver_SubCodeExactMatch(t *testing.T) {
	dir := f84Directory()
	who := &fakeTerminology{err: errors.New("unreachable")}
	r := newResolver(dir, who, &fakeCache{})

	got := r.Search(context.Background(), "f84.1", "")

	want := []Entry{{Code: "F84.1", Title: "Autismo atípico"}}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestResolver_SubCodeNoExactMatchReturnsEmpty(t *testing.T) {
	dir := f84Directory()
	who := &fakeTerminology{err: errors.New("unreachable")}
	r := newResolver(dir, who, &fakeCache{})

	if got := r.Search(context.Background(), "F84.9", ""); len(got) != 0 {
		t.Fatalf("expected empty result for unmatched sub-code, got %+v", got)
	}
}

func TestResolver_UnknownBaseCodeReturnsEmpty(t *testing.T) {
	dir := f84Directory()
	who := &fakeTerminology{err: errors.New("unreachable")}
	r := newResolver(dir, who, &fakeCache{})

	if got := r.Search(context.Background(), "Q99", ""); len(got) != 0 {
		t.Fatalf("expected empty result for unknown base code, got %+v", got)
	}
}

func TestResolver_EnrichmentPrefersAuthoritativeTitle(t *testing.T) {
	dir := f84Directory()
	who := &fakeTerminology{results: map[string][]Entry{
		"F84@2024-01": {{Code: "F84", Title: "Pervasive developmental disorders"}},
	}}
	r := newResolver(dir, who, &fakeCache{})

	got := r.Search(context.Background(), "F84", "")
	if len(got) != 1 || got[0].Title != "Pervasive developmental disorders" {
		t.Fatalf("got %+v, want enriched title", got)
	}
}

func TestResolver_EnrichmentFailureKeepsLegacyTitle(t *testing.T) {
	dir := f84Directory()
	who := &fakeTerminology{err: errors.New("who is down")}
	r := newResolver(dir, who, &fakeCache{})

	got := r.Search(context.Background(), "F84", "")
	if len(got) != 1 || got[0].Title != "Transtornos globais do desenvolvimento" {
		t.Fatalf("got %+v, want legacy title kept", got)
	}
}

func TestResolver_FreeTextNeverCallsDirectory(t *testing.T) {
	dir := f84Directory()
	who := &fakeTerminology{results: map[string][]Entry{}}
	r := newResolver(dir, who, &fakeCache{})

	r.Search(context.Background(), "autism", "")

	if dir.mainCalls != 0 || dir.subCalls != 0 {
		t.Fatalf("directory called for a free-text query: main=%d sub=%d", dir.mainCalls, dir.subCalls)
	}
	if len(who.calls) == 0 {
		t.Fatal("terminology client not called for a free-text query")
	}
}

func TestResolver_FreeTextPreferredReleaseFirst(t *testing.T) {
	who := &fakeTerminology{results: map[string][]Entry{
		"autism@2023-01": {{Code: "OLD1", Title: "old release hit"}},
		"autism@2024-01": {{Code: "NEW1", Title: "preferred release hit"}},
	}}
	r := newResolver(f84Directory(), who, &fakeCache{})

	got := r.Search(context.Background(), "autism", "")
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(got), got)
	}
	if got[0].Code != "NEW1" || got[1].Code != "OLD1" {
		t.Fatalf("merge order = %+v, want preferred release first", got)
	}
}

func TestResolver_ExplicitReleaseLimitsSearch(t *testing.T) {
	who := &fakeTerminology{results: map[string][]Entry{}}
	r := newResolver(f84Directory(), who, &fakeCache{})

	r.Search(context.Background(), "autism", "2023-01")

	if len(who.calls) != 1 || who.calls[0] != "autism@2023-01" {
		t.Fatalf("calls = %v, want single call to the requested release", who.calls)
	}
}

func TestResolver_DuplicateCodesSingleUpsertLastTitleWins(t *testing.T) {
	who := &fakeTerminology{results: map[string][]Entry{
		"cholera@2024-01": {
			{Code: "A00", Title: "Cholera"},
			{Code: "A00", Title: "Cholera variation"},
		},
	}}
	cache := &fakeCache{}
	r := newResolver(f84Directory(), who, cache)

	got := r.Search(context.Background(), "cholera", "2024-01")

	if len(got) != 2 {
		t.Fatalf("returned list should keep upstream duplicates, got %+v", got)
	}
	if len(cache.upserts) != 1 {
		t.Fatalf("got %d upserts, want 1 (de-duplicated by code)", len(cache.upserts))
	}
	if cache.upserts[0].Title != "Cholera variation" {
		t.Fatalf("upserted title = %q, want last-write-wins", cache.upserts[0].Title)
	}
	if cache.upserts[0].Version != models.IcdVersion11 || cache.upserts[0].Release != "2024-01" {
		t.Fatalf("upsert tags = %+v", cache.upserts[0])
	}
}

func TestResolver_FreeTextFailureFallsBackToCache(t *testing.T) {
	who := &fakeTerminology{err: errors.New("network down")}
	cache := &fakeCache{cached: []*models.IcdCode{
		{Code: "6A02", Title: "Autism spectrum disorder", Version: models.IcdVersion11},
	}}
	r := newResolver(f84Directory(), who, cache)

	got := r.Search(context.Background(), "autism", "")

	if len(got) != 1 || got[0].Code != "6A02" {
		t.Fatalf("got %+v, want cached entry", got)
	}
	if cache.searches != 1 {
		t.Fatalf("cache searched %d times, want 1", cache.searches)
	}
}

func TestResolver_EverythingDownYieldsEmptyNotError(t *testing.T) {
	who := &fakeTerminology{err: errors.New("network down")}
	cache := &fakeCache{searchErr: errors.New("db down")}
	r := newResolver(f84Directory(), who, cache)

	if got := r.Search(context.Background(), "autism", ""); len(got) != 0 {
		t.Fatalf("got %+v, want empty result with every fallback exhausted", got)
	}
}

func TestResolver_DirectoryFailureFallsBackToCache(t *testing.T) {
	dir := &fakeDirectory{tableErr: errors.New("scrape failed")}
	cache := &fakeCache{cached: []*models.IcdCode{
		{Code: "F84", Title: "Transtornos globais do desenvolvimento", Version: models.IcdVersion10},
	}}
	r := newResolver(dir, &fakeTerminology{}, cache)

	got := r.Search(context.Background(), "F84", "")
	if len(got) != 1 || got[0].Code != "F84" {
		t.Fatalf("got %+v, want cache fallback entry", got)
	}
}

func TestResolver_DirectoryFailureExactCacheHitWins(t *testing.T) {
	dir := &fakeDirectory{tableErr: errors.New("scrape failed")}
	cache := &fakeCache{byCode: map[string]*models.IcdCode{
		"F84.1/" + models.IcdVersion10: {Code: "F84.1", Title: "Autismo atípico"},
	}}
	r := newResolver(dir, &fakeTerminology{}, cache)

	got := r.Search(context.Background(), "F84.1", "")
	if len(got) != 1 || got[0].Title != "Autismo atípico" {
		t.Fatalf("got %+v, want exact cached entry", got)
	}
	if cache.searches != 0 {
		t.Fatalf("substring search ran %d times despite an exact hit", cache.searches)
	}
}

func TestResolver_ShortQueriesDoNoIO(t *testing.T) {
	dir := f84Directory()
	who := &fakeTerminology{}
	cache := &fakeCache{}
	r := newResolver(dir, who, cache)
	ctx := context.Background()

	for _, q := range []string{"", " ", "a", "  F  "} {
		if got := r.Search(ctx, q, ""); got != nil {
			t.Errorf("query %q: got %+v, want nil", q, got)
		}
	}
	if dir.mainCalls != 0 || len(who.calls) != 0 || cache.searches != 0 {
		t.Fatalf("short queries caused I/O: main=%d who=%d cache=%d",
			dir.mainCalls, len(who.calls), cache.searches)
	}
}

func TestResolver_CodeClassification(t *testing.T) {
	cases := []struct {
		query string
		code  bool
	}{
		{"F84", true},
		{"f84.1", true},
		{"Z99.9", true},
		{"A001", true},
		{"autism", false},
		{"F8", false},
		{"84F", false},
		{"dor nas costas", false},
	}
	for _, tc := range cases {
		got := codeShapedRe.MatchString(strings.ToUpper(tc.query))
		if got != tc.code {
			t.Errorf("classify(%q) = %v, want %v", tc.query, got, tc.code)
		}
	}
}
