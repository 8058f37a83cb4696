package icd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/medcert/internal/logging"
)

const (
	whoHTTPTimeout = 10 * time.Second

	// a cached token is treated as expired this long before it actually is,
	// so a request never goes out with a token about to lapse mid-flight
	tokenExpiryMargin = 5 * time.Minute
)

var emTagRe = regexp.MustCompile(`</?em[^>]*>`)

// WhoClient queries the WHO ICD-11 API using the OAuth2 client-credentials
// grant. The access token is cached in memory; concurrent refreshes are
// tolerated (last writer wins, both tokens are valid).
type WhoClient struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	client       *http.Client
	logger       logging.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	now         func() time.Time
}

func NewWhoClient(baseURL, tokenURL, clientID, clientSecret string, logger logging.Logger) *WhoClient {
	return &WhoClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: whoHTTPTimeout},
		logger:       logger,
		now:          time.Now,
	}
}

// Search queries the release-scoped flat search endpoint and maps the
// upstream entities into Entry values. A 401 invalidates the cached token
// and the call is retried exactly once with a fresh one; any other failure,
// or a second 401, is returned to the caller.
func (c *WhoClient) Search(ctx context.Context, term string, release string) ([]Entry, error) {
	entries, status, err := c.doSearch(ctx, term, release)
	if err == nil && status == http.StatusUnauthorized {
		c.invalidateToken()
		entries, status, err = c.doSearch(ctx, term, release)
	}
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("who search: unexpected status %d", status)
	}
	return entries, nil
}

func (c *WhoClient) doSearch(ctx context.Context, term string, release string) ([]Entry, int, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("who token: %w", err)
	}

	searchURL := fmt.Sprintf("%s/release/11/%s/mms/search?flatResults=true&useFlexisearch=true&q=%s",
		c.baseURL, release, url.QueryEscape(term))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en")
	req.Header.Set("API-Version", "v2")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	var body struct {
		DestinationEntities []map[string]any `json:"destinationEntities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, 0, fmt.Errorf("who search: decode: %w", err)
	}

	entries := make([]Entry, 0, len(body.DestinationEntities))
	for _, entity := range body.DestinationEntities {
		if entry, ok := mapEntity(entity); ok {
			entries = append(entries, entry)
		}
	}
	return entries, http.StatusOK, nil
}

// mapEntity extracts {code, title} from one upstream entity, tolerating the
// schema variants the API is known to emit. Field priority: "theCode" then
// "code" for the code; "title" as a plain string, then title["@value"].
// Entities missing either field are dropped.
func mapEntity(entity map[string]any) (Entry, bool) {
	var code string
	if v, ok := entity["theCode"].(string); ok && v != "" {
		code = v
	} else if v, ok := entity["code"].(string); ok && v != "" {
		code = v
	}

	var title string
	switch v := entity["title"].(type) {
	case string:
		title = v
	case map[string]any:
		if s, ok := v["@value"].(string); ok {
			title = s
		}
	}
	title = strings.TrimSpace(emTagRe.ReplaceAllString(title, ""))

	if code == "" || title == "" {
		return Entry{}, false
	}
	return Entry{Code: code, Title: title}, true
}

func (c *WhoClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

// accessToken returns the cached token while it has more than the safety
// margin left, otherwise fetches a fresh one from the token endpoint.
func (c *WhoClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.tokenExpiry.Add(-tokenExpiryMargin).After(c.now()) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "icdapi_access")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("token decode: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty token")
	}

	c.token = body.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return c.token, nil
}
