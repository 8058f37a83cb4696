// Package icd implements the code resolution pipeline: a scraper for the
// legacy CID-10 HTML directory, an OAuth2-backed client for the WHO ICD-11
// API, and the resolver that routes queries between them and maintains the
// local terminology cache.
package icd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/dmitrijs2005/medcert/internal/logging"
)

// Entry is the canonical result shape returned to API callers.
type Entry struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// DirectoryEntry is one row of the legacy directory: a category from the
// main table (CategoryID set) or a sub-code (CategoryID zero).
type DirectoryEntry struct {
	Code        string
	Description string
	CategoryID  int
}

const (
	directoryHTTPTimeout = 10 * time.Second
	mainTableTTL         = 24 * time.Hour
)

var categoryIDRe = regexp.MustCompile(`carregarConteudoCid10\((\d+)\)`)

// DirectoryClient scrapes the legacy tabular CID-10 directory. The main
// category table is cached in-process for 24 hours; sub-code fetches go to
// the source every time.
type DirectoryClient struct {
	baseURL string
	client  *http.Client
	logger  logging.Logger

	mu        sync.Mutex
	snapshot  []DirectoryEntry
	fetchedAt time.Time
	now       func() time.Time
}

func NewDirectoryClient(baseURL string, logger logging.Logger) *DirectoryClient {
	return &DirectoryClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: directoryHTTPTimeout},
		logger:  logger,
		now:     time.Now,
	}
}

// MainTable returns the category table, refreshing the in-process snapshot
// when it is older than 24 hours. On fetch failure the last good snapshot
// is returned if one exists; only a cold-start failure surfaces an error.
func (c *DirectoryClient) MainTable(ctx context.Context) ([]DirectoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot != nil && c.now().Sub(c.fetchedAt) < mainTableTTL {
		return c.snapshot, nil
	}

	entries, err := c.fetchMainTable(ctx)
	if err != nil {
		if c.snapshot != nil {
			c.logger.Warn(ctx, "directory refresh failed, serving stale snapshot", "error", err)
			return c.snapshot, nil
		}
		return nil, fmt.Errorf("directory main table: %w", err)
	}

	c.snapshot = entries
	c.fetchedAt = c.now()
	return c.snapshot, nil
}

// SubCodes fetches the sub-code table for a category. It never fails:
// network or parse errors are logged and yield nil.
func (c *DirectoryClient) SubCodes(ctx context.Context, categoryID int) []DirectoryEntry {
	form := url.Values{}
	form.Set("acao", "carregarConteudoCid10")
	form.Set("categoria_id", strconv.Itoa(categoryID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		c.logger.Warn(ctx, "directory sub-code request failed", "category_id", categoryID, "error", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn(ctx, "directory sub-code request failed", "category_id", categoryID, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn(ctx, "directory sub-code request failed", "category_id", categoryID, "status", resp.StatusCode)
		return nil
	}

	entries, err := parseDirectoryRows(resp.Body, 2)
	if err != nil {
		c.logger.Warn(ctx, "directory sub-code parse failed", "category_id", categoryID, "error", err)
		return nil
	}
	return entries
}

func (c *DirectoryClient) fetchMainTable(ctx context.Context) ([]DirectoryEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return parseDirectoryRows(resp.Body, 3)
}

// parseDirectoryRows walks every <tr> in the document and emits an entry
// for each row with at least minCells <td> children: cell 0 is the code,
// cell 1 the description. When a later cell carries the category control
// (onclick="carregarConteudoCid10(N)"), N becomes the CategoryID.
func parseDirectoryRows(r io.Reader, minCells int) ([]DirectoryEntry, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var entries []DirectoryEntry
	for _, row := range findElements(doc, "tr") {
		cells := findElements(row, "td")
		if len(cells) < minCells {
			continue
		}
		code := strings.ToUpper(strings.TrimSpace(nodeText(cells[0])))
		desc := strings.TrimSpace(nodeText(cells[1]))
		if code == "" || desc == "" {
			continue
		}
		entries = append(entries, DirectoryEntry{
			Code:        code,
			Description: desc,
			CategoryID:  rowCategoryID(row),
		})
	}
	return entries, nil
}

func rowCategoryID(row *html.Node) int {
	for _, n := range findElements(row, "button") {
		for _, attr := range n.Attr {
			if attr.Key != "onclick" {
				continue
			}
			if m := categoryIDRe.FindStringSubmatch(attr.Val); m != nil {
				id, err := strconv.Atoi(m[1])
				if err == nil {
					return id
				}
			}
		}
	}
	return 0
}

func findElements(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == tag {
			out = append(out, node)
			// rows and cells do not nest, no need to descend further
			if tag == "tr" || tag == "td" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return out
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}
