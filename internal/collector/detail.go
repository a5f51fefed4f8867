package collector

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	// NoCVEFound is stored when a detail page references no CVE.
	NoCVEFound = "No CVE information"
	// DetailFetchFailed is stored when the detail page could not be retrieved.
	DetailFetchFailed = "Detail lookup failed"

	DefaultDetailTimeout = 15 * time.Second
)

var (
	cveHrefRe = regexp.MustCompile(`(?i)/(CVE-\d{4}-\d{4,})(?:[/?#]|$)`)
	cveTextRe = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)
)

type DetailFetcher struct {
	client *http.Client
	logger *zap.Logger
}

func NewDetailFetcher(timeout time.Duration, logger *zap.Logger) *DetailFetcher {
	if timeout <= 0 {
		timeout = DefaultDetailTimeout
	}
	return NewDetailFetcherWithClient(&http.Client{Timeout: timeout}, logger)
}

func NewDetailFetcherWithClient(client *http.Client, logger *zap.Logger) *DetailFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailFetcher{client: client, logger: logger}
}

// Fetch returns the sorted, comma-joined CVE ids of the page, NoCVEFound, or
// DetailFetchFailed when the page cannot be retrieved.
func (d *DetailFetcher) Fetch(ctx context.Context, detailURL string) string {
	doc, err := d.get(ctx, detailURL)
	if err != nil {
		d.logger.Warn("detail page unavailable", zap.String("url", detailURL), zap.Error(err))
		return DetailFetchFailed
	}
	ids := ExtractCVEs(doc)
	if len(ids) == 0 {
		return NoCVEFound
	}
	return strings.Join(ids, ", ")
}

func (d *DetailFetcher) get(ctx context.Context, detailURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, detailURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// 优先 section#cves，没有就扫整页
func ExtractCVEs(doc *goquery.Document) []string {
	scope := doc.Find("section#cves")
	if scope.Length() == 0 {
		scope = doc.Selection
	}
	seen := map[string]struct{}{}
	scope.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := cveHrefRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := strings.TrimSpace(a.Text())
		if !cveTextRe.MatchString(id) {
			id = strings.ToUpper(m[1])
		}
		seen[id] = struct{}{}
	})
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
