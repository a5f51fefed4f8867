package collector

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL   = "https://access.redhat.com"
	DefaultDebugFile = "debug_page.html"
	searchPath       = "/errata-search/"
	userAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	minCells         = 5
)

func SearchURL(base string, scope Scope) (string, error) {
	scope = scope.withDefaults()
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + searchPath)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	params := url.Values{}
	params.Set("q", "")
	params.Set("p", "1")
	params.Set("sort", "portal_update_date desc")
	params.Set("rows", strconv.Itoa(scope.Rows))
	params.Set("portal_publication_date", strconv.Itoa(scope.Year))
	// the search backend expects Solr-escaped spaces
	params.Set("portal_product", strings.ReplaceAll(scope.Product, " ", `\ `))
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// rowsFromHTML validates a fetched listing page and parses its rows. The page
// is dumped to debugFile when it cannot be used.
func rowsFromHTML(html string, loc *url.URL, debugFile string, logger *zap.Logger) ([]Row, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		dumpPage(debugFile, html, logger)
		return nil, fmt.Errorf("parse listing html: %w", err)
	}
	if err := checkAccess(loc, doc); err != nil {
		dumpPage(debugFile, html, logger)
		return nil, err
	}
	trs := doc.Find("table.rh-table > tbody > tr")
	if trs.Length() == 0 {
		dumpPage(debugFile, html, logger)
		return nil, ErrEmptyListing
	}
	rows := parseRows(trs, loc, logger)
	logger.Info("listing parsed", zap.Int("table_rows", trs.Length()), zap.Int("rows", len(rows)))
	return rows, nil
}

func parseRows(trs *goquery.Selection, loc *url.URL, logger *zap.Logger) []Row {
	var rows []Row
	trs.Each(func(i int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < minCells {
			logger.Debug("skipping short listing row", zap.Int("index", i), zap.Int("cells", cells.Length()))
			return
		}
		link := cells.Eq(0).Find("a").First()
		id := strings.TrimSpace(link.Text())
		href, ok := link.Attr("href")
		if link.Length() == 0 || id == "" || !ok || strings.TrimSpace(href) == "" {
			logger.Debug("skipping listing row without advisory link", zap.Int("index", i))
			return
		}
		detail, err := resolve(loc, strings.TrimSpace(href))
		if err != nil {
			logger.Warn("skipping listing row with bad link", zap.String("errata_id", id), zap.String("href", href), zap.Error(err))
			return
		}
		rows = append(rows, Row{
			ID:               id,
			Synopsis:         cellText(cells.Eq(1)),
			IssueDate:        cellText(cells.Eq(2)),
			Severity:         cellText(cells.Eq(3)),
			AffectedProducts: cellText(cells.Eq(4)),
			DetailURL:        detail,
		})
	})
	return rows
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func resolve(loc *url.URL, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if loc == nil {
		loc, _ = url.Parse(DefaultBaseURL)
	}
	return loc.ResolveReference(ref).String(), nil
}

func checkAccess(loc *url.URL, doc *goquery.Document) error {
	if loc != nil {
		host := strings.ToLower(loc.Hostname())
		path := strings.ToLower(loc.Path)
		if strings.HasPrefix(host, "sso.") || strings.Contains(path, "/login") || strings.Contains(path, "/auth/realms/") {
			return fmt.Errorf("%w: redirected to %s", ErrAccessDenied, loc.Redacted())
		}
	}
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	if strings.Contains(title, "access denied") || strings.HasPrefix(title, "log in") {
		return fmt.Errorf("%w: page title %q", ErrAccessDenied, title)
	}
	return nil
}

func dumpPage(path, html string, logger *zap.Logger) {
	if path == "" {
		return
	}
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		logger.Warn("cannot write debug page", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Warn("listing page saved for inspection", zap.String("path", path))
}
