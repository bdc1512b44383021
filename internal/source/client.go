// Package source fetches the public price page and extracts a price
// snapshot from its quotation table. Retry and fallback behavior is
// internal; callers only see the final snapshot or an error, and an
// empty snapshot counts as a failed poll.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/vnmetals/silverwatch/internal/logger"
	"github.com/vnmetals/silverwatch/internal/models"
)

// Config holds price source configuration.
type Config struct {
	URL            string
	Timeout        time.Duration
	UserAgent      string
	MaxRetries     int
	RetryDelayBase time.Duration
	ProductFilter  string
	Timezone       string
}

// Client scrapes price snapshots from the quotation page.
type Client struct {
	url            string
	httpClient     *http.Client
	userAgent      string
	maxRetries     int
	retryDelayBase time.Duration
	productFilter  string
	loc            *time.Location
}

// NewClient creates a price source client.
func NewClient(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("Unknown timezone %q, falling back to local: %v", cfg.Timezone, err)
		loc = time.Local
	}
	return &Client{
		url:            cfg.URL,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		userAgent:      cfg.UserAgent,
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
		productFilter:  cfg.ProductFilter,
		loc:            loc,
	}
}

// Fetch retrieves the price page and parses it into a snapshot. The
// snapshot may be empty when the page layout changed or no row passed
// the admission criteria; the caller treats that as a failed poll.
func (c *Client) Fetch(ctx context.Context) (models.Snapshot, error) {
	resp, err := c.doRequest(ctx)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to fetch price page: %w", err)
	}
	defer resp.Body.Close()

	snapshot, err := parseSnapshot(resp.Body, c.productFilter, time.Now().In(c.loc))
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to parse price page: %w", err)
	}
	logger.Debug("Parsed %d price record(s) from source", len(snapshot.Prices))
	return snapshot, nil
}

// doRequest performs the HTTP request with linear-backoff retries on
// network errors and server-side failures.
func (c *Client) doRequest(ctx context.Context) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return nil, err
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("unexpected status: %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// parseSnapshot extracts price records from the page's quotation
// table. Rows keep the source's shape: product, unit, buy price, sell
// price. A row is admitted only when it matches the product filter and
// carries a positive buy price; everything else is skipped, never
// stored as zero.
func parseSnapshot(r io.Reader, filter string, observedAt time.Time) (models.Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return models.Snapshot{}, err
	}

	snapshot := models.NewSnapshot(observedAt)
	upperFilter := strings.ToUpper(filter)

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		product := strings.TrimSpace(cells.Eq(0).Text())
		if upperFilter != "" && !strings.Contains(strings.ToUpper(product), upperFilter) {
			return
		}

		record := models.PriceRecord{
			ProductName: product,
			Unit:        strings.TrimSpace(cells.Eq(1).Text()),
			BuyPrice:    parsePrice(cells.Eq(2).Text()),
			SellPrice:   parsePrice(cells.Eq(3).Text()),
			ObservedAt:  observedAt,
		}
		if err := record.Validate(); err != nil {
			logger.Debug("Dropping row %q: %v", product, err)
			return
		}
		snapshot.Prices[product] = record
	})

	return snapshot, nil
}

var digitRuns = regexp.MustCompile(`\d+`)

// parsePrice converts a formatted amount like "1.234.000" to 1234000.
// Dashes, empty cells, and unparsable text yield 0.
func parsePrice(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0
	}
	runs := digitRuns.FindAllString(s, -1)
	if len(runs) == 0 {
		return 0
	}
	n, err := strconv.ParseInt(strings.Join(runs, ""), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
