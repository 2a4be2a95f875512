package tle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://celestrak.org/NORAD/elements/gp.php"

// maxBodyBytes bounds a single TLE response. A valid element set is a few
// hundred bytes; anything near this limit is a misbehaving upstream.
const maxBodyBytes = 1 << 20

// Fetcher retrieves a single satellite's element set from a Celestrak-style
// GP endpoint (?CATNR=<id>&FORMAT=TLE).
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given base URL. An empty baseURL
// selects the Celestrak GP endpoint. timeout bounds each request.
func NewFetcher(baseURL string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Fetcher{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch retrieves and parses the element set for one catalog number.
// Network failures, non-200 responses, and "No GP data found" bodies all
// surface as ErrUnavailable so the caller can skip the satellite this tick.
func (f *Fetcher) Fetch(ctx context.Context, catalogID int) (Elements, error) {
	u := fmt.Sprintf("%s?CATNR=%s&FORMAT=TLE", f.baseURL, url.QueryEscape(strconv.Itoa(catalogID)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Elements{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Warn("TLE fetch failed", "catalog_id", catalogID, "error", err)
		return Elements{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("TLE fetch bad status", "catalog_id", catalogID, "status", resp.StatusCode)
		return Elements{}, fmt.Errorf("%w: status %d from %s", ErrUnavailable, resp.StatusCode, f.baseURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return Elements{}, fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
	}
	if len(body) > maxBodyBytes {
		return Elements{}, fmt.Errorf("response exceeds %d byte limit", maxBodyBytes)
	}

	// Celestrak answers 200 with a prose body when the catalog id is unknown.
	if strings.Contains(string(body), "No GP data found") {
		return Elements{}, fmt.Errorf("%w: no GP data for catalog %d", ErrUnavailable, catalogID)
	}

	entry, err := ParseEntry(strings.NewReader(string(body)))
	if err != nil {
		return Elements{}, fmt.Errorf("%w: parsing response: %v", ErrUnavailable, err)
	}
	if entry.CatalogID != catalogID {
		return Elements{}, fmt.Errorf("%w: requested catalog %d, got %d", ErrUnavailable, catalogID, entry.CatalogID)
	}

	return entry, nil
}
