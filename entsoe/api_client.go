// Package entsoe downloads actual generation from the ENTSO-E
// transparency platform REST API.
package entsoe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/devskill-org/gridplan/timeseries"
	"github.com/devskill-org/gridplan/utils"
)

// DefaultBaseURL is the REST endpoint of the transparency platform.
const DefaultBaseURL = "https://web-api.tp.entsoe.eu/api"

// biddingZones maps country codes to the EIC code of their control or
// bidding area.
var biddingZones = map[string]string{
	"AT": "10YAT-APG------L",
	"CH": "10YCH-SWISSGRIDZ",
	"DE": "10Y1001A1001A83F",
	"DK": "10Y1001A1001A65H",
	"ES": "10YES-REE------0",
	"FI": "10YFI-1--------U",
	"FR": "10YFR-RTE------C",
	"IT": "10YIT-GRTN-----B",
	"NO": "10YNO-0--------C",
	"PT": "10YPT-REN------W",
	"SE": "10YSE-1--------K",
}

// BiddingZone returns the EIC area code of a country.
func BiddingZone(country string) (string, error) {
	code, ok := biddingZones[strings.ToUpper(country)]
	if !ok {
		return "", fmt.Errorf("no bidding zone known for country %q", country)
	}
	return code, nil
}

// APIClient represents an HTTP client for the ENTSO-E API
type APIClient struct {
	httpClient    *http.Client
	userAgent     string
	baseURL       string
	securityToken string
}

// NewAPIClient creates a client authenticating with securityToken.
func NewAPIClient(securityToken string) *APIClient {
	return &APIClient{
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		userAgent:     "gridplan/1.0",
		baseURL:       DefaultBaseURL,
		securityToken: securityToken,
	}
}

// SetUserAgent sets a custom user agent for the API client
func (c *APIClient) SetUserAgent(userAgent string) {
	c.userAgent = userAgent
}

// SetBaseURL points the client at another endpoint.
func (c *APIClient) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// SetTimeout sets the timeout of every request.
func (c *APIClient) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// DownloadOptions customises a single request
type DownloadOptions struct {
	UserAgent string
	Headers   map[string]string
}

// DownloadGenerationDocument downloads and decodes a generation document
// from a complete query URL.
func (c *APIClient) DownloadGenerationDocument(ctx context.Context, apiURL string) (*GenerationDocument, error) {
	return c.DownloadGenerationDocumentWithOptions(ctx, apiURL, &DownloadOptions{UserAgent: c.userAgent})
}

// DownloadGenerationDocumentWithOptions downloads and decodes a generation
// document with custom headers.
func (c *APIClient) DownloadGenerationDocumentWithOptions(ctx context.Context, apiURL string, opts *DownloadOptions) (*GenerationDocument, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("API URL cannot be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	userAgent := c.userAgent
	if opts != nil && opts.UserAgent != "" {
		userAgent = opts.UserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/xml, text/xml")
	if opts != nil {
		for key, value := range opts.Headers {
			req.Header.Set(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if ack, ok := decodeAcknowledgement(body); ok {
			apiErr.Code, apiErr.Text = ack.Code, ack.Text
		}
		return nil, apiErr
	}

	doc, err := DecodeGenerationXML(resp.Body)
	if err != nil {
		if _, ok := err.(*APIError); ok {
			return nil, err
		}
		return nil, fmt.Errorf("failed to decode XML response: %w", err)
	}
	return doc, nil
}

// buildGenerationURL builds an actual generation per production type
// query for [start, end).
func (c *APIClient) buildGenerationURL(domain, psrType string, start, end time.Time) string {
	q := url.Values{}
	q.Set("securityToken", c.securityToken)
	q.Set("documentType", DocumentActualGeneration)
	q.Set("processType", ProcessRealised)
	q.Set("psrType", psrType)
	q.Set("in_Domain", domain)
	q.Set("periodStart", utils.GetUTCString(start))
	q.Set("periodEnd", utils.GetUTCString(end))
	return c.baseURL + "?" + q.Encode()
}

// FetchActualGeneration downloads the actual generation of one production
// type in domain for [start, end). The platform serves at most one year
// per request.
func (c *APIClient) FetchActualGeneration(ctx context.Context, domain, psrType string, start, end time.Time) (*GenerationDocument, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("period end %s is not after start %s", end, start)
	}
	if end.Sub(start) > 366*24*time.Hour {
		return nil, fmt.Errorf("period of %s exceeds one year", end.Sub(start))
	}
	return c.DownloadGenerationDocument(ctx, c.buildGenerationURL(domain, psrType, start, end))
}

// FetchHydroDispatch downloads the hourly reservoir hydro generation of a
// country for the given calendar years (UTC) as one series named "disp".
func (c *APIClient) FetchHydroDispatch(ctx context.Context, country string, years []int) (*timeseries.Series, error) {
	domain, err := BiddingZone(country)
	if err != nil {
		return nil, err
	}
	years = append([]int(nil), years...)
	sort.Ints(years)

	out := &timeseries.Series{Name: "disp"}
	for _, year := range years {
		start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		doc, err := c.FetchActualGeneration(ctx, domain, PsrHydroReservoir, start, start.AddDate(1, 0, 0))
		if err != nil {
			return nil, fmt.Errorf("year %d: %w", year, err)
		}
		s := doc.HourlySeries("disp", PsrHydroReservoir)
		for i, t := range s.Index {
			if t.Year() != year {
				continue
			}
			out.Index = append(out.Index, t)
			out.Values = append(out.Values, s.Values[i])
		}
	}
	return out, nil
}

// ValidateAPIURL performs basic validation on the API URL
func ValidateAPIURL(apiURL string) error {
	if apiURL == "" {
		return fmt.Errorf("API URL cannot be empty")
	}
	u, err := url.Parse(apiURL)
	if err != nil {
		return fmt.Errorf("invalid API URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("API URL must start with http:// or https://")
	}
	if u.Host == "" {
		return fmt.Errorf("API URL has no host")
	}
	return nil
}
