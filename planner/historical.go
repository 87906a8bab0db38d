package planner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/devskill-org/gridplan/entsoe"
	"github.com/devskill-org/gridplan/historical"
)

// NewEntsoeClient returns an ENTSO-E client configured from c.
func NewEntsoeClient(c EntsoeConfig) (*entsoe.APIClient, error) {
	if c.SecurityToken == "" {
		return nil, fmt.Errorf("security_token cannot be empty")
	}
	client := entsoe.NewAPIClient(c.SecurityToken)
	if c.BaseURL != "" {
		client.SetBaseURL(c.BaseURL)
	}
	if c.Timeout > 0 {
		client.SetTimeout(c.Timeout)
	}
	return client, nil
}

// FetchHistorical downloads the historical dispatch of the configured
// country into HistoricalDir and drops the cached copy.
func (p *Planner) FetchHistorical(ctx context.Context, f historical.Fetcher) (string, error) {
	p.logger.Info("Fetching historical hydro dispatch",
		zap.String("country", p.config.Network.Country),
		zap.Int("first_year", historical.FirstYear),
		zap.Int("last_year", historical.LastYear))

	path, err := historical.Fetch(ctx, f, p.config.Plotting.HistoricalDir, p.config.Network.Country)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.hist = nil
	p.mu.Unlock()

	p.logger.Info("Historical hydro dispatch written", zap.String("path", path))
	return path, nil
}
