// Package threat enriches source IPs with third-party reputation data,
// caching results so repeat offenders cost one provider call per day.
package threat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"blackwolf/core"

	"go.uber.org/zap"
)

// ReputationProvider looks up one IP against an external intel source.
type ReputationProvider interface {
	Lookup(ctx context.Context, ip string) (*core.ThreatEnrichment, error)
}

// AbuseIPDBProvider queries the AbuseIPDB check endpoint.
type AbuseIPDBProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.SugaredLogger
}

// NewAbuseIPDBProvider creates the provider. The client must carry a bounded
// timeout; enrichment runs inline with upload processing.
func NewAbuseIPDBProvider(apiKey, baseURL string, client *http.Client, logger *zap.SugaredLogger) *AbuseIPDBProvider {
	return &AbuseIPDBProvider{apiKey: apiKey, baseURL: baseURL, client: client, logger: logger}
}

type abuseIPDBResponse struct {
	Data struct {
		IPAddress            string `json:"ipAddress"`
		AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
		CountryCode          string `json:"countryCode"`
		ISP                  string `json:"isp"`
		Domain               string `json:"domain"`
		IsTor                bool   `json:"isTor"`
		TotalReports         int    `json:"totalReports"`
	} `json:"data"`
}

// Lookup queries the provider for one IP.
func (p *AbuseIPDBProvider) Lookup(ctx context.Context, ip string) (*core.ThreatEnrichment, error) {
	endpoint := fmt.Sprintf("%s/check?ipAddress=%s&maxAgeInDays=90", p.baseURL, url.QueryEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build reputation request: %w", err)
	}
	req.Header.Set("Key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: reputation lookup: %v", core.ErrExternalDependency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: reputation provider returned %d: %s",
			core.ErrExternalDependency, resp.StatusCode, string(body))
	}

	var parsed abuseIPDBResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to decode reputation response: %v", core.ErrExternalDependency, err)
	}

	return &core.ThreatEnrichment{
		IP:           ip,
		AbuseScore:   parsed.Data.AbuseConfidenceScore,
		CountryCode:  parsed.Data.CountryCode,
		ISP:          parsed.Data.ISP,
		Domain:       parsed.Data.Domain,
		IsTor:        parsed.Data.IsTor,
		TotalReports: parsed.Data.TotalReports,
	}, nil
}
