package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const riskPath = "/api/risk/"

// Breakdown mirrors the scoring backend's per-category scores.
type Breakdown struct {
	ContractRisk   int `json:"contract_risk"`
	BehaviorRisk   int `json:"behavior_risk"`
	ReputationRisk int `json:"reputation_risk"`
}

// Result is a completed external risk analysis for one address.
type Result struct {
	Address        string    `json:"address"`
	RiskScore      int       `json:"riskScore"`
	RiskLevel      string    `json:"riskLevel"`
	Breakdown      Breakdown `json:"breakdown"`
	KeyFindings    []string  `json:"keyFindings"`
	Summary        string    `json:"summary"`
	AnalysisTimeMS int64     `json:"analysisTimeMs"`
}

// Scorer fetches a full risk analysis for an address.
type Scorer interface {
	Score(ctx context.Context, address string) (Result, error)
}

// Options parameterise the scoring backend client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client calls the external scoring backend over HTTP.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a scoring backend client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "scoring_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// Score fetches the composite assessment for one address. Non-2xx
// responses are analysis failures for that address, not fatal errors.
func (c *Client) Score(ctx context.Context, address string) (Result, error) {
	if c.baseURL == "" {
		return Result{}, errors.New("scoring base url not configured")
	}

	endpoint := c.baseURL + riskPath + strings.ToLower(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, parseHTTPError(resp.StatusCode, payload)
	}

	var body riskResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return Result{}, fmt.Errorf("decode scoring response: %w", err)
	}
	if body.RiskScore < 0 || body.RiskScore > 100 {
		return Result{}, fmt.Errorf("scoring response out of range: %d", body.RiskScore)
	}

	result := Result{
		Address:        strings.ToLower(body.Address),
		RiskScore:      body.RiskScore,
		RiskLevel:      body.RiskLevel,
		Breakdown:      body.Breakdown,
		KeyFindings:    body.Explanation.KeyFindings,
		Summary:        body.Explanation.Summary,
		AnalysisTimeMS: body.AnalysisTimeMS,
	}
	if result.Address == "" {
		result.Address = strings.ToLower(address)
	}

	return result, nil
}

type riskResponse struct {
	Address     string    `json:"address"`
	RiskScore   int       `json:"riskScore"`
	RiskLevel   string    `json:"riskLevel"`
	Breakdown   Breakdown `json:"breakdown"`
	Explanation struct {
		Summary     string   `json:"summary"`
		KeyFindings []string `json:"keyFindings"`
	} `json:"explanation"`
	AnalysisTimeMS int64 `json:"analysisTimeMs"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Errorf("scoring api error (%d): %s", status, apiErr.Error)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("scoring api error (%d): %s", status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("scoring api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("scoring api error (%d)", status)
}

var _ Scorer = (*Client)(nil)
