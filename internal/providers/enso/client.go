// Package enso reads lending yields and positions from the Enso API and
// builds withdraw+deposit bundles.
package enso

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/defi-keeper/internal/cache"
	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/httpx"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/providers"
	"github.com/ggonzalez94/defi-keeper/internal/providers/yieldutil"
	"github.com/ggonzalez94/defi-keeper/internal/registry"
)

type Config struct {
	APIKey   string
	BaseURL  string
	CacheTTL time.Duration
	MaxStale time.Duration
}

type Client struct {
	http     *httpx.Client
	cache    *cache.Store
	apiKey   string
	baseURL  string
	cacheTTL time.Duration
	maxStale time.Duration
}

var _ providers.YieldSource = (*Client)(nil)

// New returns an Enso client. store may be nil to disable yield caching.
func New(httpClient *httpx.Client, store *cache.Store, cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = registry.EnsoBaseURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Client{http: httpClient, cache: store, apiKey: cfg.APIKey, baseURL: baseURL, cacheTTL: cfg.CacheTTL, maxStale: cfg.MaxStale}
}

func (c *Client) get(ctx context.Context, path string, query map[string]string, out any) error {
	return c.http.Do(ctx, httpx.Request{
		Method:  http.MethodGet,
		URL:     c.baseURL + path,
		Query:   query,
		Headers: c.headers(),
	}, out)
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

type marketResponse struct {
	Address string          `json:"address"`
	APY     decimal.Decimal `json:"apy"`
	APYBase decimal.Decimal `json:"apyBase"`
	TVL     json.Number     `json:"tvl"`
}

func (c *Client) FetchProtocolYields(ctx context.Context, protocolID string, chainID int64) ([]model.Market, error) {
	key := fmt.Sprintf("enso:yields:%s:%d", protocolID, chainID)
	raw, err := c.cache.GetOrLoad(ctx, key, c.cacheTTL, c.maxStale, func(ctx context.Context) ([]byte, error) {
		var body json.RawMessage
		path := "/protocols/" + url.PathEscape(protocolID) + "/yields"
		if err := c.get(ctx, path, map[string]string{"chainId": strconv.FormatInt(chainID, 10)}, &body); err != nil {
			return nil, err
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Markets []marketResponse `json:"markets"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode enso yields", err)
	}
	out := make([]model.Market, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		out = append(out, model.Market{
			Address: m.Address,
			APY:     yieldutil.PositiveFirst(m.APY, m.APYBase),
			TVL:     m.TVL.String(),
		})
	}
	return out, nil
}

func (c *Client) FetchPositions(ctx context.Context, protocolID string, chainID int64, account string) ([]model.Position, error) {
	var resp struct {
		Positions []struct {
			Market  string      `json:"market"`
			Balance json.Number `json:"balance"`
		} `json:"positions"`
	}
	path := "/protocols/" + url.PathEscape(protocolID) + "/positions"
	query := map[string]string{"chainId": strconv.FormatInt(chainID, 10), "address": account}
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		out = append(out, model.Position{Market: p.Market, Balance: p.Balance.String()})
	}
	return out, nil
}

type bundleAction struct {
	Protocol string            `json:"protocol"`
	Action   string            `json:"action"`
	Args     map[string]string `json:"args"`
}

// BuildBundle asks Enso for one call that withdraws from req.From and
// deposits into req.To.
func (c *Client) BuildBundle(ctx context.Context, req providers.BundleRequest) (model.Call, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return model.Call{}, clierr.New(clierr.CodeValidation, "bundle amount must be positive")
	}
	amount := req.Amount.String()
	actions := []bundleAction{
		{Protocol: ensoProtocolID(req.From.Protocol), Action: "withdraw", Args: map[string]string{"market": req.From.MarketAddress, "amount": amount}},
		{Protocol: ensoProtocolID(req.To.Protocol), Action: "deposit", Args: map[string]string{"market": req.To.MarketAddress, "amount": amount}},
	}
	query := map[string]string{
		"chainId":     strconv.FormatInt(req.ChainID, 10),
		"fromAddress": req.FromAddress,
		"slippage":    strconv.FormatInt(req.SlippageBps, 10),
	}

	var resp struct {
		Data *struct {
			To    string      `json:"to"`
			Data  string      `json:"data"`
			Value json.Number `json:"value"`
		} `json:"data"`
	}
	err := c.http.Do(ctx, httpx.Request{
		Method:     http.MethodPost,
		URL:        c.baseURL + "/shortcuts/bundle",
		Query:      query,
		Headers:    c.headers(),
		Body:       actions,
		Idempotent: true,
	}, &resp)
	if err != nil {
		return model.Call{}, err
	}
	if resp.Data == nil || resp.Data.To == "" {
		return model.Call{}, clierr.New(clierr.CodeUnavailable, "enso bundle response has no transaction")
	}
	value := resp.Data.Value.String()
	if value == "" {
		value = "0"
	}
	return model.Call{Operation: model.CallTypeCall, To: resp.Data.To, Value: value, Data: resp.Data.Data}, nil
}

func (c *Client) TransactionStatus(ctx context.Context, txHash string, chainID int64) (model.TxStatus, error) {
	var resp model.TxStatus
	path := "/transactions/" + url.PathEscape(txHash) + "/status"
	if err := c.get(ctx, path, map[string]string{"chainId": strconv.FormatInt(chainID, 10)}, &resp); err != nil {
		return model.TxStatus{}, err
	}
	return resp, nil
}

// ensoProtocolID maps a registry protocol key to the Enso protocol slug.
func ensoProtocolID(key string) string {
	for _, p := range registry.Protocols() {
		if strings.EqualFold(p.Key, key) {
			return p.EnsoID
		}
	}
	return strings.ToLower(key)
}
