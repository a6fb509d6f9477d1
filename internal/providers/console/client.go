// Package console talks to the automation console API: executor task intake,
// calldata builders, EIP-712 digests and workflow state.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/httpx"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/providers"
)

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
}

func New(httpClient *httpx.Client, baseURL, apiKey string) *Client {
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

var (
	_ providers.TaskSource      = (*Client)(nil)
	_ providers.ChainWriter     = (*Client)(nil)
	_ providers.ExecutorBackend = (*Client)(nil)
)

type envelope[T any] struct {
	Data T `json:"data"`
}

// do sends a read or builder call. Builders only quote calldata, so a POST
// to them is safe to resend.
func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	return c.send(ctx, httpx.Request{Method: method, URL: c.baseURL + path, Query: query, Body: body, Idempotent: true}, out)
}

func (c *Client) send(ctx context.Context, req httpx.Request, out any) error {
	if c.apiKey == "" {
		return clierr.New(clierr.CodeAuth, "console api key is not configured")
	}
	req.Headers = map[string]string{"x-api-key": c.apiKey}
	return c.http.Do(ctx, req, out)
}

// flexString accepts a JSON string or number. Amounts and nonces arrive in
// either form.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type taskResponse struct {
	ID      string `json:"id"`
	Payload struct {
		Params struct {
			SubAccountAddress string `json:"subAccountAddress"`
			ChainID           int64  `json:"chainID"`
			Subscription      *struct {
				Metadata *struct {
					Every          string      `json:"every"`
					Receiver       string      `json:"receiver"`
					TransferAmount flexString `json:"transferAmount"`
				} `json:"metadata"`
			} `json:"subscription"`
		} `json:"params"`
	} `json:"payload"`
}

func (c *Client) FetchTasks(ctx context.Context, registryID string, offset, limit int) ([]model.Task, error) {
	var resp envelope[[]taskResponse]
	path := "/v1/automations/executor/" + url.PathEscape(registryID) + "/tasks"
	query := map[string]string{"offset": strconv.Itoa(offset), "limit": strconv.Itoa(limit)}
	if err := c.do(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, err
	}

	tasks := make([]model.Task, 0, len(resp.Data))
	for _, raw := range resp.Data {
		params := raw.Payload.Params
		task := model.Task{ID: raw.ID, SubAccount: params.SubAccountAddress, ChainID: params.ChainID}
		if params.Subscription != nil && params.Subscription.Metadata != nil {
			md := params.Subscription.Metadata
			task.Metadata = model.SubscriptionMetadata{
				Every:          md.Every,
				Receiver:       md.Receiver,
				TransferAmount: string(md.TransferAmount),
			}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

type nonceResponse struct {
	Nonce flexString `json:"nonce"`
}

func (c *Client) FetchExecutorNonce(ctx context.Context, account, executor string, chainID int64) (string, error) {
	var resp envelope[nonceResponse]
	query := map[string]string{"account": account, "executor": executor, "chainId": strconv.FormatInt(chainID, 10)}
	if err := c.do(ctx, http.MethodGet, "/v1/automations/executor/nonce", query, nil, &resp); err != nil {
		return "", err
	}
	nonce := string(resp.Data.Nonce)
	if nonce == "" {
		return "", clierr.New(clierr.CodeUnavailable, "console returned no executor nonce")
	}
	return nonce, nil
}

type digestBody struct {
	Account       string `json:"account"`
	ChainID       int64  `json:"chainId"`
	Data          string `json:"data"`
	Executor      string `json:"executor"`
	Nonce         string `json:"nonce"`
	Operation     uint8  `json:"operation"`
	PluginAddress string `json:"pluginAddress"`
	To            string `json:"to"`
	Value         string `json:"value"`
}

type digestResponse struct {
	Domain      apitypes.TypedDataDomain  `json:"domain"`
	Types       apitypes.Types            `json:"types"`
	Message     apitypes.TypedDataMessage `json:"message"`
	PrimaryType string                    `json:"primaryType"`
}

func (c *Client) ExecutableDigest(ctx context.Context, req providers.DigestRequest) (apitypes.TypedData, error) {
	var resp envelope[digestResponse]
	body := digestBody{
		Account:       req.Account,
		ChainID:       req.ChainID,
		Data:          req.Data,
		Executor:      req.Executor,
		Nonce:         req.Nonce,
		Operation:     uint8(req.Operation),
		PluginAddress: req.PluginAddress,
		To:            req.To,
		Value:         req.Value,
	}
	if err := c.do(ctx, http.MethodPost, "/v1/automations/executor/digest", nil, body, &resp); err != nil {
		return apitypes.TypedData{}, err
	}
	return typedDataFrom(resp.Data)
}

// typedDataFrom fills in what ethers-style digests leave implicit: the
// EIP712Domain type and the primary type.
func typedDataFrom(d digestResponse) (apitypes.TypedData, error) {
	types := apitypes.Types{}
	for k, v := range d.Types {
		types[k] = v
	}
	if _, ok := types["EIP712Domain"]; !ok {
		types["EIP712Domain"] = domainType(d.Domain)
	}
	primary := d.PrimaryType
	if primary == "" {
		for name := range types {
			if name == "EIP712Domain" {
				continue
			}
			if primary != "" {
				return apitypes.TypedData{}, clierr.New(clierr.CodeUnavailable, "digest has several types and no primaryType")
			}
			primary = name
		}
	}
	if primary == "" {
		return apitypes.TypedData{}, clierr.New(clierr.CodeUnavailable, "digest has no message type")
	}
	return apitypes.TypedData{Types: types, PrimaryType: primary, Domain: d.Domain, Message: d.Message}, nil
}

func domainType(d apitypes.TypedDataDomain) []apitypes.Type {
	var out []apitypes.Type
	if d.Name != "" {
		out = append(out, apitypes.Type{Name: "name", Type: "string"})
	}
	if d.Version != "" {
		out = append(out, apitypes.Type{Name: "version", Type: "string"})
	}
	if d.ChainId != nil {
		out = append(out, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if d.VerifyingContract != "" {
		out = append(out, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if d.Salt != "" {
		out = append(out, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	return out
}

type submitBody struct {
	ID         string `json:"id"`
	RegistryID string `json:"registryId"`
	Payload    struct {
		Task struct {
			Executable struct {
				CallType uint8  `json:"callType"`
				Data     string `json:"data"`
				To       string `json:"to"`
				Value    string `json:"value"`
			} `json:"executable"`
			ExecutorSignature string `json:"executorSignature"`
			Executor          string `json:"executor"`
			Skip              bool   `json:"skip"`
			SkipReason        string `json:"skipReason"`
			Subaccount        string `json:"subaccount"`
		} `json:"task"`
	} `json:"payload"`
}

func (c *Client) SubmitTask(ctx context.Context, registryID string, sub providers.Submission) error {
	var body submitBody
	body.ID = sub.TaskID
	body.RegistryID = registryID
	task := &body.Payload.Task
	task.Executable.CallType = uint8(sub.Executable.CallType)
	task.Executable.Data = sub.Executable.Data
	task.Executable.To = sub.Executable.To
	task.Executable.Value = sub.Executable.Value
	task.ExecutorSignature = sub.Signature
	task.Executor = sub.Executor
	task.Skip = sub.Skip
	task.SkipReason = sub.SkipReason
	task.Subaccount = sub.SubAccount

	// Not resent on failure: a second submit would queue the task twice.
	path := "/v1/automations/executor/" + url.PathEscape(registryID) + "/tasks/submit"
	return c.send(ctx, httpx.Request{Method: http.MethodPost, URL: c.baseURL + path, Body: body}, nil)
}

type workflowResponse struct {
	Status string `json:"status"`
	Out    struct {
		TxHash  string `json:"txHash"`
		Message string `json:"message"`
	} `json:"out"`
}

func (c *Client) FetchWorkflowState(ctx context.Context, taskID string) (model.WorkflowState, error) {
	var resp envelope[*workflowResponse]
	if err := c.do(ctx, http.MethodGet, "/v1/automations/tasks/"+url.PathEscape(taskID)+"/state", nil, nil, &resp); err != nil {
		return model.WorkflowState{}, err
	}
	if resp.Data == nil {
		return model.WorkflowState{}, clierr.New(clierr.CodeUnavailable, "console returned no workflow state")
	}
	return model.WorkflowState{
		TaskID: taskID,
		Status: model.WorkflowStatus(strings.ToLower(strings.TrimSpace(resp.Data.Status))),
		Outcome: model.WorkflowOutcome{
			TxHash:  resp.Data.Out.TxHash,
			Message: resp.Data.Out.Message,
		},
	}, nil
}

type callResponse struct {
	Operation uint8       `json:"operation"`
	To        string      `json:"to"`
	Value     flexString `json:"value"`
	Data      string      `json:"data"`
}

type transactionsResponse struct {
	Transactions []callResponse `json:"transactions"`
}

func toCalls(in []callResponse) []model.Call {
	out := make([]model.Call, 0, len(in))
	for _, c := range in {
		value := string(c.Value)
		if value == "" {
			value = "0"
		}
		out = append(out, model.Call{Operation: model.CallType(c.Operation), To: c.To, Value: value, Data: c.Data})
	}
	return out
}

func builderPath(action string, chainID int64, account string) string {
	return fmt.Sprintf("/v1/builder/%s/%d/%s", action, chainID, url.PathEscape(account))
}

func (c *Client) BuildTransfer(ctx context.Context, req providers.TransferRequest) ([]model.Call, error) {
	var resp envelope[transactionsResponse]
	body := map[string]string{"amount": req.Amount, "to": req.To, "tokenAddress": req.Token}
	if err := c.do(ctx, http.MethodPost, builderPath("send", req.ChainID, req.Account), nil, body, &resp); err != nil {
		return nil, err
	}
	return toCalls(resp.Data.Transactions), nil
}

type routeBody struct {
	AmountIn     string `json:"amountIn"`
	AmountOut    string `json:"amountOut"`
	ChainIDIn    int64  `json:"chainIdIn"`
	ChainIDOut   int64  `json:"chainIdOut"`
	OwnerAddress string `json:"ownerAddress"`
	Recipient    string `json:"recipient"`
	Slippage     int64  `json:"slippage"`
	TokenIn      string `json:"tokenIn"`
	TokenOut     string `json:"tokenOut"`
}

func routeBodyFrom(req providers.BridgeRouteRequest) routeBody {
	return routeBody{
		AmountIn:     req.AmountIn,
		AmountOut:    req.AmountOut,
		ChainIDIn:    req.ChainIDIn,
		ChainIDOut:   req.ChainIDOut,
		OwnerAddress: req.Owner,
		Recipient:    req.Recipient,
		Slippage:     req.Slippage,
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
	}
}

func (c *Client) FetchBridgingRoutes(ctx context.Context, req providers.BridgeRouteRequest) ([]model.BridgeRoute, error) {
	var resp envelope[[]json.RawMessage]
	if err := c.do(ctx, http.MethodPost, "/v1/builder/bridge/routes", nil, routeBodyFrom(req), &resp); err != nil {
		return nil, err
	}
	routes := make([]model.BridgeRoute, 0, len(resp.Data))
	for _, raw := range resp.Data {
		var head struct {
			PID int64 `json:"pid"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "decode bridge route", err)
		}
		routes = append(routes, model.BridgeRoute{PID: head.PID, Raw: raw})
	}
	return routes, nil
}

func (c *Client) BuildBridge(ctx context.Context, req providers.BridgeRequest) ([]model.Call, error) {
	if len(req.Route.Raw) == 0 {
		return nil, clierr.New(clierr.CodeValidation, "bridge route is empty")
	}
	body := struct {
		routeBody
		Route json.RawMessage `json:"route"`
	}{routeBody: routeBodyFrom(req.BridgeRouteRequest), Route: req.Route.Raw}

	var resp envelope[transactionsResponse]
	if err := c.do(ctx, http.MethodPost, builderPath("bridge", req.ChainIDIn, req.Owner), nil, body, &resp); err != nil {
		return nil, err
	}
	return toCalls(resp.Data.Transactions), nil
}

func (c *Client) FetchSwapRoutes(ctx context.Context, req providers.SwapRouteRequest) ([]model.SwapRoute, error) {
	query := map[string]string{
		"chainId":      strconv.FormatInt(req.ChainID, 10),
		"tokenIn":      req.TokenIn,
		"tokenOut":     req.TokenOut,
		"ownerAddress": req.Account,
		"amountIn":     req.AmountIn,
		"slippage":     strconv.FormatInt(req.Slippage, 10),
	}
	var resp envelope[[]json.RawMessage]
	if err := c.do(ctx, http.MethodGet, "/v1/builder/swap/routes", query, nil, &resp); err != nil {
		return nil, err
	}
	routes := make([]model.SwapRoute, 0, len(resp.Data))
	for _, raw := range resp.Data {
		routes = append(routes, model.SwapRoute{Raw: raw})
	}
	return routes, nil
}

func (c *Client) BuildSwap(ctx context.Context, req providers.SwapRequest) ([]model.Call, error) {
	if len(req.Route.Raw) == 0 {
		return nil, clierr.New(clierr.CodeValidation, "swap route is empty")
	}
	body := struct {
		AmountIn string          `json:"amountIn"`
		ChainID  int64           `json:"chainId"`
		Route    json.RawMessage `json:"route"`
		Slippage int64           `json:"slippage"`
		TokenIn  string          `json:"tokenIn"`
		TokenOut string          `json:"tokenOut"`
	}{req.AmountIn, req.ChainID, req.Route.Raw, req.Slippage, req.TokenIn, req.TokenOut}

	var resp envelope[transactionsResponse]
	if err := c.do(ctx, http.MethodPost, builderPath("swap", req.ChainID, req.Account), nil, body, &resp); err != nil {
		return nil, err
	}
	return toCalls(resp.Data.Transactions), nil
}

func (c *Client) FetchBridgingStatus(ctx context.Context, txHash string, pid, chainIn, chainOut int64) (model.BridgeStatus, error) {
	var resp envelope[*struct {
		SourceStatus      string `json:"sourceStatus"`
		DestinationStatus string `json:"destinationStatus"`
	}]
	query := map[string]string{
		"txHash":     txHash,
		"pid":        strconv.FormatInt(pid, 10),
		"chainIdIn":  strconv.FormatInt(chainIn, 10),
		"chainIdOut": strconv.FormatInt(chainOut, 10),
	}
	if err := c.do(ctx, http.MethodGet, "/v1/builder/bridge/status", query, nil, &resp); err != nil {
		return model.BridgeStatus{}, err
	}
	if resp.Data == nil {
		return model.BridgeStatus{SourceStatus: "pending", DestinationStatus: "pending"}, nil
	}
	st := model.BridgeStatus{SourceStatus: resp.Data.SourceStatus, DestinationStatus: resp.Data.DestinationStatus}
	if st.SourceStatus == "" {
		st.SourceStatus = "pending"
	}
	if st.DestinationStatus == "" {
		st.DestinationStatus = "pending"
	}
	return st, nil
}
