// Package client is a JSON-RPC client for the kora relayer.
package client

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Client talks to a kora relayer over JSON-RPC 2.0.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	hmacSecret string
	nextID     atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends the x-api-key header with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHMACSecret signs every request body with x-timestamp and
// x-hmac-signature headers.
func WithHMACSecret(secret string) Option {
	return func(c *Client) { c.hmacSecret = secret }
}

// NewClient creates a relayer client. httpClient and logger may be nil.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RPCError is a JSON-RPC error object returned by the relayer.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Config is the relayer's public configuration.
type Config struct {
	FeePayers        []string        `json:"fee_payers"`
	ValidationConfig json.RawMessage `json:"validation_config"`
	EnabledMethods   []string        `json:"enabled_methods"`
}

// PayerSigner identifies the signer the pool selected and where payments go.
type PayerSigner struct {
	SignerAddress  string `json:"signer_address"`
	PaymentAddress string `json:"payment_address"`
}

// FeeEstimate is the relayer's price for signing a transaction.
type FeeEstimate struct {
	FeeInLamports  uint64  `json:"fee_in_lamports"`
	FeeInToken     *uint64 `json:"fee_in_token,omitempty"`
	SignerPubkey   string  `json:"signer_pubkey"`
	PaymentAddress string  `json:"payment_address"`
}

// SignedTransaction is the result of a sign or sign-and-send call.
type SignedTransaction struct {
	SignedTransaction string `json:"signed_transaction"`
	Signature         string `json:"signature,omitempty"`
	SignerPubkey      string `json:"signer_pubkey"`
}

// BuiltTransfer is an unsigned transfer composed by the relayer.
type BuiltTransfer struct {
	Transaction  string `json:"transaction"`
	Message      string `json:"message"`
	Blockhash    string `json:"blockhash"`
	SignerPubkey string `json:"signer_pubkey"`
}

// Liveness checks that the relayer is serving requests.
func (c *Client) Liveness(ctx context.Context) error {
	var result string
	return c.call(ctx, "liveness", nil, &result)
}

// GetConfig fetches the relayer's public configuration.
func (c *Client) GetConfig(ctx context.Context) (*Config, error) {
	var result Config
	if err := c.call(ctx, "getConfig", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSupportedTokens lists the mints the relayer will transact.
func (c *Client) GetSupportedTokens(ctx context.Context) ([]string, error) {
	var result struct {
		Tokens []string `json:"tokens"`
	}
	if err := c.call(ctx, "getSupportedTokens", nil, &result); err != nil {
		return nil, err
	}
	return result.Tokens, nil
}

// GetPayerSigner asks the pool for a signer address.
func (c *Client) GetPayerSigner(ctx context.Context) (*PayerSigner, error) {
	var result PayerSigner
	if err := c.call(ctx, "getPayerSigner", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBlockhash returns a recent blockhash from the relayer's RPC node.
func (c *Client) GetBlockhash(ctx context.Context) (string, error) {
	var result struct {
		Blockhash string `json:"blockhash"`
	}
	if err := c.call(ctx, "getBlockhash", nil, &result); err != nil {
		return "", err
	}
	return result.Blockhash, nil
}

// EstimateOptions are the optional knobs of EstimateTransactionFee.
type EstimateOptions struct {
	// FeeToken additionally prices the fee in this mint's base units.
	FeeToken string
	// SignerKey pins the estimate to a specific pool signer.
	SignerKey string
}

// EstimateTransactionFee prices a base64-encoded transaction.
func (c *Client) EstimateTransactionFee(ctx context.Context, txBase64 string, opts EstimateOptions) (*FeeEstimate, error) {
	params := map[string]string{"transaction": txBase64}
	if opts.FeeToken != "" {
		params["fee_token"] = opts.FeeToken
	}
	if opts.SignerKey != "" {
		params["signer_key"] = opts.SignerKey
	}
	var result FeeEstimate
	if err := c.call(ctx, "estimateTransactionFee", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SignTransaction submits a base64 transaction for fee-payer signing.
// signerKey optionally pins the signer chosen by an earlier estimate.
func (c *Client) SignTransaction(ctx context.Context, txBase64, signerKey string) (*SignedTransaction, error) {
	return c.signCall(ctx, "signTransaction", txBase64, signerKey)
}

// SignAndSendTransaction signs and submits the transaction to the chain.
func (c *Client) SignAndSendTransaction(ctx context.Context, txBase64, signerKey string) (*SignedTransaction, error) {
	return c.signCall(ctx, "signAndSendTransaction", txBase64, signerKey)
}

func (c *Client) signCall(ctx context.Context, method, txBase64, signerKey string) (*SignedTransaction, error) {
	params := map[string]string{"transaction": txBase64}
	if signerKey != "" {
		params["signer_key"] = signerKey
	}
	var result SignedTransaction
	if err := c.call(ctx, method, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TransferTransaction asks the relayer to compose an unsigned transfer of
// amount base units of token from source to destination.
func (c *Client) TransferTransaction(ctx context.Context, amount uint64, token, source, destination, signerKey string) (*BuiltTransfer, error) {
	params := map[string]any{
		"amount":      amount,
		"token":       token,
		"source":      source,
		"destination": destination,
	}
	if signerKey != "" {
		params["signer_key"] = signerKey
	}
	var result BuiltTransfer
	if err := c.call(ctx, "transferTransaction", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// call performs one JSON-RPC request and decodes the result into result
// (which may be nil to discard it).
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"id":      c.nextID.Add(1),
		"method":  method,
	}
	if params != nil {
		reqBody["params"] = params
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req, body)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(raw))
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to decode result: %w", err)
		}
	}

	c.logger.Debug("rpc call complete", "method", method)
	return nil
}

// setAuthHeaders attaches the configured auth material to a request.
func (c *Client) setAuthHeaders(req *http.Request, body []byte) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.hmacSecret != "" {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		mac := hmac.New(sha256.New, []byte(c.hmacSecret))
		mac.Write([]byte(ts))
		mac.Write(body)
		req.Header.Set("x-timestamp", ts)
		req.Header.Set("x-hmac-signature", hex.EncodeToString(mac.Sum(nil)))
	}
}
