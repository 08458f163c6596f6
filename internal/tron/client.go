package tron

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	trc20ABIJSON = `[
		{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
		{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
		{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
		{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
	]`

	apiKeyHeader = "TRON-PRO-API-KEY"

	defaultFeeLimit = 100_000_000 // 100 TRX cap on token transfer energy
)

var trc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(trc20ABIJSON))
	if err != nil {
		panic("failed to parse TRC20 ABI: " + err.Error())
	}
	trc20ABI = parsed
}

var networkURLs = map[string]string{
	"mainnet": "https://api.trongrid.io",
	"shasta":  "https://api.shasta.trongrid.io",
	"nile":    "https://nile.trongrid.io",
}

var (
	// ErrThrottled signals an upstream rate-limit response; the caller is
	// expected to back off and rotate credentials.
	ErrThrottled = errors.New("tron: provider throttled request")
	// ErrTxNotFound signals that a transaction is not (yet) known to the
	// node.
	ErrTxNotFound = errors.New("tron: transaction not found")
	// ErrBroadcastRejected signals the node refused a signed transaction.
	ErrBroadcastRejected = errors.New("tron: broadcast rejected")
)

// Options parameterise the chain client.
type Options struct {
	Network           string
	NodeURL           string // overrides the per-network default
	SourceAddress     string
	Timeout           time.Duration
	FeeLimit          int64 // token transfer fee_limit in sun
	NativeFeeEstimate int64 // sun
	TokenFeeEstimate  int64 // sun
}

// Client talks to a TronGrid-style HTTP node. It performs balance reads,
// builds transfers server-side, signs locally, and broadcasts. A Client
// is safe for concurrent use; WithAPIKey returns credential-bound views
// sharing the same underlying http.Client.
type Client struct {
	opts    Options
	baseURL string
	apiKey  string
	httpc   *http.Client
	signer  *Signer
	logger  zerolog.Logger
}

// NewClient constructs a chain client. The signer may be nil for
// read-only use (balance queries, confirmation lookups).
func NewClient(opts Options, signer *Signer, logger zerolog.Logger) (*Client, error) {
	baseURL := strings.TrimRight(opts.NodeURL, "/")
	if baseURL == "" {
		var ok bool
		baseURL, ok = networkURLs[opts.Network]
		if !ok {
			return nil, fmt.Errorf("tron: unknown network %q", opts.Network)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.FeeLimit <= 0 {
		opts.FeeLimit = defaultFeeLimit
	}

	if signer != nil && opts.SourceAddress != "" && signer.Address() != opts.SourceAddress {
		logger.Warn().
			Str("configured", opts.SourceAddress).
			Str("derived", signer.Address()).
			Msg("source address does not match address derived from private key")
	}

	return &Client{
		opts:    opts,
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		signer:  signer,
		logger:  logger.With().Str("component", "tron_client").Logger(),
	}, nil
}

// WithAPIKey returns a view of the client bound to one credential. The
// zero-value key yields an anonymous client.
func (c *Client) WithAPIKey(key string) *Client {
	clone := *c
	clone.apiKey = key
	return &clone
}

// SourceAddress returns the monitored wallet address.
func (c *Client) SourceAddress() string {
	return c.opts.SourceAddress
}

// EstimateFee returns the static fee estimate in minor units. Token
// transfers burn energy and cost considerably more than bare transfers.
func (c *Client) EstimateFee(token bool) decimal.Decimal {
	if token {
		return decimal.NewFromInt(c.opts.TokenFeeEstimate)
	}
	return decimal.NewFromInt(c.opts.NativeFeeEstimate)
}

// GetBalance returns the TRX balance of an account in sun. An account
// unknown to the node reads as zero.
func (c *Client) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var resp accountResponse
	err := c.post(ctx, "/wallet/getaccount", getAccountRequest{Address: address, Visible: true}, &resp)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromInt(resp.Balance), nil
}

// GetTokenBalance returns the TRC20 balance of an account in the token's
// minor units.
func (c *Client) GetTokenBalance(ctx context.Context, contract, address string) (decimal.Decimal, error) {
	owner, err := EVMAddress(address)
	if err != nil {
		return decimal.Decimal{}, err
	}
	results, err := c.constantCall(ctx, address, contract, "balanceOf(address)", "balanceOf", owner)
	if err != nil {
		return decimal.Decimal{}, err
	}
	balance, err := parseUint256(results)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode balanceOf result: %w", err)
	}
	return decimal.NewFromBigInt(balance, 0), nil
}

// GetTokenInfo reads symbol, name and decimals from a TRC20 contract.
func (c *Client) GetTokenInfo(ctx context.Context, contract string) (TokenInfo, error) {
	info := TokenInfo{ContractAddress: contract}

	symbolRes, err := c.constantCall(ctx, c.opts.SourceAddress, contract, "symbol()", "symbol")
	if err != nil {
		return info, err
	}
	if info.Symbol, err = parseString("symbol", symbolRes); err != nil {
		return info, fmt.Errorf("decode symbol: %w", err)
	}

	nameRes, err := c.constantCall(ctx, c.opts.SourceAddress, contract, "name()", "name")
	if err != nil {
		return info, err
	}
	if info.Name, err = parseString("name", nameRes); err != nil {
		return info, fmt.Errorf("decode name: %w", err)
	}

	decimalsRes, err := c.constantCall(ctx, c.opts.SourceAddress, contract, "decimals()", "decimals")
	if err != nil {
		return info, err
	}
	dec, err := parseUint256(decimalsRes)
	if err != nil {
		return info, fmt.Errorf("decode decimals: %w", err)
	}
	info.Decimals = int32(dec.Int64())

	return info, nil
}

// BuildTransfer asks the node to assemble an unsigned TRX transfer.
func (c *Client) BuildTransfer(ctx context.Context, to string, amount decimal.Decimal) (*Transaction, error) {
	req := createTransactionRequest{
		OwnerAddress: c.opts.SourceAddress,
		ToAddress:    to,
		Amount:       amount.IntPart(),
		Visible:      true,
	}
	var tx Transaction
	if err := c.post(ctx, "/wallet/createtransaction", req, &tx); err != nil {
		return nil, err
	}
	if tx.RawDataHex == "" {
		return nil, errors.New("tron: node returned empty transaction")
	}
	return &tx, nil
}

// BuildTokenTransfer asks the node to assemble an unsigned TRC20
// transfer call.
func (c *Client) BuildTokenTransfer(ctx context.Context, contract, to string, amount decimal.Decimal) (*Transaction, error) {
	recipient, err := EVMAddress(to)
	if err != nil {
		return nil, err
	}
	param, err := packParameter("transfer", recipient, amount.BigInt())
	if err != nil {
		return nil, err
	}

	req := triggerRequest{
		OwnerAddress:     c.opts.SourceAddress,
		ContractAddress:  contract,
		FunctionSelector: "transfer(address,uint256)",
		Parameter:        param,
		FeeLimit:         c.opts.FeeLimit,
		Visible:          true,
	}
	var resp triggerResponse
	if err := c.post(ctx, "/wallet/triggersmartcontract", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Result.Result || resp.Transaction == nil {
		return nil, fmt.Errorf("tron: trigger rejected: %s %s", resp.Result.Code, decodeNodeMessage(resp.Result.Message))
	}
	return resp.Transaction, nil
}

// Broadcast submits a signed transaction and returns its txid.
func (c *Client) Broadcast(ctx context.Context, tx *Transaction) (string, error) {
	if tx == nil || len(tx.Signature) == 0 {
		return "", errors.New("tron: refusing to broadcast unsigned transaction")
	}
	var resp broadcastResponse
	if err := c.post(ctx, "/wallet/broadcasttransaction", tx, &resp); err != nil {
		return "", err
	}
	if !resp.Result {
		return "", fmt.Errorf("%w: %s %s", ErrBroadcastRejected, resp.Code, decodeNodeMessage(resp.Message))
	}
	txid := resp.TxID
	if txid == "" {
		txid = tx.TxID
	}
	return txid, nil
}

// Transfer builds, signs and broadcasts a TRX transfer as one step.
func (c *Client) Transfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	if c.signer == nil {
		return "", errors.New("tron: client has no signer")
	}
	tx, err := c.BuildTransfer(ctx, to, amount)
	if err != nil {
		return "", err
	}
	if err := c.signer.Sign(tx); err != nil {
		return "", err
	}
	return c.Broadcast(ctx, tx)
}

// TransferToken builds, signs and broadcasts a TRC20 transfer as one
// step.
func (c *Client) TransferToken(ctx context.Context, contract, to string, amount decimal.Decimal) (string, error) {
	if c.signer == nil {
		return "", errors.New("tron: client has no signer")
	}
	tx, err := c.BuildTokenTransfer(ctx, contract, to, amount)
	if err != nil {
		return "", err
	}
	if err := c.signer.Sign(tx); err != nil {
		return "", err
	}
	return c.Broadcast(ctx, tx)
}

// GetConfirmations returns the number of blocks on top of (and
// including) the one holding txid. ErrTxNotFound when the node has not
// seen the transaction.
func (c *Client) GetConfirmations(ctx context.Context, txid string) (int64, error) {
	var info txInfoResponse
	if err := c.post(ctx, "/wallet/gettransactioninfobyid", txInfoRequest{Value: txid}, &info); err != nil {
		return 0, err
	}
	if info.ID == "" || info.BlockNumber == 0 {
		return 0, ErrTxNotFound
	}

	var now nowBlockResponse
	if err := c.post(ctx, "/wallet/getnowblock", struct{}{}, &now); err != nil {
		return 0, err
	}

	confirmations := now.BlockHeader.RawData.Number - info.BlockNumber + 1
	if confirmations < 0 {
		confirmations = 0
	}
	return confirmations, nil
}

func (c *Client) constantCall(ctx context.Context, owner, contract, selector, method string, args ...interface{}) ([]string, error) {
	param, err := packParameter(method, args...)
	if err != nil {
		return nil, err
	}
	req := triggerRequest{
		OwnerAddress:     owner,
		ContractAddress:  contract,
		FunctionSelector: selector,
		Parameter:        param,
		Visible:          true,
	}
	var resp triggerResponse
	if err := c.post(ctx, "/wallet/triggerconstantcontract", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Result.Result {
		return nil, fmt.Errorf("tron: constant call %s failed: %s %s", selector, resp.Result.Code, decodeNodeMessage(resp.Result.Message))
	}
	return resp.ConstantResult, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests, http.StatusForbidden, http.StatusServiceUnavailable:
		c.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("provider throttled request")
		return fmt.Errorf("%w: HTTP %d on %s", ErrThrottled, resp.StatusCode, path)
	default:
		return fmt.Errorf("tron: %s returned HTTP %d: %s", path, resp.StatusCode, truncate(string(raw), 200))
	}

	// TronGrid reports some faults as 200 with an Error field.
	var nodeErr struct {
		Error string `json:"Error"`
	}
	if err := json.Unmarshal(raw, &nodeErr); err == nil && nodeErr.Error != "" {
		return fmt.Errorf("tron: %s: %s", path, nodeErr.Error)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// packParameter ABI-encodes call arguments the way triggersmartcontract
// expects them: packed calldata without the 4-byte selector, hex encoded.
func packParameter(method string, args ...interface{}) (string, error) {
	packed, err := trc20ABI.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("pack %s: %w", method, err)
	}
	return hex.EncodeToString(packed[4:]), nil
}

func parseUint256(results []string) (*big.Int, error) {
	if len(results) == 0 || results[0] == "" {
		return nil, errors.New("empty constant result")
	}
	raw, err := hex.DecodeString(results[0])
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func parseString(method string, results []string) (string, error) {
	if len(results) == 0 || results[0] == "" {
		return "", errors.New("empty constant result")
	}
	raw, err := hex.DecodeString(results[0])
	if err != nil {
		return "", err
	}
	outputs, err := trc20ABI.Unpack(method, raw)
	if err != nil {
		return "", err
	}
	if len(outputs) != 1 {
		return "", errors.New("unexpected output arity")
	}
	value, ok := outputs[0].(string)
	if !ok {
		return "", errors.New("output is not a string")
	}
	return value, nil
}

// decodeNodeMessage best-effort decodes the hex-encoded message field
// TronGrid attaches to rejections.
func decodeNodeMessage(msg string) string {
	if msg == "" {
		return ""
	}
	if raw, err := hex.DecodeString(msg); err == nil {
		return string(raw)
	}
	return msg
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
