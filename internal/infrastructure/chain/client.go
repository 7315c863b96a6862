// Package chain reads token and NFT balances over EVM JSON-RPC.
//
// Only two view calls are needed (balanceOf and decimals), so the calldata is
// packed by hand and sent as eth_call through the shared retrying HTTP
// client. The circuit breaker and request timeout bound how long an
// unresponsive node can hold up an unlock attempt.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/Akmalwizdom/onyx-shortener/pkg/httpclient"
)

// 4-byte function selectors, keccak256 of the canonical signatures.
const (
	selectorBalanceOf = "0x70a08231" // balanceOf(address)
	selectorDecimals  = "0x313ce567" // decimals()
)

type Client struct {
	http   *httpclient.Client
	rpcURL string
}

func New(rpcURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http:   httpclient.NewClient(timeout, 5, 30*time.Second),
		rpcURL: rpcURL,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type callParams struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error,omitempty"`
}

// BalanceOf returns the raw balanceOf(holder) value for contract: base units
// for ERC-20 tokens, owned-item count for ERC-721 collections.
func (c *Client) BalanceOf(ctx context.Context, contract, holder string) (*big.Int, error) {
	padded, err := padAddress(holder)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, contract, selectorBalanceOf+padded)
}

// Decimals returns the ERC-20 decimals() value for contract.
func (c *Client) Decimals(ctx context.Context, contract string) (uint8, error) {
	v, err := c.call(ctx, contract, selectorDecimals)
	if err != nil {
		return 0, err
	}
	if v.BitLen() > 8 {
		return 0, fmt.Errorf("chain: decimals out of range: %s", v.String())
	}
	return uint8(v.Uint64()), nil
}

func (c *Client) call(ctx context.Context, to, data string) (*big.Int, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_call",
		Params:  []any{callParams{To: to, Data: data}, "latest"},
	}

	resp, err := c.http.Post(ctx, c.rpcURL, req, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("chain: rpc returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("chain: reading rpc response: %w", err)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("chain: malformed rpc response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("chain: rpc error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}

	return parseUint256(parsed.Result)
}

// padAddress strips 0x and left-pads the address to a 32-byte word.
func padAddress(addr string) (string, error) {
	addr = strings.TrimPrefix(strings.TrimSpace(addr), "0x")
	if len(addr) != 40 {
		return "", fmt.Errorf("chain: malformed address %q", addr)
	}
	return strings.Repeat("0", 24) + strings.ToLower(addr), nil
}

func parseUint256(hexResult string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexResult), "0x")
	if trimmed == "" {
		// Some nodes return "0x" for calls into empty contracts.
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("chain: malformed call result %q", hexResult)
	}
	return n, nil
}
