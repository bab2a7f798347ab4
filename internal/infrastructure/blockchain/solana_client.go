package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
)

// SolanaClient provides the Solana-side RPC calls the on-chain scan
// verification strategy and the reward/refund disbursers need: balance
// reads, transaction lookups by signature, latest-blockhash reads and raw
// transaction submission. It speaks the JSON-RPC wire
// protocol directly (rather than pulling in solana-go's rpc subpackage and
// its websocket/streaming surface, which this proxy's request/response
// verification path never needs).
type SolanaClient struct {
	rpcURL string
	http   *http.Client
}

// NewSolanaClient builds a client for a Solana RPC endpoint. No connection
// is opened until the first call.
func NewSolanaClient(rpcURL string) (*SolanaClient, error) {
	return &SolanaClient{
		rpcURL: rpcURL,
		http:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *SolanaClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("solana rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// GetBalance returns the lamport balance of a base58 address.
func (c *SolanaClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return 0, err
	}

	var out struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []interface{}{address}, &out); err != nil {
		return 0, err
	}
	return out.Value, nil
}

// TransactionMeta is the subset of a confirmed transaction's metadata the
// payment verifier and disbursers need.
type TransactionMeta struct {
	Slot          uint64   `json:"slot"`
	BlockTime     *int64   `json:"blockTime"`
	Err           any      `json:"err"`
	AccountKeys   []string `json:"-"`
	PreBalances   []uint64 `json:"-"`
	PostBalances  []uint64 `json:"-"`
	Confirmations int      `json:"confirmations"`
}

// GetTransaction fetches a confirmed transaction by its base58 signature,
// used by strategy T to eagerly enrich payer and by strategy O to confirm
// a reference-bearing transaction landed and credited the expected amount.
func (c *SolanaClient) GetTransaction(ctx context.Context, signature string) (*TransactionMeta, error) {
	if _, err := solana.SignatureFromBase58(signature); err != nil {
		return nil, err
	}

	var out struct {
		Slot      uint64 `json:"slot"`
		BlockTime *int64 `json:"blockTime"`
		Meta      struct {
			Err          any      `json:"err"`
			PreBalances  []uint64 `json:"preBalances"`
			PostBalances []uint64 `json:"postBalances"`
		} `json:"meta"`
		Transaction struct {
			Message struct {
				AccountKeys []string `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
	}

	params := []interface{}{signature, map[string]interface{}{
		"encoding":                       "jsonParsed",
		"maxSupportedTransactionVersion": 0,
	}}
	if err := c.call(ctx, "getTransaction", params, &out); err != nil {
		return nil, err
	}

	return &TransactionMeta{
		Slot:         out.Slot,
		BlockTime:    out.BlockTime,
		Err:          out.Meta.Err,
		AccountKeys:  out.Transaction.Message.AccountKeys,
		PreBalances:  out.Meta.PreBalances,
		PostBalances: out.Meta.PostBalances,
	}, nil
}

// GetLatestBlockhash fetches a recent blockhash for transaction construction.
func (c *SolanaClient) GetLatestBlockhash(ctx context.Context) (string, error) {
	var out struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	params := []interface{}{map[string]interface{}{"commitment": "finalized"}}
	if err := c.call(ctx, "getLatestBlockhash", params, &out); err != nil {
		return "", err
	}
	return out.Value.Blockhash, nil
}

// SendTransaction broadcasts a base64-encoded, fully-signed transaction and
// returns its signature. Confirmation is the caller's responsibility: the
// reward leg broadcasts fire-and-forget, the refund leg polls
// GetTransaction afterward since it requires confirmation before booking
// the transfer as settled.
func (c *SolanaClient) SendTransaction(ctx context.Context, rawTxBase64 string) (string, error) {
	var signature string
	params := []interface{}{rawTxBase64, map[string]interface{}{"encoding": "base64"}}
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// Close is a no-op; SolanaClient holds no persistent connection.
func (c *SolanaClient) Close() {}
