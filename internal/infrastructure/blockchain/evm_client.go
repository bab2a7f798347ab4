package blockchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// dialEVMClient and getClientChainID are package-level seams so tests can
// inject dial/chain-id failures without a live RPC endpoint.
var (
	dialEVMClient = ethclient.Dial
	getClientChainID = func(c *ethclient.Client, ctx context.Context) (*big.Int, error) {
		return c.ChainID(ctx)
	}
)

// EVMClient provides EVM blockchain interaction used by strategy T/O
// payment verification and the EVM leg of reward/refund disbursement.
type EVMClient struct {
	client  *ethclient.Client
	chainID *big.Int
	rpcURL  string

	// callView, when set, overrides CallView entirely — used by
	// NewEVMClientWithCallView to inject deterministic contract-read
	// behavior in tests without a live node.
	callView func(ctx context.Context, to string, data []byte) ([]byte, error)

	// filterLogs, when set, overrides FilterLogs entirely — used by
	// NewEVMClientWithFilterLogs to inject deterministic log results in
	// tests without a live node.
	filterLogs func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)

	// blockNumber, when set, overrides GetBlockNumber entirely — set
	// alongside filterLogs by NewEVMClientWithFilterLogs, since that
	// constructor has no underlying network connection to ask for the
	// latest block.
	blockNumber func(ctx context.Context) (uint64, error)
}

// NewEVMClient creates a new EVM client
func NewEVMClient(rpcURL string) (*EVMClient, error) {
	client, err := dialEVMClient(rpcURL)
	if err != nil {
		return nil, err
	}

	chainID, err := getClientChainID(client, context.Background())
	if err != nil {
		return nil, err
	}

	return &EVMClient{
		client:  client,
		chainID: chainID,
		rpcURL:  rpcURL,
	}, nil
}

// NewEVMClientWithCallView builds an EVMClient whose CallView calls fn
// instead of touching the network, and whose ChainID defaults to 1 when
// chainID is nil. Intended for unit tests of callers that only need
// contract-read behavior (e.g. verifying an offer's funded-wallet balance).
func NewEVMClientWithCallView(chainID *big.Int, fn func(ctx context.Context, to string, data []byte) ([]byte, error)) *EVMClient {
	if chainID == nil {
		chainID = big.NewInt(1)
	}
	return &EVMClient{chainID: chainID, callView: fn}
}

// NewEVMClientWithFilterLogs builds an EVMClient whose FilterLogs calls fn
// and whose GetBlockNumber always reports latestBlock, instead of touching
// the network. Intended for unit tests of the EVM on-chain-scan
// verification strategy.
func NewEVMClientWithFilterLogs(chainID *big.Int, latestBlock uint64, fn func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)) *EVMClient {
	if chainID == nil {
		chainID = big.NewInt(1)
	}
	return &EVMClient{
		chainID:     chainID,
		filterLogs:  fn,
		blockNumber: func(context.Context) (uint64, error) { return latestBlock, nil },
	}
}

// ChainID returns the chain ID
func (c *EVMClient) ChainID() *big.Int {
	return c.chainID
}

// GetBalance gets the native token balance of an address
func (c *EVMClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	addr := common.HexToAddress(address)
	return c.client.BalanceAt(ctx, addr, nil)
}

// GetTokenBalance gets the ERC20 token balance of an address
func (c *EVMClient) GetTokenBalance(ctx context.Context, tokenAddress, ownerAddress string) (*big.Int, error) {
	owner := common.HexToAddress(ownerAddress)

	// balanceOf(address) selector: 0x70a08231
	data := append(common.Hex2Bytes("70a08231"), common.LeftPadBytes(owner.Bytes(), 32)...)

	result, err := c.CallView(ctx, tokenAddress, data)
	if err != nil {
		return nil, err
	}

	return new(big.Int).SetBytes(result), nil
}

// CallView performs a read-only contract call. When the client was built
// via NewEVMClientWithCallView, the injected function handles the call
// instead of touching the network.
func (c *EVMClient) CallView(ctx context.Context, to string, data []byte) ([]byte, error) {
	if c.callView != nil {
		return c.callView(ctx, to, data)
	}

	addr := common.HexToAddress(to)
	msg := ethereum.CallMsg{
		To:   &addr,
		Data: data,
	}
	return c.client.CallContract(ctx, msg, nil)
}

// GetTransaction gets transaction details
func (c *EVMClient) GetTransaction(ctx context.Context, txHash string) (*types.Transaction, bool, error) {
	hash := common.HexToHash(txHash)
	return c.client.TransactionByHash(ctx, hash)
}

// GetTransactionReceipt gets transaction receipt
func (c *EVMClient) GetTransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	hash := common.HexToHash(txHash)
	return c.client.TransactionReceipt(ctx, hash)
}

// FilterLogs returns logs matching q. When the client was built via
// NewEVMClientWithFilterLogs, the injected function handles the query
// instead of touching the network. Used by the EVM on-chain-scan
// verification strategy to find ERC20 Transfer events by recipient.
func (c *EVMClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if c.filterLogs != nil {
		return c.filterLogs(ctx, q)
	}
	return c.client.FilterLogs(ctx, q)
}

// GetBlockNumber gets the latest block number
func (c *EVMClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	if c.blockNumber != nil {
		return c.blockNumber(ctx)
	}
	return c.client.BlockNumber(ctx)
}

// EstimateGas estimates gas for a transaction
func (c *EVMClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.client.EstimateGas(ctx, msg)
}

// Close closes the client connection. No-op when the client was built via
// NewEVMClientWithCallView (no underlying network connection to close).
func (c *EVMClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
