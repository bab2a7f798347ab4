package usecases

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"

	"blinkgate.backend/internal/infrastructure/blockchain"
)

// SolanaConfirmer adapts SolanaClient.GetTransaction into TransactionConfirmer
// for refund_usecase.go's await-confirmation loop.
type SolanaConfirmer struct {
	client *blockchain.SolanaClient
}

func NewSolanaConfirmer(client *blockchain.SolanaClient) *SolanaConfirmer {
	return &SolanaConfirmer{client: client}
}

// Confirmed reports whether signature landed and succeeded (meta.Err nil).
// A not-found transaction is reported as unconfirmed, not an error, so the
// caller's retry loop keeps polling instead of aborting on a propagation lag.
func (c *SolanaConfirmer) Confirmed(ctx context.Context, signature string) (bool, error) {
	meta, err := c.client.GetTransaction(ctx, signature)
	if err != nil {
		return false, nil
	}
	return meta.Err == nil, nil
}

// EVMConfirmer adapts EVMClient.GetTransactionReceipt into TransactionConfirmer.
type EVMConfirmer struct {
	client *blockchain.EVMClient
}

func NewEVMConfirmer(client *blockchain.EVMClient) *EVMConfirmer {
	return &EVMConfirmer{client: client}
}

// Confirmed reports whether the receipt is mined and the transaction
// succeeded (status 1).
func (c *EVMConfirmer) Confirmed(ctx context.Context, signature string) (bool, error) {
	receipt, err := c.client.GetTransactionReceipt(ctx, signature)
	if err != nil || receipt == nil {
		return false, nil
	}
	return receipt.Status == types.ReceiptStatusSuccessful, nil
}
