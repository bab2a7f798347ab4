// Package usecases implements the application-level orchestration on top
// of the domain repositories and infrastructure
// adapters.
package usecases

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	domainerrors "blinkgate.backend/internal/domain/errors"
	"blinkgate.backend/internal/infrastructure/blockchain"
	"blinkgate.backend/internal/infrastructure/facilitator"
)

// erc20TransferEventTopic is keccak256("Transfer(address,address,uint256)"),
// the log topic every standard ERC20 Transfer event carries.
var erc20TransferEventTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// evmOnChainScanBlockWindow bounds how far back FilterLogs searches on each
// retry attempt: wide enough to absorb confirmation lag, narrow enough to
// stay cheap against a public RPC endpoint.
const evmOnChainScanBlockWindow = uint64(2000)

// PaymentProof is the sum type payment verification converges on: exactly one of the facilitator, trusted-hash, or on-chain strategies
// produced the (signature, payer) pair the run gets written with.
type PaymentProof struct {
	Signature string
	Payer     string
}

// VerificationInput carries everything the verifier might need,
// regardless of which strategy ends up handling the request.
type VerificationInput struct {
	Envelope  string // base64 X-Payment header, strategy F
	TxHash    string // strategy T
	Reference string // always present; strategy O keys off this alone

	Recipient string
	Mint      string
	Amount    string
	Network   string
}

// Verifier picks a payment verification strategy from request shape and
// returns the (signature, payer) pair the orchestrator writes atomically.
type Verifier struct {
	facilitatorClient *facilitator.Client
	clients           *blockchain.ClientFactory
	evmRPCURL         string
	solanaRPCURL      string
	onChainMaxRetries int
	onChainRetryDelay time.Duration
}

// NewVerifier constructs a Verifier. evmRPCURL/solanaRPCURL select which
// chain strategy O scans and strategy T enriches against.
func NewVerifier(facilitatorClient *facilitator.Client, clients *blockchain.ClientFactory, evmRPCURL, solanaRPCURL string) *Verifier {
	return &Verifier{
		facilitatorClient: facilitatorClient,
		clients:           clients,
		evmRPCURL:         evmRPCURL,
		solanaRPCURL:      solanaRPCURL,
		onChainMaxRetries: 5,
		onChainRetryDelay: 2 * time.Second,
	}
}

// Verify dispatches to strategy F, T, or O based on which fields of in
// are populated. Exactly one of Envelope/TxHash should be set for F/T;
// when neither is set, O scans the chain for Reference.
func (v *Verifier) Verify(ctx context.Context, in VerificationInput) (*PaymentProof, error) {
	switch {
	case in.Envelope != "":
		return v.verifyFacilitator(ctx, in)
	case in.TxHash != "":
		return v.verifyTrustedTxHash(ctx, in)
	default:
		return v.verifyOnChainScan(ctx, in)
	}
}

// verifyFacilitator implements strategy F: ask a facilitator to verify and
// then settle a pre-signed payment envelope, and read the effective payer
// back out of the verify response (the token-transfer authority, which the
// facilitator client already distinguishes from the broadcast fee payer).
func (v *Verifier) verifyFacilitator(ctx context.Context, in VerificationInput) (*PaymentProof, error) {
	envelope, err := base64.StdEncoding.DecodeString(in.Envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed payment envelope", domainerrors.ErrPaymentVerificationFailed)
	}

	req := facilitator.Requirements{
		Recipient: in.Recipient,
		Amount:    in.Amount,
		Mint:      in.Mint,
		Network:   in.Network,
		Scheme:    "exact",
	}

	result, err := v.facilitatorClient.Verify(ctx, envelope, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrPaymentVerificationFailed, err.Error())
	}

	if err := v.facilitatorClient.Settle(ctx, envelope, req); err != nil {
		return nil, fmt.Errorf("%w: settlement failed: %s", domainerrors.ErrPaymentVerificationFailed, err.Error())
	}

	signature, err := envelopeSignature(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrPaymentVerificationFailed, err.Error())
	}

	return &PaymentProof{Signature: signature, Payer: result.Payer}, nil
}

// verifyTrustedTxHash implements strategy T: trust the caller's
// counterparty already settled this, and store the hash as signature.
// Payer is eagerly enriched by fetching the transaction when the
// configured chain client can resolve it, so refund targeting doesn't
// silently degrade to the fee payer when it doesn't have to.
func (v *Verifier) verifyTrustedTxHash(ctx context.Context, in VerificationInput) (*PaymentProof, error) {
	proof := &PaymentProof{Signature: in.TxHash}

	if in.Network == "solana" || in.Network == "solana-devnet" || in.Network == "solana-mainnet" {
		client, err := v.clients.GetSolanaClient(v.solanaRPCURL)
		if err == nil {
			if meta, err := client.GetTransaction(ctx, in.TxHash); err == nil && len(meta.AccountKeys) > 0 {
				proof.Payer = meta.AccountKeys[0]
			}
		}
		return proof, nil
	}

	client, err := v.clients.GetEVMClient(v.evmRPCURL)
	if err == nil {
		if tx, _, err := client.GetTransaction(ctx, in.TxHash); err == nil && tx != nil {
			signer := types.LatestSignerForChainID(client.ChainID())
			if from, err := types.Sender(signer, tx); err == nil {
				proof.Payer = from.Hex()
			}
		}
	}
	return proof, nil
}

// verifyOnChainScan implements strategy O: there is no envelope and no
// trusted tx-hash, only a reference. Poll the configured chain (bounded
// retry for confirmation/propagation lag) for a confirmed transaction
// that credited the expected recipient at least the expected amount.
func (v *Verifier) verifyOnChainScan(ctx context.Context, in VerificationInput) (*PaymentProof, error) {
	if in.Network == "solana" || in.Network == "solana-devnet" || in.Network == "solana-mainnet" {
		return v.verifyOnChainScanSolana(ctx, in)
	}
	return v.verifyOnChainScanEVM(ctx, in)
}

// verifyOnChainScanEVM implements strategy O for EVM chains by filtering
// ERC20 Transfer logs emitted by in.Mint for a credit to in.Recipient of at
// least in.Amount, polling a bounded number of times to absorb confirmation
// lag. There is no reference field on an ERC20 Transfer event (and a plain
// native-asset transfer to an EOA emits no log at all), so unlike strategy
// O on Solana this can't correlate against in.Reference directly — it
// trusts the first matching credit within the scanned block window, which
// is only safe for mints/offers where concurrent unrelated transfers to the
// same recipient are rare. Native-asset on-chain scan isn't supported: it
// would need a block-range-scanning indexer this proxy doesn't run.
func (v *Verifier) verifyOnChainScanEVM(ctx context.Context, in VerificationInput) (*PaymentProof, error) {
	if in.Mint == "" {
		return nil, fmt.Errorf("%w: on-chain scan is not supported for native EVM transfers, only ERC20", domainerrors.ErrPaymentVerificationFailed)
	}

	client, err := v.clients.GetEVMClient(v.evmRPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrPaymentVerificationFailed, err.Error())
	}

	wantAmount, ok := new(big.Int).SetString(in.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid amount", domainerrors.ErrPaymentVerificationFailed)
	}

	recipientTopic := common.HexToAddress(in.Recipient).Hash()

	var lastErr error
	for attempt := 0; attempt < v.onChainMaxRetries; attempt++ {
		latest, err := client.GetBlockNumber(ctx)
		if err != nil {
			lastErr = err
		} else {
			fromBlock := int64(0)
			if latest > evmOnChainScanBlockWindow {
				fromBlock = int64(latest - evmOnChainScanBlockWindow)
			}

			logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
				FromBlock: big.NewInt(fromBlock),
				ToBlock:   big.NewInt(int64(latest)),
				Addresses: []common.Address{common.HexToAddress(in.Mint)},
				Topics:    [][]common.Hash{{erc20TransferEventTopic}, nil, {recipientTopic}},
			})
			if err != nil {
				lastErr = err
			} else if proof := matchEVMTransferLog(logs, wantAmount); proof != nil {
				return proof, nil
			} else {
				lastErr = fmt.Errorf("no matching transfer log found")
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(v.onChainRetryDelay):
		}
	}

	return nil, fmt.Errorf("%w: transaction not found after retry: %v", domainerrors.ErrPaymentVerificationFailed, lastErr)
}

// matchEVMTransferLog returns the first log crediting at least wantAmount,
// normalized to a PaymentProof, or nil if none qualifies.
func matchEVMTransferLog(logs []types.Log, wantAmount *big.Int) *PaymentProof {
	for _, log := range logs {
		if len(log.Topics) < 3 || len(log.Data) < 32 {
			continue
		}
		credited := new(big.Int).SetBytes(log.Data)
		if credited.Cmp(wantAmount) < 0 {
			continue
		}
		from := common.BytesToAddress(log.Topics[1].Bytes())
		return &PaymentProof{Signature: log.TxHash.Hex(), Payer: from.Hex()}
	}
	return nil
}

func (v *Verifier) verifyOnChainScanSolana(ctx context.Context, in VerificationInput) (*PaymentProof, error) {
	client, err := v.clients.GetSolanaClient(v.solanaRPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrPaymentVerificationFailed, err.Error())
	}

	wantAmount, err := strconv.ParseUint(in.Amount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount", domainerrors.ErrPaymentVerificationFailed)
	}

	var lastErr error
	for attempt := 0; attempt < v.onChainMaxRetries; attempt++ {
		meta, err := client.GetTransaction(ctx, in.Reference)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(v.onChainRetryDelay):
			}
			continue
		}

		if meta.Err != nil {
			return nil, fmt.Errorf("%w: on-chain transaction failed", domainerrors.ErrPaymentVerificationFailed)
		}

		recipientIdx := indexOf(meta.AccountKeys, in.Recipient)
		if recipientIdx < 0 || recipientIdx >= len(meta.PreBalances) || recipientIdx >= len(meta.PostBalances) {
			return nil, fmt.Errorf("%w: recipient not credited", domainerrors.ErrPaymentVerificationFailed)
		}

		credited := meta.PostBalances[recipientIdx] - meta.PreBalances[recipientIdx]
		if credited < wantAmount {
			return nil, fmt.Errorf("%w: amount below expected", domainerrors.ErrPaymentVerificationFailed)
		}

		payer := ""
		if len(meta.AccountKeys) > 0 {
			payer = meta.AccountKeys[0]
		}
		return &PaymentProof{Signature: in.Reference, Payer: payer}, nil
	}

	return nil, fmt.Errorf("%w: transaction not found after retry: %v", domainerrors.ErrPaymentVerificationFailed, lastErr)
}

func indexOf(items []string, target string) int {
	for i, item := range items {
		if item == target {
			return i
		}
	}
	return -1
}

// envelopeSignature extracts the transaction signature carried by a
// decoded x402 payment envelope, tolerating either a top-level
// "signature" field or one nested under "payload".
func envelopeSignature(envelope []byte) (string, error) {
	var parsed struct {
		Signature string `json:"signature"`
		Payload   struct {
			Signature string `json:"signature"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(envelope, &parsed); err != nil {
		return "", fmt.Errorf("malformed payment envelope: %w", err)
	}
	if parsed.Signature != "" {
		return parsed.Signature, nil
	}
	if parsed.Payload.Signature != "" {
		return parsed.Payload.Signature, nil
	}
	return "", fmt.Errorf("envelope carries no signature")
}
