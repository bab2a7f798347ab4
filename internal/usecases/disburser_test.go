package usecases

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"blinkgate.backend/internal/infrastructure/blockchain"
)

func randomSolanaKey(t *testing.T) (priv solana.PrivateKey, pub solana.PublicKey) {
	t.Helper()
	pubBytes, privBytes, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	priv, err = solana.PrivateKeyFromBase58(base58.Encode(privBytes))
	require.NoError(t, err)
	return priv, solana.PublicKeyFromBytes(pubBytes)
}

func randomSolanaPubkey(t *testing.T) solana.PublicKey {
	t.Helper()
	_, pub := randomSolanaKey(t)
	return pub
}

// stubSolanaRPC serves the two JSON-RPC methods SolanaDisburser.Transfer
// needs and hands the caller the raw base64 transaction submitted to
// sendTransaction for inspection.
func stubSolanaRPC(t *testing.T, onSendTransaction func(rawTxBase64 string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")

		switch req.Method {
		case "getLatestBlockhash":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":{"blockhash":"` + solana.SystemProgramID.String() + `"}}}`))
		case "sendTransaction":
			rawTx, _ := req.Params[0].(string)
			onSendTransaction(rawTx)
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"5stubbedSignature"}`))
		default:
			t.Fatalf("unexpected RPC method %q", req.Method)
		}
	}))
}

func TestSolanaDisburser_Transfer_Native(t *testing.T) {
	senderKey, sender := randomSolanaKey(t)
	recipient := randomSolanaPubkey(t)

	var rawTx string
	server := stubSolanaRPC(t, func(tx string) { rawTx = tx })
	defer server.Close()

	client, err := blockchain.NewSolanaClient(server.URL)
	require.NoError(t, err)
	d := NewSolanaDisburser(client)

	sig, err := d.Transfer(context.Background(), senderKey.String(), recipient.String(), "", "1000", "")
	require.NoError(t, err)
	require.Equal(t, "5stubbedSignature", sig)
	require.NotEmpty(t, rawTx)
	_ = sender
}

// TestSolanaDisburser_Transfer_SPL_UsesAssociatedTokenAccounts is the
// direct regression test for the fungible transfer path: it fails if the
// disburser ever regresses to passing raw wallet public keys as SPL token
// accounts instead of deriving the sender's and recipient's associated
// token accounts from the mint.
func TestSolanaDisburser_Transfer_SPL_UsesAssociatedTokenAccounts(t *testing.T) {
	senderKey, sender := randomSolanaKey(t)
	recipient := randomSolanaPubkey(t)
	mint := randomSolanaPubkey(t)

	wantFromATA, _, err := solana.FindAssociatedTokenAddress(sender, mint)
	require.NoError(t, err)
	wantRecipientATA, _, err := solana.FindAssociatedTokenAddress(recipient, mint)
	require.NoError(t, err)

	var rawTx string
	server := stubSolanaRPC(t, func(tx string) { rawTx = tx })
	defer server.Close()

	client, err := blockchain.NewSolanaClient(server.URL)
	require.NoError(t, err)
	d := NewSolanaDisburser(client)

	sig, err := d.Transfer(context.Background(), senderKey.String(), recipient.String(), mint.String(), "1000", "reward memo")
	require.NoError(t, err)
	require.Equal(t, "5stubbedSignature", sig)
	require.NotEmpty(t, rawTx)

	tx, err := solana.TransactionFromBase64(rawTx)
	require.NoError(t, err)

	require.Contains(t, tx.Message.AccountKeys, wantFromATA)
	require.Contains(t, tx.Message.AccountKeys, wantRecipientATA)
	require.NotContains(t, tx.Message.AccountKeys, recipient,
		"the raw recipient wallet address must not be used as the destination token account")
}

func TestSolanaDisburser_Transfer_InvalidMint(t *testing.T) {
	senderKey, _ := randomSolanaKey(t)
	recipient := randomSolanaPubkey(t)

	server := stubSolanaRPC(t, func(string) { t.Fatal("sendTransaction should not be reached") })
	defer server.Close()

	client, err := blockchain.NewSolanaClient(server.URL)
	require.NoError(t, err)
	d := NewSolanaDisburser(client)

	_, err = d.Transfer(context.Background(), senderKey.String(), recipient.String(), "not-a-pubkey", "1000", "")
	require.Error(t, err)
}
