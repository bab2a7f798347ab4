// Package walletsig verifies wallet-signed messages for both chain
// families the proxy settles on: EVM (secp256k1 + Keccak) and Solana
// (ed25519).
package walletsig

import (
	"crypto/ed25519"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ErrInvalidSignature is returned by both verifiers on a signature/address mismatch.
var ErrInvalidSignature = errors.New("invalid wallet signature")

// VerifyEVM checks that signatureHex (a 65-byte r||s||v hex signature, as
// produced by personal_sign) was produced by the private key behind
// walletAddress over message, using the same Ethereum signed-message
// prefix every wallet provider applies before signing.
func VerifyEVM(walletAddress, message, signatureHex string) error {
	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return err
	}
	if len(sig) != 65 {
		return ErrInvalidSignature
	}
	// Ecrecover expects v in {0,1}; wallets commonly emit {27,28}.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest := accounts.TextHash([]byte(message))
	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return ErrInvalidSignature
	}

	recovered := crypto.PubkeyToAddress(*pubKey).Hex()
	if !strings.EqualFold(recovered, walletAddress) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifySolana checks that signatureB58 (a base58-encoded 64-byte ed25519
// signature) was produced by the keypair behind walletAddress (a base58
// public key) over message.
func VerifySolana(walletAddress, message, signatureB58 string) error {
	pubKey, err := solana.PublicKeyFromBase58(walletAddress)
	if err != nil {
		return err
	}
	sig, err := base58.Decode(signatureB58)
	if err != nil {
		return err
	}
	if len(sig) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(pubKey[:], []byte(message), sig) {
		return ErrInvalidSignature
	}
	return nil
}
