// Package auth verifies that a caller controls the wallet it claims. Requests
// carry an ed25519 signature over a canonical message; a valid signature
// yields a domain.Actor.
package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"fishercore/pkg/domain"
)

const messagePrefix = "fishercore"

// Operations bound into the signed message so a signature cannot be replayed
// against a different operation.
const (
	OpInitialize  = "initialize"
	OpRecordCatch = "record_catch"
)

// SignedRequest is what a client submits to prove control of Wallet.
type SignedRequest struct {
	Operation string        `json:"operation"`
	Wallet    domain.Wallet `json:"wallet"`
	Payload   string        `json:"payload"`
	Signature string        `json:"signature"`
}

// Message returns the canonical bytes covered by the signature.
func Message(op string, wallet domain.Wallet, payload string) []byte {
	return []byte(strings.Join([]string{messagePrefix, op, wallet.String(), payload}, ":"))
}

// SignRequest signs op and payload with priv.
func SignRequest(priv ed25519.PrivateKey, op, payload string) (SignedRequest, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return SignedRequest{}, fmt.Errorf("%w: private key must be %d bytes", domain.ErrInvalidInput, ed25519.PrivateKeySize)
	}
	wallet, err := domain.WalletFromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return SignedRequest{}, err
	}
	sig := ed25519.Sign(priv, Message(op, wallet, payload))
	return SignedRequest{Operation: op, Wallet: wallet, Payload: payload, Signature: hex.EncodeToString(sig)}, nil
}

// Verify checks the signature and returns the authenticated actor. Any
// malformed or mismatched signature is ErrUnauthorized.
func Verify(req SignedRequest) (domain.Actor, error) {
	if req.Wallet.IsZero() {
		return domain.Actor{}, fmt.Errorf("%w: missing wallet", domain.ErrUnauthorized)
	}
	sig, err := hex.DecodeString(req.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return domain.Actor{}, fmt.Errorf("%w: malformed signature", domain.ErrUnauthorized)
	}
	if !ed25519.Verify(ed25519.PublicKey(req.Wallet.Bytes()), Message(req.Operation, req.Wallet, req.Payload), sig) {
		return domain.Actor{}, fmt.Errorf("%w: signature does not match wallet %s", domain.ErrUnauthorized, req.Wallet)
	}
	return domain.Actor{Wallet: req.Wallet}, nil
}

// KeyPair is the on-disk form of a wallet key.
type KeyPair struct {
	Wallet     domain.Wallet      `json:"wallet"`
	PrivateKey ed25519.PrivateKey `json:"-"`
}

type keyFile struct {
	Wallet  string `json:"wallet"`
	Private string `json:"private_key"`
}

// GenerateKey creates a new wallet key from rand (crypto/rand when nil).
func GenerateKey(rand io.Reader) (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate key: %w", err)
	}
	wallet, err := domain.WalletFromBytes(pub)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Wallet: wallet, PrivateKey: priv}, nil
}

// SaveKey writes kp to path with owner-only permissions. Existing files are
// never overwritten.
func SaveKey(path string, kp KeyPair) error {
	data, err := json.MarshalIndent(keyFile{Wallet: kp.Wallet.String(), Private: hex.EncodeToString(kp.PrivateKey.Seed())}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create key file: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	return f.Close()
}

// LoadKey reads a key written by SaveKey and checks the wallet matches the seed.
func LoadKey(path string) (KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeyPair{}, fmt.Errorf("read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return KeyPair{}, fmt.Errorf("decode key file: %w", err)
	}
	seed, err := hex.DecodeString(kf.Private)
	if err != nil || len(seed) != ed25519.SeedSize {
		return KeyPair{}, fmt.Errorf("%w: private key seed must be %d hex bytes", domain.ErrInvalidInput, ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	wallet, err := domain.WalletFromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return KeyPair{}, err
	}
	if kf.Wallet != "" {
		declared, err := domain.ParseWallet(kf.Wallet)
		if err != nil {
			return KeyPair{}, err
		}
		if declared != wallet {
			return KeyPair{}, fmt.Errorf("%w: key file wallet does not match private key", domain.ErrInvalidInput)
		}
	}
	return KeyPair{Wallet: wallet, PrivateKey: priv}, nil
}
