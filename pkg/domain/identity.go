package domain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// WalletSize is the byte length of a wallet public key.
const WalletSize = 32

// addressSeed prefixes the wallet bytes when deriving a record's storage address.
const addressSeed = "fisher"

// Wallet identifies a fisher record owner. It is the raw ed25519 public key.
type Wallet [WalletSize]byte

// ParseWallet decodes a hex encoded wallet key, with or without a 0x prefix.
func ParseWallet(s string) (Wallet, error) {
	var w Wallet
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(raw) != hex.EncodedLen(WalletSize) {
		return w, fmt.Errorf("%w: wallet must be %d hex characters, got %d", ErrInvalidInput, hex.EncodedLen(WalletSize), len(raw))
	}
	if _, err := hex.Decode(w[:], []byte(raw)); err != nil {
		return Wallet{}, fmt.Errorf("%w: wallet: %v", ErrInvalidInput, err)
	}
	return w, nil
}

// WalletFromBytes copies a public key into a Wallet.
func WalletFromBytes(b []byte) (Wallet, error) {
	var w Wallet
	if len(b) != WalletSize {
		return w, fmt.Errorf("%w: wallet must be %d bytes, got %d", ErrInvalidInput, WalletSize, len(b))
	}
	copy(w[:], b)
	return w, nil
}

// IsZero reports whether the wallet is unset.
func (w Wallet) IsZero() bool { return w == Wallet{} }

// Bytes returns a copy of the key bytes.
func (w Wallet) Bytes() []byte {
	out := make([]byte, WalletSize)
	copy(out, w[:])
	return out
}

func (w Wallet) String() string { return hex.EncodeToString(w[:]) }

// MarshalText encodes the wallet as lowercase hex.
func (w Wallet) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

// UnmarshalText decodes a hex wallet.
func (w *Wallet) UnmarshalText(text []byte) error {
	parsed, err := ParseWallet(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// DeriveAddress returns the deterministic storage address of the record owned
// by wallet: keccak256("fisher" || wallet) in hex. Lookups never need an index.
func DeriveAddress(wallet Wallet) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(addressSeed))
	h.Write(wallet[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Actor is a caller whose control of Wallet has already been verified.
type Actor struct {
	Wallet Wallet
}

// Owns reports whether the actor is the owner of record.
func (a Actor) Owns(record FisherRecord) bool {
	return !a.Wallet.IsZero() && a.Wallet == record.Wallet
}
