package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestParseWallet(t *testing.T) {
	hexKey := strings.Repeat("ab", WalletSize)
	w, err := ParseWallet(hexKey)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if w.String() != hexKey {
		t.Fatalf("round trip mismatch: %s", w)
	}
	prefixed, err := ParseWallet("0x" + strings.ToUpper(hexKey))
	if err != nil || prefixed != w {
		t.Fatalf("expected prefixed upper-case key to parse to same wallet: %v", err)
	}
	for _, bad := range []string{"", "abc", strings.Repeat("zz", WalletSize), strings.Repeat("ab", WalletSize+1)} {
		if _, err := ParseWallet(bad); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ParseWallet(%q) expected invalid input, got %v", bad, err)
		}
	}
}

func TestWalletFromBytes(t *testing.T) {
	raw := make([]byte, WalletSize)
	raw[0] = 7
	w, err := WalletFromBytes(raw)
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	raw[0] = 9
	if w[0] != 7 {
		t.Fatalf("wallet must copy input bytes")
	}
	b := w.Bytes()
	b[0] = 1
	if w[0] != 7 {
		t.Fatalf("Bytes must return a copy")
	}
	if _, err := WalletFromBytes(raw[:5]); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for short key, got %v", err)
	}
	if !(Wallet{}).IsZero() || w.IsZero() {
		t.Fatalf("unexpected IsZero results")
	}
}

func TestWalletJSON(t *testing.T) {
	w := Wallet{0xde, 0xad}
	data, err := json.Marshal(map[string]Wallet{"wallet": w})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]Wallet
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["wallet"] != w {
		t.Fatalf("wallet mismatch after json round trip")
	}
	if err := json.Unmarshal([]byte(`{"wallet":"nothex"}`), &out); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestDeriveAddressDeterministic(t *testing.T) {
	a := DeriveAddress(Wallet{1})
	if a != DeriveAddress(Wallet{1}) {
		t.Fatalf("address derivation not deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("expected 32 byte hex address, got %q", a)
	}
	if a == DeriveAddress(Wallet{2}) {
		t.Fatalf("distinct wallets must derive distinct addresses")
	}
	if NewFisherRecord(Wallet{1}).Address != a {
		t.Fatalf("new record must carry the derived address")
	}
}

func TestActorOwns(t *testing.T) {
	rec := NewFisherRecord(Wallet{3})
	if !(Actor{Wallet: Wallet{3}}).Owns(rec) {
		t.Fatalf("owner must own record")
	}
	if (Actor{Wallet: Wallet{4}}).Owns(rec) {
		t.Fatalf("other wallet must not own record")
	}
	if (Actor{}).Owns(FisherRecord{}) {
		t.Fatalf("zero actor must never own a record")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatalf("nil is not retryable")
	}
	for _, err := range []error{ErrAlreadyExists, ErrNotFound, ErrUnauthorized, ErrOverflow, ErrInvalidInput, RuleViolationError{}} {
		if IsRetryable(err) {
			t.Fatalf("%v must not be retryable", err)
		}
	}
	if !IsRetryable(errors.New("connection reset")) {
		t.Fatalf("backend errors should be retryable")
	}
	if !IsRetryable(fmt.Errorf("fisher ab: %w", ErrConflict)) {
		t.Fatalf("a lost write race should be retryable")
	}
}
