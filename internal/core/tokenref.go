package core

import (
	"fmt"
	"strings"
	"unicode"

	"fishercore/pkg/domain"

	"golang.org/x/text/unicode/norm"
)

// MaxTokenRefLen bounds a normalized token reference in bytes.
const MaxTokenRefLen = 64

// NormalizeTokenRef returns the NFC form of ref with surrounding space
// trimmed. The result must be non-empty, at most MaxTokenRefLen bytes and
// contain only printable, non-space runes.
func NormalizeTokenRef(ref string) (string, error) {
	out := strings.TrimSpace(norm.NFC.String(ref))
	if out == "" {
		return "", fmt.Errorf("%w: token reference required", domain.ErrInvalidInput)
	}
	if len(out) > MaxTokenRefLen {
		return "", fmt.Errorf("%w: token reference is %d bytes, max %d", domain.ErrInvalidInput, len(out), MaxTokenRefLen)
	}
	for _, r := range out {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return "", fmt.Errorf("%w: token reference contains %q", domain.ErrInvalidInput, r)
		}
	}
	return out, nil
}
