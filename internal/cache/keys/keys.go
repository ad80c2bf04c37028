// Package keys derives cache keys for proxied isochrone requests.
package keys

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const isochronePrefix = "iso"

// IsochroneKey hashes the profile together with the canonical JSON form of body,
// so requests differing only in whitespace or key order share an entry.
func IsochroneKey(profile string, body []byte) (string, error) {
	canon, err := Canonical(body)
	if err != nil {
		return "", err
	}
	p := sanitizeProfile(profile)
	h := xxhash.New()
	_, _ = h.WriteString(p)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(canon)
	return fmt.Sprintf("%s:%s:%016x", isochronePrefix, p, h.Sum64()), nil
}

// Canonical re-encodes a JSON document with sorted object keys and no spacing.
func Canonical(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode request body: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode request body: trailing data")
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return out, nil
}

func sanitizeProfile(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "default"
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := r
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_':
		default:
			out = '-'
		}
		if out == '-' && prev == '-' {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}
