package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexSig = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestCanonicalQuerySortsKeys(t *testing.T) {
	got := CanonicalQuery(map[string]string{
		"type":      "MARKET",
		"symbol":    "ETHUSDT",
		"quantity":  "0.5",
		"side":      "BUY",
		"timestamp": "1700000000000",
	})
	assert.Equal(t, "quantity=0.5&side=BUY&symbol=ETHUSDT&timestamp=1700000000000&type=MARKET", got)
}

func TestCanonicalQueryDoesNotEscape(t *testing.T) {
	got := CanonicalQuery(map[string]string{"a": "x y", "b": "1/2"})
	assert.Equal(t, "a=x y&b=1/2", got)
}

func TestSignIsDeterministicHex(t *testing.T) {
	s := NewQuerySigner("key", "secret")
	params := []map[string]string{
		{},
		{"symbol": "BTCUSDT"},
		{"symbol": "ETHUSDT", "side": "SELL", "quantity": "12.25", "price": "3100.5"},
	}
	for _, p := range params {
		q := CanonicalQuery(p)
		a, b := s.Sign(q), s.Sign(q)
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
		assert.Regexp(t, hexSig, a)
	}
}

func TestSignMatchesReferenceHMAC(t *testing.T) {
	s := NewQuerySigner("key", "mexc-secret")
	q := "symbol=BTCUSDT&timestamp=1700000000000"

	mac := hmac.New(sha256.New, []byte("mexc-secret"))
	mac.Write([]byte(q))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), s.Sign(q))
}

func TestSignDependsOnSecret(t *testing.T) {
	q := "symbol=BTCUSDT&timestamp=1"
	assert.NotEqual(t, NewQuerySigner("k", "a").Sign(q), NewQuerySigner("k", "b").Sign(q))
}

func TestSignedQueryAt(t *testing.T) {
	s := NewQuerySigner("key", "secret")
	params := map[string]string{"symbol": "BTCUSDT", "side": "BUY"}

	got := s.SignedQueryAt(params, 1700000000123)

	base, sig, ok := strings.Cut(got, "&signature=")
	require.True(t, ok)
	assert.Equal(t, "side=BUY&symbol=BTCUSDT&timestamp=1700000000123", base)
	assert.Equal(t, s.Sign(base), sig)
	assert.NotContains(t, params, "timestamp", "input params must not be mutated")
}

func TestQuerySignerStringRedacts(t *testing.T) {
	s := NewQuerySigner("abcdefgh", "supersecret")
	out := s.String()
	assert.NotContains(t, out, "supersecret")
	assert.NotContains(t, out, "abcdefgh")
	assert.Contains(t, out, "abcd****")
}
