package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// APIKeyHeader carries the API key on authenticated exchange requests.
const APIKeyHeader = "X-MEXC-APIKEY"

// QuerySigner holds the credentials for HMAC-authenticated exchange requests.
// The signature is HMAC-SHA256(secret, canonical query) encoded as lowercase
// hex.
type QuerySigner struct {
	Key    string // API key, sent in APIKeyHeader
	Secret string // API secret, never sent
}

// NewQuerySigner returns a signer for the given credentials.
func NewQuerySigner(key, secret string) *QuerySigner {
	return &QuerySigner{Key: key, Secret: secret}
}

// CanonicalQuery serialises params as k1=v1&k2=v2 with keys in lexicographic
// order. Values are written as-is.
func CanonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// Sign returns the 64-character hex signature of query.
func (s *QuerySigner) Sign(query string) string {
	return hmacSHA256Hex([]byte(s.Secret), query)
}

// SignedQuery adds the current millisecond timestamp to params and returns
// the canonical query with "&signature=<hex>" appended. params is not
// modified.
func (s *QuerySigner) SignedQuery(params map[string]string) string {
	return s.SignedQueryAt(params, time.Now().UnixMilli())
}

// SignedQueryAt is like SignedQuery but lets the caller supply the
// millisecond timestamp (useful for deterministic testing).
func (s *QuerySigner) SignedQueryAt(params map[string]string, unixMs int64) string {
	withTS := make(map[string]string, len(params)+1)
	for k, v := range params {
		withTS[k] = v
	}
	withTS["timestamp"] = strconv.FormatInt(unixMs, 10)

	query := CanonicalQuery(withTS)
	return query + "&signature=" + s.Sign(query)
}

// hmacSHA256Hex computes HMAC-SHA256 of message using key and returns the
// lowercase hex digest.
func hmacSHA256Hex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (s *QuerySigner) String() string {
	redact := func(v string) string {
		if len(v) <= 4 {
			return "****"
		}
		return v[:4] + "****"
	}
	return fmt.Sprintf("QuerySigner{key=%s, secret=%s}", redact(s.Key), redact(s.Secret))
}
