// Package signature signs gateway parameters with HMAC-SHA256 over the
// sorted key/value concatenation.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Canonical returns the string that gets signed: every key immediately
// followed by its value, keys in ascending order, no separators.
func Canonical(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(Value(params[k]))
	}
	return b.String()
}

// Value renders a parameter the way it is signed and sent. Maps, slices and
// structs are encoded as JSON; everything else goes through cast.
func Value(v any) string {
	switch v.(type) {
	case nil, []byte, fmt.Stringer, error:
		return cast.ToString(v)
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return cast.ToString(v)
}

// Sign returns the lowercase hex HMAC-SHA256 of Canonical(params) keyed with secret.
func Sign(params map[string]any, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Canonical(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is the signature of params under secret.
func Verify(params map[string]any, secret, sig string) bool {
	expected := Sign(params, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sig)))
}
