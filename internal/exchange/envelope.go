// Package exchange implements the [sx-aes-1] secret exchange: an
// unauthenticated Diffie-Hellman key agreement followed by a single
// AES-128-CBC encrypted value, used to move a secret between the daemon
// and the prompter process without exposing it on the bus or in a
// terminal.
package exchange

import (
	"encoding/base64"
	"strings"
)

// protocolHeader prefixes every [sx-aes-1] payload.
const protocolHeader = "[sx-aes-1]\n"

// Field names used by the payload's key=value lines.
const (
	fieldPublic  = "public"
	fieldPrivate = "private"
	fieldSecret  = "secret"
	fieldIV      = "iv"
)

// encode renders fields as a [sx-aes-1] payload: the protocol header
// followed by one "key=base64(value)" line per field, standard base64
// with padding. Field iteration order is unspecified.
func encode(fields map[string][]byte) string {
	var b strings.Builder
	b.WriteString(protocolHeader)
	first := true
	for k, v := range fields {
		if !first {
			b.WriteByte('\n')
		}
		first = false
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(base64.StdEncoding.EncodeToString(v))
	}
	return b.String()
}

// decode parses a [sx-aes-1] payload into its field map. It fails (ok ==
// false) if the header is missing, if any non-empty line lacks an "="
// separator, or if any value fails to base64-decode to a non-empty
// buffer. A trailing empty line (from a final "\n") is ignored. Last
// value wins on duplicate keys.
func decode(payload string) (map[string][]byte, bool) {
	rest, ok := strings.CutPrefix(payload, protocolHeader)
	if !ok {
		return nil, false
	}

	fields := make(map[string][]byte)
	for _, line := range strings.Split(rest, "\n") {
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, false
		}
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil || len(decoded) == 0 {
			return nil, false
		}
		fields[k] = decoded
	}
	return fields, true
}
