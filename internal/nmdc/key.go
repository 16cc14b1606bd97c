// Package nmdc implements the NMDC wire protocol details the daemon core
// owns directly: lock/key derivation, command framing, and legacy-encoding
// conversion (spec.md §4.5, §6).
package nmdc

import (
	"fmt"
	"strconv"
	"strings"
)

// ClientID and ClientVersion make up the Pk tag appended to our lock
// (spec.md §4.5: "the Pk tag appended to the lock is <id><version>").
const (
	ClientID      = "ShakesPeerGo"
	ClientVersion = "1,0000"
)

// quotedBytes must never appear literally in a $Key reply; NMDC escapes
// them as "/%DCN<decimal>%/" (spec.md §4.5).
var quotedBytes = map[byte]bool{0: true, 5: true, 36: true, 96: true, 124: true, 126: true}

// DeriveKey computes the $Key reply for a hub's $Lock challenge: XOR of
// adjacent lock bytes, with the first byte XORed against the last two lock
// bytes and 0x05, each result byte then nibble-swapped, with
// protocol-significant bytes decimal-escaped.
func DeriveKey(lock string) string {
	l := []byte(lock)
	n := len(l)
	if n == 0 {
		return ""
	}
	raw := make([]byte, n)
	raw[0] = l[0] ^ l[n-1] ^ l[n-2] ^ 5
	for i := 1; i < n; i++ {
		raw[i] = l[i] ^ l[i-1]
	}
	for i := range raw {
		raw[i] = (raw[i] << 4) | (raw[i] >> 4)
	}

	var b strings.Builder
	for _, c := range raw {
		if quotedBytes[c] {
			b.WriteString(fmt.Sprintf("/%%DCN%03d%%/", c))
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// PkSuffix returns the Pk tag appended to our outgoing lock.
func PkSuffix() string {
	return "Pk=" + ClientID + ClientVersion
}

// IsExtendedProtocol reports whether a hub's lock signals extended
// protocol support (spec.md §4.5).
func IsExtendedProtocol(lock string) bool {
	return strings.HasPrefix(lock, "EXTENDEDPROTOCOL")
}

// unquoteDecimalEscapes reverses the "/%DCN<decimal>%/" quoting scheme,
// used when validating a peer's $Key reply against our own lock.
func unquoteDecimalEscapes(s string) []byte {
	var out []byte
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "/%DCN") {
			end := strings.Index(s[i+5:], "%/")
			if end >= 0 {
				if v, err := strconv.Atoi(s[i+5 : i+5+end]); err == nil {
					out = append(out, byte(v))
					i += 5 + end + 2
					continue
				}
			}
		}
		out = append(out, s[i])
		i++
	}
	return out
}

// ValidateKey reports whether reply is the correct $Key response to the
// lock we sent as the non-initiating side of a peer connection handshake.
func ValidateKey(lock, reply string) bool {
	return string(unquoteDecimalEscapes(reply)) == string(unquoteDecimalEscapes(DeriveKey(lock)))
}
