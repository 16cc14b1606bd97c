package nmdc

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// DefaultEncoding is WINDOWS-1252, the default legacy hub encoding
// (spec.md §4.5, §6).
var DefaultEncoding encoding.Encoding = charmap.Windows1252

// NamedEncoding resolves a hub's configured encoding name; unknown names
// fall back to DefaultEncoding.
func NamedEncoding(name string) encoding.Encoding {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "WINDOWS-1252", "CP1252":
		return charmap.Windows1252
	case "ISO-8859-1", "LATIN1":
		return charmap.ISO8859_1
	case "UTF-8", "UTF8":
		return encoding.Nop
	default:
		return charmap.Windows1252
	}
}

// EncodeOutbound converts a UTF-8 command string to a hub's legacy wire
// encoding. Runes the target encoding can't represent become \uXXXX /
// \UXXXXXXXX escapes rather than being dropped (spec.md §4.5, §6).
func EncodeOutbound(s string, enc encoding.Encoding) []byte {
	encoder := enc.NewEncoder()
	var out []byte
	for _, r := range s {
		encoded, err := encoder.String(string(r))
		if err != nil || encoded == "" {
			out = append(out, []byte(unicodeEscape(r))...)
			continue
		}
		out = append(out, []byte(encoded)...)
	}
	return out
}

func unicodeEscape(r rune) string {
	if r > 0xFFFF {
		return fmt.Sprintf("\\U%08X", r)
	}
	return fmt.Sprintf("\\u%04X", r)
}

// DecodeInbound converts wire bytes in a hub's legacy encoding to UTF-8,
// then decodes any \uXXXX/\UXXXXXXXX escape sequences found in the result
// (spec.md §6).
func DecodeInbound(raw []byte, enc encoding.Encoding) (string, error) {
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return decodeUnicodeEscapes(string(decoded)), nil
}

func decodeUnicodeEscapes(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == 'u' || s[i+1] == 'U') {
			width := 4
			if s[i+1] == 'U' {
				width = 8
			}
			if i+2+width <= len(s) {
				if v, err := strconv.ParseUint(s[i+2:i+2+width], 16, 32); err == nil {
					b.WriteRune(rune(v))
					i += 2 + width
					continue
				}
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
