package compare

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Encode renders r as one line terminated by a newline, in the layout consumers of the
// command parse byte for byte: ", " and ": " separators, whole floats as 1.0, and
// non-ASCII text escaped as \uXXXX.
func (r Result) Encode() ([]byte, error) {
	var b strings.Builder
	b.WriteString(`{"match": `)
	b.WriteString(strconv.FormatBool(r.Match))

	if err := writeFloatField(&b, "confidence", r.Confidence); err != nil {
		return nil, err
	}
	if err := writeFloatField(&b, "distance", r.Distance); err != nil {
		return nil, err
	}
	if r.failed {
		b.WriteString(`, "error": `)
		writeString(&b, r.Err)
	} else if err := writeFloatField(&b, "threshold", r.Threshold); err != nil {
		return nil, err
	}

	b.WriteString("}\n")
	return []byte(b.String()), nil
}

func writeFloatField(b *strings.Builder, key string, f float64) error {
	text, err := formatFloat(f)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	b.WriteString(`, "`)
	b.WriteString(key)
	b.WriteString(`": `)
	b.WriteString(text)
	return nil
}

// formatFloat writes the shortest round-tripping form, positional for exponents in [-4, 16)
// and scientific otherwise, always with a fraction or an exponent.
func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("unsupported value %v", f)
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if err != nil {
		return "", err
	}
	if exp < -4 || exp >= 16 {
		return sci, nil
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s, nil
}

func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			switch {
			case r < 0x20 || (r >= 0x7f && r < 0x10000):
				fmt.Fprintf(b, `\u%04x`, r)
			case r >= 0x10000:
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(b, `\u%04x\u%04x`, hi, lo)
			default:
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}
