package signing

import (
	"slices"
	"strings"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

// Canonicalize encodes payload as a compact JSON object with keys in byte
// order and no insignificant whitespace. Non-ASCII text is emitted as raw
// UTF-8; only quotes, backslashes and control characters are escaped.
//
// Signers produce the same bytes for the same logical payload, so the
// output is safe to use as MAC input.
func Canonicalize(payload map[string]string) []byte {
	type entry struct{ key, raw, value string }
	entries := make([]entry, 0, len(payload))
	for k, v := range payload {
		entries = append(entries, entry{key: strings.ToValidUTF8(k, string(utf8.RuneError)), raw: k, value: v})
	}
	// Distinct invalid keys can sanitise to the same text; both are kept,
	// ordered by their raw bytes.
	slices.SortFunc(entries, func(a, b entry) int {
		if c := strings.Compare(a.key, b.key); c != 0 {
			return c
		}
		return strings.Compare(a.raw, b.raw)
	})

	var b strings.Builder
	b.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			b.WriteByte(',')
		}
		writeString(&b, e.key)
		b.WriteByte(':')
		writeString(&b, e.value)
	}
	b.WriteByte('}')
	return []byte(b.String())
}

// writeString writes s as a quoted JSON string.
func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range strings.ToValidUTF8(s, string(utf8.RuneError)) {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[r>>4])
				b.WriteByte(hexDigits[r&0xf])
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}
