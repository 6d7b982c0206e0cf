// Package timelog implements the tamper-evident, hash-chained time log.
//
// Every clock-in and clock-out is stored as an Entry in a single JSON file.
// Each entry's hash is computed as SHA-256(canonical(entry) || prev_hash),
// forming a hash chain where tampering with any entry breaks the chain
// from that point forward.
package timelog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"unicode/utf16"
)

// Canonicalize returns the deterministic byte encoding of an entry's
// fields. Keys are sorted so the result does not depend on the order the
// fields were added in. The layout is JSON with ", " and ": " separators and
// ASCII-only string escapes:
//
//	{"time": "2024-01-01 09:07:00", "type": "in"}
//
// The hash field must not be present in fields.
func Canonicalize(fields map[string]string) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteString(", ")
		}
		writeQuoted(&buf, k)
		buf.WriteString(": ")
		writeQuoted(&buf, fields[k])
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// writeQuoted writes s as a JSON string. Printable ASCII is written as is;
// everything else is escaped, non-ASCII as \uXXXX (a surrogate pair above
// U+FFFF). HTML characters are not escaped.
func writeQuoted(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r >= 0x20 && r <= 0x7e:
			buf.WriteRune(r)
		case r > 0xffff:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(buf, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(buf, `\u%04x`, r)
		}
	}
	buf.WriteByte('"')
}

// ComputeDigest calculates the chained digest for an entry.
// The entry's own Hash is ignored, so the digest never depends on itself.
//
//	hex(SHA-256(canonical(entry) || prev))
func ComputeDigest(e Entry, prev string) string {
	return digest(e.fields(), prev)
}

func digest(fields map[string]string, prev string) string {
	h := sha256.New()
	h.Write(Canonicalize(fields))
	h.Write([]byte(prev))
	return hex.EncodeToString(h.Sum(nil))
}

// rechain recomputes every digest from the root, in place.
func rechain(entries []Entry) {
	prev := ""
	for i := range entries {
		entries[i].Hash = ComputeDigest(entries[i], prev)
		prev = entries[i].Hash
	}
}

// verifyChain walks the stored records from the root and reports whether
// every stored digest matches its recomputed value. Every stored key except
// "hash" is covered, so an added, dropped, or renamed key breaks the chain
// just like an edited value.
func verifyChain(records []record) bool {
	prev := ""
	for _, r := range records {
		if r.hash != digest(r.fields, prev) {
			return false
		}
		prev = r.hash
	}
	return true
}
