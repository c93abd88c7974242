// ABOUTME: Deterministic entity extraction from conversation text
// ABOUTME: Finds payment handles, phone numbers and URLs, canonicalizing values

// Package extract scans free text for intelligence artifacts scammers tend
// to drop in conversation: payment handles, phone numbers and links. Scans
// are pure functions so repeated runs over the same text converge to the
// same set. Bank accounts and keywords are never scanned textually (digit
// runs are indistinguishable from phone numbers); they only arrive as model
// hints normalized through the same rules.
package extract

import (
	"regexp"
	"sort"
	"strings"
)

// Kind classifies an extracted intelligence value.
type Kind string

const (
	KindBankAccount   Kind = "bank_account"
	KindKeyword       Kind = "keyword"
	KindPaymentHandle Kind = "payment_handle"
	KindPhoneNumber   Kind = "phone_number"
	KindURL           Kind = "url"
)

// Entity is a single piece of extracted intelligence in canonical form.
// Two entities describe the same finding iff Kind and Value both match.
type Entity struct {
	Kind  Kind
	Value string
}

const trailingPunct = `.,;:!?)'"`

var (
	schemeURLRe  = regexp.MustCompile(`(?i)https?://[^\s<>"']+`)
	bareDomainRe = regexp.MustCompile(`(?i)(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}(?:/[^\s<>"']*)?`)
	handleRe     = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9._-]*@[A-Za-z][A-Za-z0-9.-]*`)
	phoneRe      = regexp.MustCompile(`\+?\d(?:[\s()-]{0,2}\d){7,14}`)
)

// Scan extracts entities from text. It is deterministic and idempotent:
// the same input always yields the same sorted, de-duplicated result, and
// re-scanning text whose findings are already recorded adds nothing new.
func Scan(text string) []Entity {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	seen := make(map[Entity]struct{})
	work := []byte(text)

	// Pass order matters: explicit URLs are masked out before bare domains,
	// and both before handles and phones, so a later pass never re-matches
	// inside an earlier finding.
	for _, loc := range schemeURLRe.FindAllIndex(work, -1) {
		record(seen, KindURL, string(work[loc[0]:loc[1]]))
		maskRegion(work, loc[0], loc[1])
	}

	for _, loc := range bareDomainRe.FindAllIndex(work, -1) {
		if loc[0] > 0 && isTokenByte(work[loc[0]-1]) {
			continue // tail of an email or handle, not a standalone domain
		}
		if loc[1] < len(work) && work[loc[1]] == '@' {
			continue // account part of a handle
		}
		record(seen, KindURL, string(work[loc[0]:loc[1]]))
		maskRegion(work, loc[0], loc[1])
	}

	for _, loc := range handleRe.FindAllIndex(work, -1) {
		if loc[0] > 0 && isTokenByte(work[loc[0]-1]) {
			continue
		}
		record(seen, KindPaymentHandle, string(work[loc[0]:loc[1]]))
		// Masked even when rejected as an email so its digits are not
		// mistaken for a phone number in the next pass.
		maskRegion(work, loc[0], loc[1])
	}

	for _, loc := range phoneRe.FindAllIndex(work, -1) {
		if loc[0] > 0 && work[loc[0]-1] == '.' {
			continue // decimal tail
		}
		if loc[1]+1 < len(work) && work[loc[1]] == '.' && isDigit(work[loc[1]+1]) {
			continue // integer part of a decimal
		}
		record(seen, KindPhoneNumber, string(work[loc[0]:loc[1]]))
	}

	if len(seen) == 0 {
		return nil
	}
	out := make([]Entity, 0, len(seen))
	for ent := range seen {
		out = append(out, ent)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// Normalize canonicalizes a raw value for the given kind. ok is false when
// the value cannot plausibly belong to the kind. Scanned text and model
// hints both go through these rules, so duplicates collapse regardless of
// which side found them first.
func Normalize(kind Kind, raw string) (Entity, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Entity{}, false
	}

	var v string
	switch kind {
	case KindURL:
		v = normalizeURL(raw)
	case KindPaymentHandle:
		v = normalizeHandle(raw)
	case KindPhoneNumber:
		v = normalizePhone(raw)
	case KindBankAccount:
		v = normalizeAccount(raw)
	case KindKeyword:
		v = strings.ToLower(strings.Join(strings.Fields(raw), " "))
	default:
		return Entity{}, false
	}
	if v == "" {
		return Entity{}, false
	}
	return Entity{Kind: kind, Value: v}, true
}

func record(seen map[Entity]struct{}, kind Kind, raw string) {
	if ent, ok := Normalize(kind, raw); ok {
		seen[ent] = struct{}{}
	}
}

// normalizeURL strips the scheme, lowercases the host and trims trailing
// punctuation and slashes. Values without a dotted host are rejected.
func normalizeURL(raw string) string {
	raw = strings.TrimRight(raw, trailingPunct)
	lower := strings.ToLower(raw)
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(lower, scheme) {
			raw = raw[len(scheme):]
			break
		}
	}
	host, path, hasPath := strings.Cut(raw, "/")
	host = strings.ToLower(host)
	if host == "" || !strings.Contains(host, ".") {
		return ""
	}
	if !hasPath || path == "" {
		return host
	}
	return host + "/" + strings.TrimSuffix(path, "/")
}

// normalizeHandle lowercases a name@issuer pair. A dotted issuer means the
// value is an email address rather than a payment handle.
func normalizeHandle(raw string) string {
	h := strings.ToLower(strings.TrimRight(raw, ".-"))
	name, issuer, ok := strings.Cut(h, "@")
	if !ok || name == "" || issuer == "" {
		return ""
	}
	if strings.Contains(issuer, ".") || strings.Contains(name, "@") {
		return ""
	}
	return name + "@" + issuer
}

// normalizePhone reduces a candidate to bare digits. National numbers
// without a country prefix run 10-12 digits; an explicit + allows up to
// the E.164 maximum of 15.
func normalizePhone(raw string) string {
	hasCountry := strings.HasPrefix(raw, "+")
	digits := digitsOf(raw)
	if hasCountry {
		if len(digits) < 10 || len(digits) > 15 {
			return ""
		}
	} else if len(digits) < 10 || len(digits) > 12 {
		return ""
	}
	return digits
}

// normalizeAccount keeps digits only. Account numbers shorter than 6 or
// longer than 20 digits are discarded as hint noise.
func normalizeAccount(raw string) string {
	digits := digitsOf(raw)
	if len(digits) < 6 || len(digits) > 20 {
		return ""
	}
	return digits
}

func digitsOf(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func maskRegion(b []byte, from, to int) {
	for i := from; i < to; i++ {
		b[i] = ' '
	}
}

// isTokenByte reports whether b could sit inside an email- or handle-like
// token, which disqualifies the following characters as a standalone match.
func isTokenByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '@', b == '.', b == '_', b == '-':
		return true
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
