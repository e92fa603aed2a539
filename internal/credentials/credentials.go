// Package credentials resolves logical form field types to concrete
// values and synthesises country-appropriate phone numbers.
package credentials

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/config"
)

// Engine is a pure function holder over one run's credentials.
type Engine struct {
	creds config.Credentials
	rng   *rand.Rand
}

// New builds an Engine. seed fixes the RNG so phone synthesis is
// deterministic and testable, per the round-trip law on phone
// generation.
func New(creds config.Credentials, seed int64) *Engine {
	return &Engine{creds: creds, rng: rand.New(rand.NewSource(seed))}
}

// Resolve maps a logical field_type to the credential value to fill.
// Unknown types get a sensible default rather than an error, since the
// planner may invent plausible-but-unlisted field types.
func (e *Engine) Resolve(fieldType string) string {
	switch strings.ToLower(strings.TrimSpace(fieldType)) {
	case "email":
		return e.creds.Email
	case "first_name", "firstname":
		return e.creds.FirstName
	case "last_name", "lastname":
		return e.creds.LastName
	case "full_name", "fullname", "name":
		return e.creds.FullName()
	case "phone", "tel", "telephone", "mobile":
		return e.creds.Phone
	case "checkbox":
		return "true"
	case "business_name", "company", "organization":
		return "My Business LLC"
	case "website", "url":
		return "https://example.com"
	case "message", "comment", "comments":
		return "Looking forward to hearing from you."
	default:
		return "AutoFill"
	}
}

// countryProfile holds, for one dial code in countryTable, the valid
// mobile prefixes and the national significant number length
// (including the prefix digits).
type countryProfile struct {
	prefixes []string
	length   int
}

var countryTable = map[string]countryProfile{
	"92":  {prefixes: []string{"300", "301", "302", "303", "304", "305"}, length: 10}, // Pakistan
	"91":  {prefixes: []string{"91", "92", "93", "94", "95", "96", "97", "98", "99"}, length: 10}, // India
	"44":  {prefixes: []string{"74", "75", "77", "78", "79"}, length: 10},             // United Kingdom
	"971": {prefixes: []string{"50", "52", "54", "55", "56"}, length: 9},              // UAE
	"966": {prefixes: []string{"50", "53", "54", "55", "56"}, length: 9},              // Saudi Arabia
	"1":   {prefixes: []string{"202", "212", "305", "415", "646", "702"}, length: 10}, // US/CA
	"61":  {prefixes: []string{"40", "41", "42", "43", "45", "47", "48"}, length: 9},  // Australia
	"49":  {prefixes: []string{"151", "152", "157", "159", "170", "171"}, length: 10}, // Germany
	"33":  {prefixes: []string{"6", "7"}, length: 9},                                  // France
}

// countryNameToDialCode resolves country names, ISO-2 codes, and flag
// emoji to a bare dial code (without the leading '+'), as detected
// from the page's own phone widget.
var countryNameToDialCode = map[string]string{
	"pakistan": "92", "pk": "92", "🇵🇰": "92",
	"india": "91", "in": "91", "🇮🇳": "91",
	"united kingdom": "44", "uk": "44", "gb": "44", "🇬🇧": "44",
	"uae": "971", "united arab emirates": "971", "ae": "971", "🇦🇪": "971",
	"saudi arabia": "966", "sa": "966", "🇸🇦": "966",
	"united states": "1", "usa": "1", "us": "1", "canada": "1", "ca": "1", "🇺🇸": "1", "🇨🇦": "1",
	"australia": "61", "au": "61", "🇦🇺": "61",
	"germany": "49", "de": "49", "🇩🇪": "49",
	"france": "33", "fr": "33", "🇫🇷": "33",
}

// DetectCountryCode inspects the page text/attribute signals collected
// around a phone input and resolves them to a dial code, defaulting to
// "1" when nothing is recognised.
func DetectCountryCode(signals []string) string {
	for _, raw := range signals {
		s := strings.ToLower(strings.TrimSpace(raw))
		if s == "" {
			continue
		}
		if code, ok := countryNameToDialCode[s]; ok {
			return code
		}
		if idx := strings.IndexByte(s, '+'); idx >= 0 {
			digits := s[idx+1:]
			digits = strings.TrimFunc(digits, func(r rune) bool { return r < '0' || r > '9' })
			for code := range countryTable {
				if strings.HasPrefix(digits, code) {
					return code
				}
			}
		}
	}
	return "1"
}

// GeneratePhone synthesises a plausible national number for
// countryCode using a fixed prefix/length table; unknown codes fall
// back to the US/CA format, satisfying law L1 (the generated number
// always begins with a valid prefix for the requested country).
func (e *Engine) GeneratePhone(countryCode string) string {
	profile, ok := countryTable[countryCode]
	if !ok {
		profile = countryTable["1"]
	}
	prefix := profile.prefixes[e.rng.Intn(len(profile.prefixes))]
	remaining := profile.length - len(prefix)
	if remaining < 0 {
		remaining = 0
	}
	var b strings.Builder
	b.WriteString(prefix)
	for i := 0; i < remaining; i++ {
		b.WriteByte(byte('0' + e.rng.Intn(10)))
	}
	return b.String()
}

// RenderE164 joins a country code and national number into an
// E.164-compatible string.
func RenderE164(countryCode, national string) string {
	return fmt.Sprintf("+%s%s", countryCode, national)
}
