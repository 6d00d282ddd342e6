// Package validation holds the application form rule set. The same rules
// drive inline form feedback (ValidateForm) and the authoritative server-side
// check of a submitted record (ValidateApplication).
//
// Every function here is pure and total: it never panics and never performs
// I/O. A failing check is reported as data, not as an error value.
package validation

import (
	"regexp"
	"strings"
)

var (
	lettersSpacesRE = regexp.MustCompile(`^[A-Za-z ]+$`)
	studentIDRE     = regexp.MustCompile(`(?i)^(IT|EN|BS|HS)\d{8}$`)
	linkedInRE      = regexp.MustCompile(`(?i)^(https?://)?(www\.)?linkedin\.com/(in|pub)/[A-Za-z0-9_-]+/?$`)
	gitHubRE        = regexp.MustCompile(`(?i)^(https?://)?(www\.)?github\.com/[A-Za-z0-9_.-]+/?$`)
)

// Email limits (RFC 5321 path and label lengths).
const (
	maxEmailLen  = 254
	maxLocalLen  = 64
	maxLabelLen  = 63
	minTLDLetter = 2
)

// IsNonEmpty reports whether v has content after trimming.
func IsNonEmpty(v string) bool { return strings.TrimSpace(v) != "" }

// IsOnlyLettersSpaces reports whether the trimmed v consists of ASCII letters
// and spaces only.
func IsOnlyLettersSpaces(v string) bool { return lettersSpacesRE.MatchString(strings.TrimSpace(v)) }

// IsEmail performs a structural address check. It walks the address instead
// of matching one large pattern so that hostile input stays linear.
func IsEmail(v string) bool {
	s := strings.TrimSpace(v)
	if s == "" || len(s) > maxEmailLen {
		return false
	}
	at := strings.IndexByte(s, '@')
	if at <= 0 || at != strings.LastIndexByte(s, '@') || at >= len(s)-1 {
		return false
	}
	local, domain := s[:at], s[at+1:]
	if len(local) > maxLocalLen {
		return false
	}
	for i := 0; i < len(local); i++ {
		if !isLocalChar(local[i]) {
			return false
		}
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if !isDomainLabel(label) {
			return false
		}
	}
	tld := labels[len(labels)-1]
	if len(tld) < minTLDLetter {
		return false
	}
	for i := 0; i < len(tld); i++ {
		if !isASCIILetter(tld[i]) {
			return false
		}
	}
	return true
}

// IsStudentID reports whether the trimmed v is one of the faculty prefixes
// IT, EN, BS or HS (any case) followed by exactly eight digits.
func IsStudentID(v string) bool { return studentIDRE.MatchString(strings.TrimSpace(v)) }

// IsLinkedIn reports whether v looks like a LinkedIn profile URL. The scheme
// and the www. prefix are optional.
func IsLinkedIn(v string) bool { return linkedInRE.MatchString(strings.TrimSpace(v)) }

// IsGitHub reports whether v looks like a GitHub profile URL with a single
// path segment. The scheme and the www. prefix are optional.
func IsGitHub(v string) bool { return gitHubRE.MatchString(strings.TrimSpace(v)) }

// MinLen reports whether the trimmed v has at least n characters.
func MinLen(v string, n int) bool { return len([]rune(strings.TrimSpace(v))) >= n }

// IsDigits reports whether v is exactly n ASCII digits.
func IsDigits(v string, n int) bool { return IsDigitsRange(v, n, n) }

// IsDigitsRange reports whether v is between min and max ASCII digits.
func IsDigitsRange(v string, min, max int) bool {
	if len(v) < min || len(v) > max || len(v) == 0 {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

func isDomainLabel(label string) bool {
	if label == "" || len(label) > maxLabelLen {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if !isASCIILetter(c) && !isASCIIDigit(c) && c != '-' {
			return false
		}
	}
	return true
}

// isLocalChar accepts the unquoted local-part characters.
func isLocalChar(c byte) bool {
	if isASCIILetter(c) || isASCIIDigit(c) {
		return true
	}
	return strings.IndexByte(".!#$%&'*+/=?^_`{|}~-", c) >= 0
}

func isASCIILetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isASCIIDigit(c byte) bool { return c >= '0' && c <= '9' }
