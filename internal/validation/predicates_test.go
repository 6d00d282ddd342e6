package validation

import (
	"strings"
	"testing"
)

func TestIsNonEmpty(t *testing.T) {
	cases := map[string]bool{
		"":       false,
		"   ":    false,
		"\t\n":   false,
		"a":      true,
		"  a  ":  true,
		"hello ": true,
	}
	for in, want := range cases {
		if got := IsNonEmpty(in); got != want {
			t.Fatalf("IsNonEmpty(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestIsOnlyLettersSpaces(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"Jane Doe", true},
		{"  Jane Doe  ", true}, // trimmed first
		{"Jane", true},
		{"Jane3", false},
		{"Jane-Doe", false},
		{"O'Neil", false},
		{"", false},
		{"   ", false},
	}
	for _, tc := range cases {
		if got := IsOnlyLettersSpaces(tc.in); got != tc.want {
			t.Fatalf("IsOnlyLettersSpaces(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestIsEmail(t *testing.T) {
	valid := []string{
		"jane@example.com",
		"j.doe+club@mail.example.org",
		"  jane@example.com  ",
		"a_b-c@sub-domain.example.io",
	}
	invalid := []string{
		"",
		"jane",
		"jane@",
		"@example.com",
		"jane@example",
		"jane@@example.com",
		"jane@exa mple.com",
		"jane@example.c",
		"jane@example.c0m",
		"jane@-example.com",
		"jane@example..com",
		"ja ne@example.com",
		strings.Repeat("a", 65) + "@example.com",
		"jane@" + strings.Repeat("a", 64) + ".com",
		strings.Repeat("a", 60) + "@" + strings.Repeat("b", 63) + "." + strings.Repeat("c", 63) + "." + strings.Repeat("d", 63) + ".com",
	}
	for _, v := range valid {
		if !IsEmail(v) {
			t.Fatalf("IsEmail(%q) = false; want true", v)
		}
	}
	for _, v := range invalid {
		if IsEmail(v) {
			t.Fatalf("IsEmail(%q) = true; want false", v)
		}
	}
}

func TestIsEmail_HostileInputTerminates(t *testing.T) {
	// Long runs that would make a backtracking pattern blow up.
	long := strings.Repeat("a.", 5000) + "@"
	if IsEmail(long) {
		t.Fatal("expected hostile input to be rejected")
	}
}

func TestIsStudentID(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"IT12345678", true},
		{"it12345678", true},
		{"EN00000000", true},
		{"BS87654321", true},
		{"HS11112222", true},
		{"  IT12345678 ", true},
		{"XX12345678", false},
		{"IT1234567", false},
		{"IT123456789", false},
		{"IT1234567a", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsStudentID(tc.in); got != tc.want {
			t.Fatalf("IsStudentID(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestIsLinkedIn(t *testing.T) {
	valid := []string{
		"https://linkedin.com/in/janedoe",
		"https://www.linkedin.com/in/jane-doe_1/",
		"http://linkedin.com/pub/jane",
		"linkedin.com/in/jane",
		"HTTPS://WWW.LINKEDIN.COM/IN/JANE",
	}
	invalid := []string{
		"",
		"https://linkedin.com/",
		"https://linkedin.com/company/acme",
		"https://linkedin.com/in/",
		"https://evil.com/in/jane",
		"https://linkedin.com.evil.com/in/jane",
		"ftp://linkedin.com/in/jane",
	}
	for _, v := range valid {
		if !IsLinkedIn(v) {
			t.Fatalf("IsLinkedIn(%q) = false; want true", v)
		}
	}
	for _, v := range invalid {
		if IsLinkedIn(v) {
			t.Fatalf("IsLinkedIn(%q) = true; want false", v)
		}
	}
}

func TestIsGitHub(t *testing.T) {
	valid := []string{
		"https://github.com/janedoe",
		"https://www.github.com/jane.doe/",
		"github.com/jane-doe",
	}
	invalid := []string{
		"",
		"https://github.com/",
		"https://github.com/jane/repo",
		"https://gitlab.com/jane",
	}
	for _, v := range valid {
		if !IsGitHub(v) {
			t.Fatalf("IsGitHub(%q) = false; want true", v)
		}
	}
	for _, v := range invalid {
		if IsGitHub(v) {
			t.Fatalf("IsGitHub(%q) = true; want false", v)
		}
	}
}

func TestMinLen_CountsRunesAfterTrim(t *testing.T) {
	if MinLen("   short   ", 10) {
		t.Fatal("padding must not count toward the minimum")
	}
	if !MinLen("ten chars!", 10) {
		t.Fatal("exactly n characters must pass")
	}
	if !MinLen("ééééééééé é", 10) {
		t.Fatal("multi-byte characters count once")
	}
}

func TestIsDigits(t *testing.T) {
	if !IsDigits("771234567", 9) {
		t.Fatal("nine digits should pass")
	}
	for _, v := range []string{"77123456", "7712345678", "77123456a", "", "77 123456"} {
		if IsDigits(v, 9) {
			t.Fatalf("IsDigits(%q, 9) = true; want false", v)
		}
	}
	for _, v := range []string{"1", "94", "358"} {
		if !IsDigitsRange(v, 1, 3) {
			t.Fatalf("IsDigitsRange(%q, 1, 3) = false; want true", v)
		}
	}
	for _, v := range []string{"", "1234", "+94", "9a"} {
		if IsDigitsRange(v, 1, 3) {
			t.Fatalf("IsDigitsRange(%q, 1, 3) = true; want false", v)
		}
	}
}
