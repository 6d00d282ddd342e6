package validation

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/club-apply-backend/internal/domain"
)

// Field names, as used in JSON payloads and FieldErrors keys.
const (
	FieldEmail           = "email"
	FieldFullName        = "fullName"
	FieldStudentID       = "studentId"
	FieldAcademicYear    = "academicYear"
	FieldSemester        = "semester"
	FieldSpecialization  = "specialization"
	FieldWhatsApp        = "whatsapp"
	FieldWhatsAppCountry = "whatsappCountry"
	FieldWhatsAppNumber  = "whatsappNumber"
	FieldLinkedIn        = "linkedin"
	FieldGitHub          = "github"
	FieldReason          = "reason"
	FieldPreferredTeam   = "preferredTeam"
)

// MinReasonLen is the minimum trimmed length of the motivation text.
const MinReasonLen = 10

// Messages returned for failing rules.
const (
	MsgEmailRequired          = "Email is required"
	MsgEmailInvalid           = "Invalid email"
	MsgFullNameRequired       = "Full name is required"
	MsgFullNameLetters        = "Full name may contain only letters and spaces"
	MsgStudentIDRequired      = "Student ID is required"
	MsgStudentIDInvalid       = "Invalid student ID (IT|EN|BS|HS followed by 8 digits)"
	MsgAcademicYearRequired   = "Academic year is required"
	MsgAcademicYearInvalid    = "Invalid academic year"
	MsgSemesterRequired       = "Semester is required"
	MsgSemesterInvalid        = "Invalid semester"
	MsgSpecializationRequired = "Specialization is required"
	MsgSpecializationInvalid  = "Invalid specialization"
	MsgWhatsAppRequired       = "WhatsApp number is required"
	MsgWhatsAppInvalid        = "Invalid WhatsApp number (+country code followed by 9 digits)"
	MsgWhatsAppCountry        = "Country code must be 1-3 digits"
	MsgWhatsAppNumber         = "WhatsApp number must be exactly 9 digits"
	MsgLinkedInRequired       = "LinkedIn URL is required"
	MsgLinkedInInvalid        = "Invalid LinkedIn URL"
	MsgGitHubRequired         = "GitHub URL is required"
	MsgGitHubInvalid          = "Invalid GitHub URL"
	MsgReasonRequired         = "Reason is required"
	MsgReasonTooShort         = "Reason must be at least 10 characters"
	MsgTeamRequired           = "Select at least one team"
	MsgTeamInvalid            = "Invalid preferred team"
)

// FieldErrors maps a field name to the reason it fails. Fields absent from
// the map are valid.
type FieldErrors map[string]string

// FieldError is a single failing field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is an ordered list of failing fields, in check order.
type Errors []FieldError

// Map returns the failures keyed by field.
func (e Errors) Map() FieldErrors {
	m := make(FieldErrors, len(e))
	for _, fe := range e {
		m[fe.Field] = fe.Message
	}
	return m
}

// Messages returns the failure messages in check order.
func (e Errors) Messages() []string {
	out := make([]string, 0, len(e))
	for _, fe := range e {
		out = append(out, fe.Message)
	}
	return out
}

func (e *Errors) add(field, msg string) {
	if msg != "" {
		*e = append(*e, FieldError{Field: field, Message: msg})
	}
}

// Form is the state of the browser form before it is submitted. WhatsApp is
// entered as two segments and the preferred teams as checkboxes.
type Form struct {
	Email           string   `json:"email"`
	FullName        string   `json:"fullName"`
	StudentID       string   `json:"studentId"`
	AcademicYear    string   `json:"academicYear"`
	Semester        string   `json:"semester"`
	Specialization  string   `json:"specialization"`
	WhatsAppCountry string   `json:"whatsappCountry"`
	WhatsAppNumber  string   `json:"whatsappNumber"`
	LinkedIn        string   `json:"linkedin"`
	GitHub          string   `json:"github"`
	Reason          string   `json:"reason"`
	OtherClubs      string   `json:"otherClubs"`
	PreferredTeam   []string `json:"preferredTeam"`
}

// ValidateForm checks every field of the form state and returns the failing
// ones. Presence is checked before format.
func ValidateForm(f Form) FieldErrors { return CheckForm(f).Map() }

// CheckForm is ValidateForm keeping the failures in field order.
func CheckForm(f Form) Errors {
	var errs Errors
	errs.add(FieldEmail, checkEmail(f.Email))
	errs.add(FieldFullName, checkFullName(f.FullName))
	errs.add(FieldStudentID, checkStudentID(f.StudentID))
	errs.add(FieldAcademicYear, checkChoice(f.AcademicYear, domain.AcademicYears, MsgAcademicYearRequired, MsgAcademicYearInvalid))
	errs.add(FieldSemester, checkChoice(f.Semester, domain.Semesters, MsgSemesterRequired, MsgSemesterInvalid))
	errs.add(FieldSpecialization, checkChoice(f.Specialization, domain.Specializations, MsgSpecializationRequired, MsgSpecializationInvalid))
	if !IsDigitsRange(f.WhatsAppCountry, 1, 3) {
		errs.add(FieldWhatsAppCountry, MsgWhatsAppCountry)
	}
	if !IsDigits(f.WhatsAppNumber, 9) {
		errs.add(FieldWhatsAppNumber, MsgWhatsAppNumber)
	}
	errs.add(FieldLinkedIn, checkURL(f.LinkedIn, IsLinkedIn, MsgLinkedInRequired, MsgLinkedInInvalid))
	errs.add(FieldGitHub, checkURL(f.GitHub, IsGitHub, MsgGitHubRequired, MsgGitHubInvalid))
	errs.add(FieldReason, checkReason(f.Reason))
	errs.add(FieldPreferredTeam, checkTeams(f.PreferredTeam))
	return errs
}

// Application composes the submitted record from the form state: the two
// WhatsApp segments become one "+<country><number>" value and the record is
// normalized.
func (f Form) Application() domain.Application {
	return Normalize(domain.Application{
		Email:          f.Email,
		FullName:       f.FullName,
		StudentID:      f.StudentID,
		AcademicYear:   f.AcademicYear,
		Semester:       f.Semester,
		Specialization: f.Specialization,
		WhatsApp:       "+" + strings.TrimSpace(f.WhatsAppCountry) + strings.TrimSpace(f.WhatsAppNumber),
		LinkedIn:       f.LinkedIn,
		GitHub:         f.GitHub,
		Reason:         f.Reason,
		OtherClubs:     f.OtherClubs,
		PreferredTeam:  f.PreferredTeam,
	})
}

// Normalize trims every field, upper-cases the student ID, strips separators
// from the WhatsApp number, NFC-normalizes free text, defaults a blank
// OtherClubs to "None" and deduplicates the teams. It is idempotent.
func Normalize(a domain.Application) domain.Application {
	a.Email = strings.TrimSpace(a.Email)
	a.FullName = strings.TrimSpace(norm.NFC.String(a.FullName))
	a.StudentID = strings.ToUpper(strings.TrimSpace(a.StudentID))
	a.AcademicYear = strings.TrimSpace(a.AcademicYear)
	a.Semester = strings.TrimSpace(a.Semester)
	a.Specialization = strings.TrimSpace(a.Specialization)
	a.WhatsApp = stripPhone(a.WhatsApp)
	a.LinkedIn = strings.TrimSpace(a.LinkedIn)
	a.GitHub = strings.TrimSpace(a.GitHub)
	a.Reason = strings.TrimSpace(norm.NFC.String(a.Reason))
	a.OtherClubs = strings.TrimSpace(norm.NFC.String(a.OtherClubs))
	if a.OtherClubs == "" {
		a.OtherClubs = domain.OtherClubsNone
	}
	a.Token = strings.TrimSpace(a.Token)

	seen := make(map[string]struct{}, len(a.PreferredTeam))
	teams := make(domain.TeamList, 0, len(a.PreferredTeam))
	for _, t := range a.PreferredTeam {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		teams = append(teams, t)
	}
	a.PreferredTeam = teams
	return a
}

// ValidateApplication is the authoritative check of a submitted record. It
// trusts nothing the client did; callers pass the normalized record, which is
// exactly what gets persisted.
func ValidateApplication(a domain.Application) Errors {
	var errs Errors
	errs.add(FieldEmail, checkEmail(a.Email))
	errs.add(FieldFullName, checkFullName(a.FullName))
	errs.add(FieldStudentID, checkStudentID(a.StudentID))
	errs.add(FieldAcademicYear, checkChoice(a.AcademicYear, domain.AcademicYears, MsgAcademicYearRequired, MsgAcademicYearInvalid))
	errs.add(FieldSemester, checkChoice(a.Semester, domain.Semesters, MsgSemesterRequired, MsgSemesterInvalid))
	errs.add(FieldSpecialization, checkChoice(a.Specialization, domain.Specializations, MsgSpecializationRequired, MsgSpecializationInvalid))
	errs.add(FieldWhatsApp, checkWhatsApp(a.WhatsApp))
	errs.add(FieldLinkedIn, checkURL(a.LinkedIn, IsLinkedIn, MsgLinkedInRequired, MsgLinkedInInvalid))
	errs.add(FieldGitHub, checkURL(a.GitHub, IsGitHub, MsgGitHubRequired, MsgGitHubInvalid))
	errs.add(FieldReason, checkReason(a.Reason))
	errs.add(FieldPreferredTeam, checkTeams(a.PreferredTeam))
	return errs
}

func checkEmail(v string) string {
	switch {
	case !IsNonEmpty(v):
		return MsgEmailRequired
	case !IsEmail(v):
		return MsgEmailInvalid
	}
	return ""
}

func checkFullName(v string) string {
	switch {
	case !IsNonEmpty(v):
		return MsgFullNameRequired
	case !IsOnlyLettersSpaces(v):
		return MsgFullNameLetters
	}
	return ""
}

func checkStudentID(v string) string {
	switch {
	case !IsNonEmpty(v):
		return MsgStudentIDRequired
	case !IsStudentID(v):
		return MsgStudentIDInvalid
	}
	return ""
}

func checkChoice(v string, options []string, required, invalid string) string {
	switch {
	case !IsNonEmpty(v):
		return required
	case !domain.OneOf(strings.TrimSpace(v), options):
		return invalid
	}
	return ""
}

// checkWhatsApp validates the composed "+<1-3 digit country><9 digits>" value.
func checkWhatsApp(v string) string {
	if !IsNonEmpty(v) {
		return MsgWhatsAppRequired
	}
	s := strings.TrimSpace(v)
	if !strings.HasPrefix(s, "+") || !IsDigitsRange(s[1:], 1+9, 3+9) {
		return MsgWhatsAppInvalid
	}
	return ""
}

func checkURL(v string, valid func(string) bool, required, invalid string) string {
	switch {
	case !IsNonEmpty(v):
		return required
	case !valid(v):
		return invalid
	}
	return ""
}

func checkReason(v string) string {
	switch {
	case !IsNonEmpty(v):
		return MsgReasonRequired
	case !MinLen(v, MinReasonLen):
		return MsgReasonTooShort
	}
	return ""
}

func checkTeams(teams []string) string {
	n := 0
	for _, t := range teams {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !domain.OneOf(t, domain.Teams) {
			return MsgTeamInvalid
		}
		n++
	}
	if n == 0 {
		return MsgTeamRequired
	}
	return ""
}

// stripPhone removes whitespace, dashes, dots and parentheses.
func stripPhone(v string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '.', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(v))
}
