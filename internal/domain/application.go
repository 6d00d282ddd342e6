// Package domain defines the core types of the membership application flow:
// the submitted record, the closed option sets offered by the form, and the
// persistence model used to deduplicate retried submissions.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// StatusPending is the review status every new row starts with.
const StatusPending = "Pending"

// OtherClubsNone is stored when the applicant leaves "other clubs" blank.
const OtherClubsNone = "None"

// TeamSeparator joins preferred teams into a single spreadsheet cell.
const TeamSeparator = ", "

// Application is the membership application as it travels over the wire and
// into the spreadsheet. All values are kept as strings, matching the columns
// of the target sheet.
type Application struct {
	Email          string   `json:"email"          example:"jane@example.com"`
	FullName       string   `json:"fullName"       example:"Jane Doe"`
	StudentID      string   `json:"studentId"      example:"IT20230001"`
	AcademicYear   string   `json:"academicYear"   example:"Year 2"`
	Semester       string   `json:"semester"       example:"Semester 1"`
	Specialization string   `json:"specialization" example:"Computer Science"`
	WhatsApp       string   `json:"whatsapp"       example:"+94771234567"`
	LinkedIn       string   `json:"linkedin"       example:"https://linkedin.com/in/janedoe"`
	GitHub         string   `json:"github"         example:"https://github.com/janedoe"`
	Reason         string   `json:"reason"         example:"I want to contribute to open source."`
	OtherClubs     string   `json:"otherClubs"     example:"None"`
	PreferredTeam  TeamList `json:"preferredTeam"  swaggertype:"array,string" example:"Dev,Design"`

	// Token is the bot-verification token. It is never persisted.
	Token string `json:"token,omitempty"`
}

// Row renders the application as the ordered spreadsheet row:
// timestamp, the eleven applicant columns, preferred teams, and the status.
func (a Application) Row(submittedAt time.Time) []any {
	return []any{
		submittedAt.UTC().Format(time.RFC3339Nano),
		a.Email,
		a.FullName,
		a.StudentID,
		a.AcademicYear,
		a.Semester,
		a.Specialization,
		a.WhatsApp,
		a.LinkedIn,
		a.GitHub,
		a.Reason,
		a.OtherClubs,
		a.PreferredTeam.String(),
		StatusPending,
	}
}

// RowColumns is the header of the spreadsheet, in row order.
var RowColumns = []string{
	"Timestamp", "Email", "Full Name", "Student ID", "Academic Year", "Semester",
	"Specialization", "WhatsApp", "LinkedIn", "GitHub", "Reason", "Other Clubs",
	"Preferred Team", "Status",
}

// TeamList holds the preferred teams. On the wire it is accepted either as a
// JSON array or as a single delimited string (older clients join the
// checkbox values themselves).
type TeamList []string

// UnmarshalJSON accepts ["Dev","TV"], "Dev, TV" or null.
func (t *TeamList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = nil
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = SplitTeams(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*t = list
	return nil
}

// String joins the teams with TeamSeparator.
func (t TeamList) String() string { return strings.Join(t, TeamSeparator) }

// SplitTeams splits a comma-delimited team string, dropping empty parts.
func SplitTeams(s string) TeamList {
	parts := strings.Split(s, ",")
	out := make(TeamList, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
