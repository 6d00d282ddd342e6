package domain

// Closed option sets offered by the application form. The server accepts
// only these values.
var (
	AcademicYears = []string{"Year 1", "Year 2", "Year 3", "Year 4"}

	Semesters = []string{"Semester 1", "Semester 2"}

	Specializations = []string{
		"Software Engineering",
		"Data Science",
		"Computer Science",
		"Information Technology",
		"Interactive Media",
		"Artificial Intelligence",
		"Information Systems Engineering",
		"Cyber Security",
		"Computer Systems Engineering",
		"Other",
	}

	Teams = []string{"Dev", "Design", "Editorial", "TV", "Other"}
)

// OneOf reports whether v is exactly one of options.
func OneOf(v string, options []string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
