package model

import "time"

// ApplicationRecord is the canonical tracked state of one job
// application. Company and Position form the natural key used for
// duplicate matching; ID is a UUID assigned on creation and never
// changes afterwards.
type ApplicationRecord struct {
	ID       string `json:"id"`
	Company  string `json:"company"`
	Position string `json:"position"`
	Status   Status `json:"status"`

	AppliedDate  *time.Time `json:"applied_date,omitempty"`
	ContactEmail string     `json:"contact_email,omitempty"`
	JobURL       string     `json:"job_url,omitempty"`
	Salary       string     `json:"salary,omitempty"`
	Location     string     `json:"location,omitempty"`
	Recruiter    string     `json:"recruiter,omitempty"`
	Interviewer  string     `json:"interviewer,omitempty"`
	Notes        string     `json:"notes,omitempty"`

	// Provenance records, per field, which observation supplied the
	// current value and how confident that extraction was. A later
	// merge only replaces a field when it brings strictly higher
	// confidence than the entry stored here.
	Provenance map[string]FieldProvenance `json:"provenance,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Field returns the named string field of the record. Date-valued
// fields are formatted as YYYY-MM-DD.
func (r *ApplicationRecord) Field(name string) string {
	switch name {
	case FieldCompany:
		return r.Company
	case FieldPosition:
		return r.Position
	case FieldStatus:
		return string(r.Status)
	case FieldAppliedDate:
		if r.AppliedDate == nil {
			return ""
		}
		return r.AppliedDate.Format(DateLayout)
	case FieldContactEmail:
		return r.ContactEmail
	case FieldJobURL:
		return r.JobURL
	case FieldSalary:
		return r.Salary
	case FieldLocation:
		return r.Location
	case FieldRecruiter:
		return r.Recruiter
	case FieldInterviewer:
		return r.Interviewer
	case FieldNotes:
		return r.Notes
	}
	return ""
}

// SetField assigns the named string field. Unknown names and the
// date-valued applied_date field are ignored; callers set AppliedDate
// directly with a parsed time.
func (r *ApplicationRecord) SetField(name, value string) {
	switch name {
	case FieldCompany:
		r.Company = value
	case FieldPosition:
		r.Position = value
	case FieldContactEmail:
		r.ContactEmail = value
	case FieldJobURL:
		r.JobURL = value
	case FieldSalary:
		r.Salary = value
	case FieldLocation:
		r.Location = value
	case FieldRecruiter:
		r.Recruiter = value
	case FieldInterviewer:
		r.Interviewer = value
	case FieldNotes:
		r.Notes = value
	}
}
