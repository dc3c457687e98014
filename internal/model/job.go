package model

import (
	"encoding/json"
	"time"
)

// PostedKind tells whether a posted date is a real day or one of the sentinels.
type PostedKind int

const (
	PostedUnknown PostedKind = iota
	PostedOn
	PostedOlderThan30Days
)

const (
	PostedDateLayout = "02-01-2006"
	olderThan30Label = "30+ days ago"
)

type PostedDate struct {
	Kind PostedKind
	Day  time.Time
}

func PostedAt(day time.Time) PostedDate { return PostedDate{Kind: PostedOn, Day: day} }

// String renders DD-MM-YYYY, the "30+ days ago" sentinel, or "" when unknown.
func (p PostedDate) String() string {
	switch p.Kind {
	case PostedOn:
		return p.Day.Format(PostedDateLayout)
	case PostedOlderThan30Days:
		return olderThan30Label
	default:
		return ""
	}
}

func (p PostedDate) MarshalJSON() ([]byte, error) {
	if p.Kind == PostedUnknown {
		return []byte("null"), nil
	}
	return json.Marshal(p.String())
}

type CompanyProfile struct {
	Name           *string  `json:"company_name"`
	Rating         *string  `json:"company_rating"`
	BusinessType   *string  `json:"company_business_type"`
	EmployeesCount *string  `json:"company_employees_count"`
	Benefits       []string `json:"company_benefits"`
}

// JobRecord is one scraped listing. Pointer fields are nil when the page had
// nothing for them; they are never dropped from the JSON form.
type JobRecord struct {
	ID             int        `json:"id"`
	SearchKeyword  string     `json:"search_keyword"`
	Platform       string     `json:"job_platform"`
	Title          *string    `json:"job_title"`
	Location       *string    `json:"job_location"`
	Classification *string    `json:"job_classification"`
	Type           *string    `json:"job_type"`
	SalaryRange    *string    `json:"job_salary_range"`
	PostedDate     PostedDate `json:"job_posted_date"`
	Requirements   *string    `json:"job_requirements"`
	ApplyLink      *string    `json:"job_apply_link"`
	URL            *string    `json:"job_url"`
	CompanyProfile
}

// SearchContext tracks where the orchestrator is inside one keyword.
type SearchContext struct {
	Keyword  string
	Location string
	Total    int
	Page     int
	Counter  int
}

// Deref returns "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
