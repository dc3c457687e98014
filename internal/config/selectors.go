package config

import "fmt"

// Selectors maps each logical page element to candidate CSS selectors, tried
// in order. Site markup changes are handled here, not in the flows.
type Selectors struct {
	SignIn             []string `yaml:"sign_in"`
	EmailInput         []string `yaml:"email_input"`
	OTPInput           []string `yaml:"otp_input"`
	OTPInvalid         []string `yaml:"otp_invalid"`
	HomePage           []string `yaml:"home_page"`
	KeywordInput       []string `yaml:"keyword_input"`
	LocationInput      []string `yaml:"location_input"`
	InitialView        []string `yaml:"initial_view"`
	InitialViewHeading []string `yaml:"initial_view_heading"`
	JobCard            []string `yaml:"job_card"`
	SortTrigger        []string `yaml:"sort_trigger"`
	SortMenu           []string `yaml:"sort_menu"`
	SortByDate         []string `yaml:"sort_by_date"`
	TotalCount         []string `yaml:"total_count"`
	NextPage           []string `yaml:"next_page"`
	DetailPane         []string `yaml:"detail_pane"`

	Fields map[string][]string `yaml:"fields"`

	CompanyProfile  []string `yaml:"company_profile"`
	BusinessSection []string `yaml:"business_section"`
	BenefitsSection []string `yaml:"benefits_section"`
}

// Detail field names used by the extraction table.
const (
	FieldTitle          = "title"
	FieldCompany        = "company"
	FieldRating         = "rating"
	FieldLocation       = "location"
	FieldClassification = "classification"
	FieldType           = "type"
	FieldSalary         = "salary"
	FieldApplyLink      = "apply_link"
	FieldRequirements   = "requirements"
	FieldPosted         = "posted"
)

var requiredFields = []string{
	FieldTitle, FieldCompany, FieldRating, FieldLocation, FieldClassification,
	FieldType, FieldSalary, FieldApplyLink, FieldRequirements, FieldPosted,
}

func (s Selectors) validate() []string {
	var errs []string
	lists := map[string][]string{
		"sign_in":              s.SignIn,
		"email_input":          s.EmailInput,
		"otp_input":            s.OTPInput,
		"otp_invalid":          s.OTPInvalid,
		"home_page":            s.HomePage,
		"keyword_input":        s.KeywordInput,
		"location_input":       s.LocationInput,
		"initial_view":         s.InitialView,
		"initial_view_heading": s.InitialViewHeading,
		"job_card":             s.JobCard,
		"sort_trigger":         s.SortTrigger,
		"sort_menu":            s.SortMenu,
		"sort_by_date":         s.SortByDate,
		"total_count":          s.TotalCount,
		"next_page":            s.NextPage,
		"detail_pane":          s.DetailPane,
		"company_profile":      s.CompanyProfile,
		"business_section":     s.BusinessSection,
		"benefits_section":     s.BenefitsSection,
	}
	for name, l := range lists {
		if len(l) == 0 {
			errs = append(errs, fmt.Sprintf("selectors.%s must have at least 1 selector", name))
		}
		for i, sel := range l {
			if sel == "" {
				errs = append(errs, fmt.Sprintf("selectors.%s[%d] cannot be empty", name, i))
			}
		}
	}
	for _, f := range requiredFields {
		if len(s.Fields[f]) == 0 {
			errs = append(errs, fmt.Sprintf("selectors.fields.%s must have at least 1 selector", f))
		}
	}
	return errs
}
