package scraper

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"jobmate/leads-service/internal/model"
)

const (
	UnknownPosition = "Unknown Position"
	UnknownCompany  = "Unknown Company"
)

// field identifies a logical JobLead field.
type field int

const (
	fieldTitle field = iota
	fieldCompany
	fieldLocation
	fieldDescription
	fieldSourceURL
	fieldSalary
	fieldPostedDate
	fieldExperience
	fieldWorkType
	fieldPosterName
	fieldPosterTitle
	fieldPosterURL
)

// candidates is the single normalization table: for each logical field, the
// provider keys to try in order. Dotted keys address nested objects.
var candidates = map[field][]string{
	fieldTitle:       {"title", "jobTitle", "position"},
	fieldCompany:     {"company", "companyName", "employer", "company.name"},
	fieldLocation:    {"location", "jobLocation", "place"},
	fieldDescription: {"description", "descriptionText", "jobDescription"},
	fieldSourceURL:   {"url", "link", "jobUrl", "applyUrl"},
	fieldSalary:      {"salary", "salaryInfo"},
	fieldPostedDate:  {"postedDate", "posted", "postedAt"},
	fieldExperience:  {"experienceLevel", "experience", "seniorityLevel"},
	fieldWorkType:    {"workType", "type", "employmentType"},
	fieldPosterName: {
		"jobPosterName", "postedByName", "recruiterName", "hrName", "contactName",
		"postedBy.name", "poster.name", "recruiter.name",
	},
	fieldPosterTitle: {
		"jobPosterTitle", "postedByTitle", "recruiterTitle", "postedBy.title", "poster.title",
	},
	fieldPosterURL: {
		"jobPosterUrl", "postedByUrl", "recruiterUrl", "hrUrl", "contactUrl",
		"postedBy.url", "poster.url", "recruiter.profileUrl",
	},
}

// Normalize converts one raw provider record into a fully populated JobLead.
// It fails only when the record is not a JSON object.
func Normalize(raw model.RawRecord) (model.JobLead, error) {
	var item map[string]any
	if err := json.Unmarshal(raw, &item); err != nil || item == nil {
		return model.JobLead{}, fmt.Errorf("record is not a JSON object")
	}

	pick := func(f field) string { return firstNonEmpty(item, candidates[f]) }

	lead := model.JobLead{
		JobTitle:        pick(fieldTitle),
		CompanyName:     pick(fieldCompany),
		Location:        pick(fieldLocation),
		Description:     pick(fieldDescription),
		SourceURL:       pick(fieldSourceURL),
		Salary:          pick(fieldSalary),
		PostedDate:      pick(fieldPostedDate),
		ExperienceLevel: pick(fieldExperience),
		WorkType:        pick(fieldWorkType),
		PosterName:      pick(fieldPosterName),
		PosterTitle:     pick(fieldPosterTitle),
		PosterURL:       pick(fieldPosterURL),
	}
	if lead.JobTitle == "" {
		lead.JobTitle = UnknownPosition
	}
	if lead.CompanyName == "" {
		lead.CompanyName = UnknownCompany
	}
	return lead, nil
}

// NormalizeAll normalizes every record, failing on the first record that
// cannot be coerced.
func NormalizeAll(raws []model.RawRecord) ([]model.JobLead, error) {
	leads := make([]model.JobLead, 0, len(raws))
	for i, raw := range raws {
		lead, err := Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		leads = append(leads, lead)
	}
	return leads, nil
}

func firstNonEmpty(item map[string]any, keys []string) string {
	for _, key := range keys {
		if s := scalar(lookup(item, key)); s != "" {
			return s
		}
	}
	return ""
}

func lookup(item map[string]any, key string) any {
	var cur any = item
	for _, part := range strings.Split(key, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[part]
	}
	return cur
}

// scalar renders strings and numbers; objects, arrays and booleans do not
// count as a value for a text field.
func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}
