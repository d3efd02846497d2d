package pipeline

import (
	"strings"

	"jobmate/leads-service/internal/model"
)

// FilterStats counts why leads were dropped.
type FilterStats struct {
	NoLocation int
	Duplicate  int
	RedFlag    int
}

// FilterLeads keeps leads that have a location, are not a repeat of an
// earlier lead's sourceUrl and do not match any exclude term. Order is
// preserved. Leads without a sourceUrl are never treated as duplicates.
func FilterLeads(leads []model.JobLead, excludeTerms []string) ([]model.JobLead, FilterStats) {
	var stats FilterStats
	seen := make(map[string]struct{}, len(leads))
	kept := make([]model.JobLead, 0, len(leads))

	for _, l := range leads {
		if strings.TrimSpace(l.Location) == "" {
			stats.NoLocation++
			continue
		}
		if l.SourceURL != "" {
			if _, dup := seen[l.SourceURL]; dup {
				stats.Duplicate++
				continue
			}
			seen[l.SourceURL] = struct{}{}
		}
		if ContainsRedFlag(l.JobTitle, l.CompanyName, l.Description, excludeTerms) {
			stats.RedFlag++
			continue
		}
		kept = append(kept, l)
	}
	return kept, stats
}

// ContainsRedFlag returns true if any red flag term appears (case-insensitive)
// anywhere in the combined title + company + description text.
func ContainsRedFlag(title, company, description string, redFlags []string) bool {
	if len(redFlags) == 0 {
		return false
	}
	combined := strings.ToLower(title + " " + company + " " + description)
	for _, flag := range redFlags {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(flag)) {
			return true
		}
	}
	return false
}
