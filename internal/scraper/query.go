// Package scraper implements the scrape orchestrator: canonical query
// construction, the provider run lifecycle and normalization of provider
// records into typed job leads.
package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"jobmate/leads-service/internal/model"
)

const linkedInSearchURL = "https://www.linkedin.com/jobs/search"

// workTypeCodes maps a work type onto LinkedIn's f_WT filter.
var workTypeCodes = map[model.WorkType]string{
	model.WorkOnsite: "1",
	model.WorkRemote: "2",
	model.WorkHybrid: "3",
}

// CanonicalQuery builds the provider query for a search. Keyword and location
// are trimmed; the parameter order is stable so equal searches produce equal
// queries.
func CanonicalQuery(keyword, location string, workType model.WorkType) (string, error) {
	code, ok := workTypeCodes[workType]
	if !ok {
		return "", fmt.Errorf("unknown work type %q", workType)
	}
	params := url.Values{}
	params.Set("keywords", strings.TrimSpace(keyword))
	params.Set("location", strings.TrimSpace(location))
	params.Set("f_WT", code)
	return linkedInSearchURL + "?" + params.Encode(), nil
}
