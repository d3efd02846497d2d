package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/leads-service/internal/model"
)

func TestNormalize_Defaults(t *testing.T) {
	lead, err := Normalize(model.RawRecord(`{}`))
	require.NoError(t, err)
	assert.Equal(t, UnknownPosition, lead.JobTitle)
	assert.Equal(t, UnknownCompany, lead.CompanyName)
	assert.Empty(t, lead.Location)
	assert.Empty(t, lead.SourceURL)
}

func TestNormalize_CandidateOrder(t *testing.T) {
	lead, err := Normalize(model.RawRecord(`{
		"position": "ignored",
		"jobTitle": "Backend Engineer",
		"title": "",
		"companyName": "Acme",
		"company": {"name": "Nested Acme"},
		"jobLocation": "Bengaluru, India",
		"link": "https://example.com/jobs/1",
		"applyUrl": "https://example.com/apply/1",
		"salaryInfo": 120000,
		"postedBy": {"name": "Priya", "title": "Recruiter", "url": "https://in.example/priya"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "Backend Engineer", lead.JobTitle, "blank title falls through to jobTitle")
	assert.Equal(t, "Acme", lead.CompanyName, "object-valued company is not a string")
	assert.Equal(t, "Bengaluru, India", lead.Location)
	assert.Equal(t, "https://example.com/jobs/1", lead.SourceURL)
	assert.Equal(t, "120000", lead.Salary)
	assert.Equal(t, "Priya", lead.PosterName)
	assert.Equal(t, "Recruiter", lead.PosterTitle)
	assert.Equal(t, "https://in.example/priya", lead.PosterURL)
}

func TestNormalize_NestedCompany(t *testing.T) {
	lead, err := Normalize(model.RawRecord(`{"title":"SRE","company":{"name":"Globex"}}`))
	require.NoError(t, err)
	assert.Equal(t, "Globex", lead.CompanyName)
}

func TestNormalize_RejectsNonObject(t *testing.T) {
	for _, raw := range []string{`[1,2]`, `"text"`, `null`, `42`, `{broken`} {
		_, err := Normalize(model.RawRecord(raw))
		assert.Error(t, err, raw)
	}
}

func TestNormalizeAll_StopsAtFirstBadRecord(t *testing.T) {
	_, err := NormalizeAll([]model.RawRecord{
		model.RawRecord(`{"title":"ok"}`),
		model.RawRecord(`[]`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")
}

func TestCanonicalQuery(t *testing.T) {
	q, err := CanonicalQuery("  Go developer ", "Bengaluru", model.WorkRemote)
	require.NoError(t, err)
	assert.Equal(t, "https://www.linkedin.com/jobs/search?f_WT=2&keywords=Go+developer&location=Bengaluru", q)

	again, err := CanonicalQuery("Go developer", "Bengaluru ", model.WorkRemote)
	require.NoError(t, err)
	assert.Equal(t, q, again)

	q, err = CanonicalQuery("x", "y", model.WorkOnsite)
	require.NoError(t, err)
	assert.Contains(t, q, "f_WT=1")

	_, err = CanonicalQuery("x", "y", "anywhere")
	assert.Error(t, err)
}

func TestLookupProfile(t *testing.T) {
	p, err := LookupProfile("linkedin-jobs", "")
	require.NoError(t, err)
	assert.Equal(t, "curious_coder/linkedin-jobs-scraper", p.ActorID)
	assert.Equal(t, []string{"q"}, p.Input("q", 10)["urls"])

	p, err = LookupProfile("linkedin-jobs-start-urls", "me/custom-actor")
	require.NoError(t, err)
	assert.Equal(t, "me/custom-actor", p.ActorID)
	assert.Equal(t, []map[string]string{{"url": "q"}}, p.Input("q", 10)["startUrls"])

	_, err = LookupProfile("indeed", "")
	assert.Error(t, err)
}
