package ai

import "text/template"

// matchPrompt renders the scoring request. The response shape is enforced by
// matchResultSchema, so the prompt only needs to frame the comparison.
const matchPrompt = `Evaluate how well the following job posting matches the candidate profile.

Candidate profile:
{{.Profile}}

Job posting:
Company: {{.CompanyName}}
Title: {{.Title}}

{{.Description}}

Return a match score from 0 to 100, the candidate skills the posting asks for
(matched_skills), the required skills the candidate lacks (missing_skills),
and a one-paragraph summary of the fit.`

// MatchPromptTemplate returns the parsed scoring prompt template.
func MatchPromptTemplate() *template.Template {
	return template.Must(template.New("match").Parse(matchPrompt))
}
