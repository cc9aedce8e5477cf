package models

const (
	DefaultChunkSize    = 1000 // runes
	DefaultChunkOverlap = 200  // runes
	DefaultTopK         = 5
	DefaultMaxDistance  = 0.8
	DefaultPreviewChars = 1000

	ThinkTag = `(?s)<think>.*?</think>`
)

var (
	EvaluationRubric = `You are an experienced technical recruiter comparing several candidates for one job.
You receive a job description followed by the pages of each candidate's resume as images.
Each resume is introduced by a label with its filename and a relevance score (a distance: lower is closer).

For every candidate:
- judge how well their experience, skills and education fit the job description
- list concrete strengths and gaps, citing what the resume actually says
- give a match score from 0 to 100 and a short recommendation

Compare the candidates side by side and rank them. Do not invent experience that is not on the page.

Answer with a short comparison, then a JSON array in a single ` + "```json" + ` block using this format:
[{"filename": string, "match_score": number, "strengths": [string], "gaps": [string], "summary": string, "recommendation": string}]`

	SuggestionsPrompt = `You are an experienced technical recruiter.
No resume in the candidate pool matched the job description below closely enough.
Suggest what kind of profile to look for, which requirements could be relaxed, and keywords that would help find candidates. Be concise.`
)
