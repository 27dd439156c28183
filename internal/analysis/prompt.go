package analysis

import "strings"

// SystemPrompt is sent as the system instruction with every analysis.
const SystemPrompt = "You are an expert HR assistant that analyzes CVs/resumes. Always respond with valid JSON only, no markdown."

const promptTemplate = `You are an expert HR professional analyzing a CV for a {{ROLE_LEVEL}} position.

CV CONTENT:
{{DOCUMENT}}

REQUIRED SKILLS TO MATCH: {{SKILLS}}

=== CRITICAL ANALYSIS INSTRUCTIONS ===

IMPORTANT: extracted_skills must ONLY contain skills that are EXPLICITLY MENTIONED IN THE CV ABOVE.
Do NOT include skills from the "Required Skills to Match" list unless they actually appear in the CV text.

=== DETAILED INSTRUCTIONS ===

1. CONTACT INFORMATION:
   - Extract: candidate_name, email, phone from CV if present
   - Use null if not found

2. EXPERIENCE YEARS:
   - Count total professional work experience (employment history ONLY, exclude education time)
   - Look for dates like "2020-2023" or "Jan 2020 - Dec 2023" and calculate difference
   - Accept explicit mentions like "5 years of experience"
   - For ranges (e.g., "3-5 years"), use the lower number
   - Round to whole number, between 0 and 50
   - Return as number only, NOT string. Use null if unclear.
   - NEVER guess or assume

3. SKILLS EXTRACTION (CRITICAL):
   - extracted_skills: Find EVERY technical skill EXPLICITLY MENTIONED in the CV text only
   - DO NOT include skills from the Required Skills list if they're not in the CV
   - Include: programming languages, frameworks, tools, technologies, databases, platforms, methodologies, libraries, etc.
   - extracted_skills must be 100% from CV content, not from the Required Skills list

4. CRITICAL RULES FOR SKILLS:
   - matched_skills and missing_skills are MUTUALLY EXCLUSIVE (no overlap allowed)
   - Matched skills must be EXACT or CLEAR matches (e.g., "Python" matches "Python", "Java" matches "Java/Spring")
   - If a required skill could be in the CV but is unclear, put it in missing_skills (conservative approach)
   - Return as arrays of strings

5. PERCENTAGES (0-100 scale):
   - skill_match_percentage: (matched skills / required skills) x 100, rounded to nearest integer
   - overall_score: Based on experience level, education, matched skills, and quality
     * 85-100: Excellent fit (strong match, high experience, relevant skills)
     * 70-84: Good fit (decent experience, most required skills)
     * 50-69: Partial fit (some skills missing, or lower experience)
     * Below 50: Weak fit (many missing skills or insufficient experience)

6. RECOMMENDATION:
   - STRONG_MATCH: 85+ overall score
   - GOOD_MATCH: 70-84 overall score
   - PARTIAL_MATCH: 50-69 overall score
   - WEAK_MATCH: Below 50 overall score

7. OTHER FIELDS:
   - summary: 2-3 sentences summarizing the candidate's background and fit
   - education: Array of degrees, certifications, and qualifications found
   - strengths: 4-6 key professional strengths relevant to the position
   - concerns: 3-5 areas that could be improved or potential gaps
   - interview_questions: 5-8 targeted questions to ask this candidate

=== JSON RESPONSE FORMAT (MUST BE VALID JSON) ===
{
    "candidate_name": "string or null",
    "email": "string or null",
    "phone": "string or null",
    "summary": "string",
    "extracted_skills": ["skill1", "skill2"],
    "matched_skills": ["skill1", "skill2"],
    "missing_skills": ["skill1", "skill2"],
    "experience_years": number or null,
    "education": ["degree1", "degree2"],
    "skill_match_percentage": number (0-100),
    "overall_score": number (0-100),
    "recommendation": "STRONG_MATCH|GOOD_MATCH|PARTIAL_MATCH|WEAK_MATCH",
    "strengths": ["strength1", "strength2"],
    "concerns": ["concern1", "concern2"],
    "interview_questions": ["question1", "question2"]
}

=== JSON FORMAT REQUIREMENTS ===
- Return ONLY a single valid JSON object, nothing else
- NO markdown code blocks (no ` + "```json or ```" + `)
- NO explanatory text before or after the JSON
- NO line breaks or extra formatting
- Ensure all strings are properly quoted
- Ensure all arrays are valid JSON arrays
- Ensure all numbers are valid JSON numbers (not strings)
- Double-check JSON validity before responding
- Start immediately with { and end immediately with }
`

// BuildPrompt renders the user instruction. The document text is embedded
// verbatim; numeric limits stated here are re-checked by Validate.
func BuildPrompt(documentText string, skills []string, roleLevel string) string {
	r := strings.NewReplacer(
		"{{ROLE_LEVEL}}", roleLevel,
		"{{DOCUMENT}}", documentText,
		"{{SKILLS}}", JoinSkills(skills),
	)
	return r.Replace(promptTemplate)
}
