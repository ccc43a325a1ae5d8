package extract

// LLM prompt templates — data only, no logic.

const systemMessage = `You are an expert job-posting analyst. Return only valid JSON, no markdown, no explanation.`

// singlePrompt extracts skill mentions from one job description.
// Args: description.
const singlePrompt = `Extract every skill mentioned in the job description below.

Respond with a JSON array (possibly empty), one object per skill:
[
  {
    "skill": "<skill name as written, e.g. "Kubernetes", "stakeholder management">",
    "category": "<technical|domain|soft>",
    "confidence": <0.0-1.0, how clearly the posting asks for this skill>,
    "required": <true if mandatory, false if nice-to-have>,
    "level": "<entry|mid|senior|expert|null>"
  }
]

Rules:
- Extract skills only, not duties or company facts.
- Keep the original surface form; do not merge variants like "K8s" and "Kubernetes".
- "required" is true when the posting marks the skill as mandatory ("must", "required", "minimum").
- "level" is the seniority the posting expects for that skill; null when not stated.

Job description:
"""
%s
"""`

// batchPrompt extracts skill mentions from several descriptions in one
// call. Each description carries an index; the response must echo that
// index per result so slots can be matched regardless of response
// order. Args: indexed descriptions block.
const batchPrompt = `Extract every skill from each of the job descriptions below. Each description is preceded by its index in square brackets.

Respond with a JSON array containing EXACTLY one object per description:
[
  {
    "index": <the index from the square brackets>,
    "skills": [
      {"skill": "...", "category": "technical|domain|soft", "confidence": 0.0, "required": false, "level": "entry|mid|senior|expert|null"}
    ]
  }
]

Rules:
- The "index" field must echo the bracketed index of the description the skills came from.
- A description with no identifiable skills still gets an object, with an empty "skills" array.
- Keep original surface forms; do not merge variants.

Job descriptions:
%s`
