package hierarchy

// This file is data only, no logic.

const systemMessage = `You are a technology taxonomist. You respond with valid JSON only, no prose and no markdown fences.`

// inferPrompt asks for parent/child pairs strictly among the given
// names. %s slots: example pairs, then the skill name list.
const inferPrompt = `Given the list of skill names below, identify parent/child relationships where one skill is a broader technology that encompasses the other (a language and its framework, a platform and its service, a discipline and its technique).

Rules:
- Use ONLY names from the provided list, spelled exactly as given.
- A skill must never be its own parent.
- Propose a pair only when the relationship is widely accepted, not speculative.

Examples of valid pairs:
%s

Skill names:
%s

Respond with a JSON array of objects: [{"parent": "...", "child": "..."}]. Return [] if no relationships exist.`
