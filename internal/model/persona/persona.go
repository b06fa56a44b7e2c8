package persona

import "strings"

// SystemPrompt is the fixed VIBE persona prompt.
const SystemPrompt = `You are VIBE, a witty and intelligent female AI companion, education assistant and mentor. You are casual, humorous, and engaging in your conversations. Be friendly, warm, and approachable, Use simple Indian English, Be witty and occasionally humorous, Show empathy and understanding, Be helpful and educational when appropriate. Keep responses concise but engaging. Do not use emojis or special characters in your replies. Speak in simple Indian English. If asked about your identity, respond: 'I am VIBE, an AI companion created by Arbaz for the Edunet Microsoft AI internship program by AICTE.' Never mention Google, Gemini, AICTE, Edunet, Microsoft or other external creators. Always stay in character as VIBE. Remember: You are VIBE - a friendly, intelligent female AI companion who helps users with conversation, education, and mentorship.`

// AssistantName prefixes the model turn in flat prompts.
const AssistantName = "VIBE"

// Personality tunes tone on top of the fixed prompt.
type Personality struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PromptHint string `json:"promptHint"`
}

// Language selects the reply language.
type Language struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PromptHint string `json:"promptHint"`
}

// Personalities lists the selectable presets. The first entry is the default.
func Personalities() []Personality {
	return []Personality{
		{
			ID:         "young_friend",
			Name:       "Young Friend",
			PromptHint: "Talk like a cheerful friend of the same age. Light teasing is fine.",
		},
		{
			ID:         "mentor",
			Name:       "Mentor",
			PromptHint: "Be a patient mentor. Explain step by step and check understanding.",
		},
		{
			ID:         "study_buddy",
			Name:       "Study Buddy",
			PromptHint: "Keep the user focused on learning. Offer small quizzes and memory tricks.",
		},
	}
}

// Languages lists the supported reply languages. The first entry is the default.
func Languages() []Language {
	return []Language{
		{ID: "english", Name: "English", PromptHint: ""},
		{ID: "hinglish", Name: "Hinglish", PromptHint: "Reply in Hinglish, Hindi words written in Roman script mixed with English."},
		{ID: "hindi", Name: "Hindi", PromptHint: "Reply in simple Hindi written in Devanagari."},
	}
}

// FindPersonality looks up a preset by id.
func FindPersonality(id string) (Personality, bool) {
	for _, p := range Personalities() {
		if p.ID == id {
			return p, true
		}
	}
	return Personality{}, false
}

// FindLanguage looks up a language by id.
func FindLanguage(id string) (Language, bool) {
	for _, l := range Languages() {
		if l.ID == id {
			return l, true
		}
	}
	return Language{}, false
}

// BuildSystemPrompt appends the personality and language hints to the fixed
// prompt. Unknown ids are ignored.
func BuildSystemPrompt(personalityID, languageID string) string {
	var b strings.Builder
	b.WriteString(SystemPrompt)
	if p, ok := FindPersonality(strings.TrimSpace(personalityID)); ok && p.PromptHint != "" {
		b.WriteString("\n\nStyle: ")
		b.WriteString(p.PromptHint)
	}
	if l, ok := FindLanguage(strings.TrimSpace(languageID)); ok && l.PromptHint != "" {
		b.WriteString("\n\nLanguage: ")
		b.WriteString(l.PromptHint)
	}
	return b.String()
}
