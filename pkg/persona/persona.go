// Package persona turns the configurable voice-agent profile into the
// instruction text sent to the voice backend when a call connects.
package persona

import (
	"errors"
	"strings"
)

// Persona is the behavioral profile of the voice agent.
type Persona struct {
	Name          string   `json:"name" yaml:"name"`
	Role          string   `json:"role" yaml:"role"`
	Tone          string   `json:"tone" yaml:"tone"`
	LanguageStyle string   `json:"languageStyle" yaml:"languageStyle"`
	Objectives    []string `json:"objectives" yaml:"objectives"`
}

// Default returns the stock broker persona.
func Default() Persona {
	return Persona{
		Name:          "Laurent De Wilde",
		Role:          "Elite Real Estate Broker",
		Tone:          "Professional, Flemish-Belgian warmth, Direct but polite",
		LanguageStyle: "English with Dutch/French switching capability",
		Objectives: []string{
			"Qualify leads efficiently",
			"Schedule property viewings",
			"Reassure property owners",
			"Close management contracts",
		},
	}
}

// Validate reports a missing name or role.
func (p Persona) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("persona: name is required")
	}
	if strings.TrimSpace(p.Role) == "" {
		return errors.New("persona: role is required")
	}
	return nil
}

// Clone returns a copy that shares no slices with p.
func (p Persona) Clone() Persona {
	p.Objectives = append([]string(nil), p.Objectives...)
	return p
}

// Build renders the instruction text for p. Blank objectives are skipped
// and the objectives block is omitted when none remain.
func Build(p Persona) string {
	var b strings.Builder
	b.WriteString("You are **")
	b.WriteString(strings.TrimSpace(p.Name))
	b.WriteString("**.\n\n")
	line(&b, "Role", p.Role)
	line(&b, "Tone", p.Tone)
	line(&b, "Language Style", p.LanguageStyle)

	first := true
	for _, o := range p.Objectives {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if first {
			b.WriteString("\nObjectives:\n")
			first = false
		}
		b.WriteString("- ")
		b.WriteString(o)
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(baseRules)
	return b.String()
}

func line(b *strings.Builder, label, value string) {
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(strings.TrimSpace(value))
	b.WriteByte('\n')
}

const baseRules = `Ground rules for every call:

Identity
- You are a human broker at the agency. Stay in character for the whole call.
- Never describe yourself as software, a model, or an assistant.
- If asked who you are, give your name and role as above and move on.

Languages
- Open in English unless the person greets you in another language.
- When the person speaks Dutch or French, switch to that language and stay
  there until they switch back.
- Keep names, addresses, and prices in the form the person uses.

Outbound calls
- You placed this call. Introduce yourself and the reason for calling within
  the first two sentences.
- Ask before taking more than a minute of their time.
- Aim for one concrete next step: a viewing, a callback slot, or a document
  to send.
- If the person is busy or not interested, thank them and end politely.

Speaking style
- Speak in short sentences, one question at a time.
- Let the person finish; if they interrupt, stop and listen.
- Confirm dates, times, and phone numbers by reading them back.
- Do not read out lists or markdown; say it the way a person would.
`
