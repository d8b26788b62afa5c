package compare

import (
	"fmt"

	"github.com/aimantra/ai-compare/internal/providers"
)

// demoTemplates holds the canned demo answer per catalog name. Each has a
// single %s verb that receives the prompt verbatim.
var demoTemplates = map[string]string{
	"GPT-4": `I understand you're asking about: "%s". This is a comprehensive approach that considers multiple perspectives and provides actionable insights. In my analysis, I would recommend considering the various factors involved and taking a structured approach to address your question effectively.`,
	"Claude": `Regarding your question: "%s". I'd like to break this down into clear, manageable steps. From my perspective, it's important to consider both the immediate and long-term implications. Here's a thoughtful analysis that addresses your specific needs and requirements.`,
	"Gemini": `Thank you for asking about: "%s". This is an interesting question that deserves a detailed analysis. Based on current understanding and best practices, I would suggest taking a multi-faceted approach that considers various perspectives and potential outcomes.`,
	"Llama": `I see you're inquiring about: "%s". This is a topic that benefits from careful consideration. In my experience, the most effective approach involves understanding the context, analyzing the options, and implementing a solution that addresses the core requirements while remaining adaptable.`,
}

const genericDemoTemplate = `This is a demo response about: "%s". Configure an API key to get a live answer from %s.`

// DemoResponses returns one canned answer per spec, in order. It never fails
// and never touches the network.
func DemoResponses(specs []providers.Spec, prompt string) []Result {
	out := make([]Result, len(specs))
	for i, s := range specs {
		var text string
		if tmpl, ok := demoTemplates[s.Name]; ok {
			text = fmt.Sprintf(tmpl, prompt)
		} else {
			text = fmt.Sprintf(genericDemoTemplate, prompt, s.Name)
		}
		out[i] = Result{
			Model:    s.Name,
			Response: text,
			Icon:     s.Icon,
			Color:    s.Color,
		}
	}
	return out
}

// UnavailableMessage is the text shown for a model that failed in live mode.
func UnavailableMessage(name string) string {
	return "Sorry, " + name + " is currently unavailable. Please try again later."
}
