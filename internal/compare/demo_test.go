package compare

import (
	"strings"
	"testing"

	"github.com/aimantra/ai-compare/internal/providers"
)

func TestDemoResponses_OnePerModelInOrder(t *testing.T) {
	prompt := "What is the capital of France?"
	got := DemoResponses(providers.Catalog, prompt)

	if len(got) != len(providers.Catalog) {
		t.Fatalf("got %d results, want %d", len(got), len(providers.Catalog))
	}
	for i, r := range got {
		spec := providers.Catalog[i]
		if r.Model != spec.Name || r.Icon != spec.Icon || r.Color != spec.Color {
			t.Errorf("result %d = %+v, want metadata of %s", i, r, spec.Name)
		}
		if r.Failed {
			t.Errorf("%s: demo results never fail", r.Model)
		}
		if !strings.Contains(r.Response, `"`+prompt+`"`) {
			t.Errorf("%s: response does not quote the prompt: %q", r.Model, r.Response)
		}
	}
}

func TestDemoResponses_ExactTemplates(t *testing.T) {
	got := DemoResponses(providers.Catalog, "Explain quantum computing")

	want := map[string]string{
		"GPT-4":  `I understand you're asking about: "Explain quantum computing". This is a comprehensive approach`,
		"Claude": `Regarding your question: "Explain quantum computing". I'd like to break this down`,
		"Gemini": `Thank you for asking about: "Explain quantum computing". This is an interesting question`,
		"Llama":  `I see you're inquiring about: "Explain quantum computing". This is a topic`,
	}
	for _, r := range got {
		if !strings.HasPrefix(r.Response, want[r.Model]) {
			t.Errorf("%s response = %q", r.Model, r.Response)
		}
	}
}

func TestDemoResponses_Deterministic(t *testing.T) {
	a := DemoResponses(providers.Catalog, "same")
	b := DemoResponses(providers.Catalog, "same")
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("result %d differs between calls", i)
		}
	}
}

func TestDemoResponses_PromptIsVerbatim(t *testing.T) {
	prompt := `100% "quoted" %s text`
	for _, r := range DemoResponses(providers.Catalog, prompt) {
		if !strings.Contains(r.Response, prompt) {
			t.Errorf("%s: prompt altered: %q", r.Model, r.Response)
		}
	}
}

func TestDemoResponses_UnknownModelUsesGenericText(t *testing.T) {
	got := DemoResponses([]providers.Spec{{Name: "Mistral"}}, "hi")
	if !strings.Contains(got[0].Response, `"hi"`) || !strings.Contains(got[0].Response, "Mistral") {
		t.Errorf("generic response = %q", got[0].Response)
	}
}

func TestUnavailableMessage(t *testing.T) {
	want := "Sorry, Claude is currently unavailable. Please try again later."
	if got := UnavailableMessage("Claude"); got != want {
		t.Errorf("UnavailableMessage = %q, want %q", got, want)
	}
}
