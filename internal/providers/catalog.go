package providers

// Spec describes one model in the comparison. The catalog is fixed at
// startup; callers cannot choose models.
type Spec struct {
	// Name is the display name, also used as the result's "model" field.
	Name string
	// ModelID is the OpenRouter model identifier.
	ModelID string
	Icon    string
	Color   string

	// Direct names the backend that can serve this model without OpenRouter,
	// and DirectModel is its native model identifier there.
	Direct      string
	DirectModel string
}

// Catalog is the ordered list of compared models. Results are always
// returned in this order.
var Catalog = []Spec{
	{
		Name:        "GPT-4",
		ModelID:     "openai/gpt-4",
		Icon:        "🤖",
		Color:       "from-green-500 to-emerald-500",
		Direct:      BackendOpenAI,
		DirectModel: "gpt-4",
	},
	{
		Name:        "Claude",
		ModelID:     "anthropic/claude-3-haiku",
		Icon:        "🧠",
		Color:       "from-blue-500 to-cyan-500",
		Direct:      BackendAnthropic,
		DirectModel: "claude-3-haiku-20240307",
	},
	{
		Name:        "Gemini",
		ModelID:     "google/gemini-pro",
		Icon:        "💎",
		Color:       "from-purple-500 to-pink-500",
		Direct:      BackendGemini,
		DirectModel: "gemini-pro",
	},
	{
		Name:        "Llama",
		ModelID:     "meta-llama/llama-3.1-8b-instruct",
		Icon:        "🦙",
		Color:       "from-orange-500 to-red-500",
		Direct:      BackendGroq,
		DirectModel: "llama-3.1-8b-instant",
	},
}

// Binding is a catalog entry paired with the client that serves it.
// Provider is nil when no configured backend can serve the entry.
type Binding struct {
	Spec     Spec
	Provider Provider
	// Model is the identifier sent upstream: DirectModel for a direct
	// backend, ModelID for OpenRouter.
	Model string
}

// Bind pairs each spec with a client. A spec is served by its direct
// backend when one is present in direct, otherwise by router (which may be
// nil). The returned slice preserves the order of specs.
func Bind(specs []Spec, direct map[string]Provider, router Provider) []Binding {
	out := make([]Binding, len(specs))
	for i, s := range specs {
		out[i] = Binding{Spec: s}
		if p, ok := direct[s.Direct]; ok && p != nil {
			out[i].Provider = p
			out[i].Model = s.DirectModel
			continue
		}
		if router != nil {
			out[i].Provider = router
			out[i].Model = s.ModelID
		}
	}
	return out
}

// Live reports whether any binding has a client. Without one the service
// runs in demo mode.
func Live(bindings []Binding) bool {
	for _, b := range bindings {
		if b.Provider != nil {
			return true
		}
	}
	return false
}
