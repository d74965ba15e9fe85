package domain

import (
	"encoding/json"
	"strings"
)

// Provider identifies an LLM provider. The well-known providers serialize
// as fixed lowercase strings; anything else round-trips as a custom value.
type Provider struct {
	name string
}

var (
	ProviderOpenAI    = Provider{"openai"}
	ProviderAnthropic = Provider{"anthropic"}
	ProviderGoogle    = Provider{"google"}
	ProviderAzure     = Provider{"azure"}
	ProviderAWS       = Provider{"aws"}
	ProviderCohere    = Provider{"cohere"}
	ProviderMistral   = Provider{"mistral"}
)

// CustomProvider wraps an arbitrary provider name. The name is lowercased
// so equality and map keys behave the same as the well-known set.
func CustomProvider(name string) Provider {
	return Provider{strings.ToLower(strings.TrimSpace(name))}
}

// ParseProvider maps a free-form provider string onto the enumerated set.
// Aliases follow upstream telemetry conventions: "vertex" is Google,
// "bedrock" is AWS. Unknown names become custom providers.
func ParseProvider(s string) Provider {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return ProviderOpenAI
	case "anthropic":
		return ProviderAnthropic
	case "google", "vertex":
		return ProviderGoogle
	case "azure":
		return ProviderAzure
	case "aws", "bedrock":
		return ProviderAWS
	case "cohere":
		return ProviderCohere
	case "mistral":
		return ProviderMistral
	default:
		return CustomProvider(s)
	}
}

// IsZero reports whether the provider is unset.
func (p Provider) IsZero() bool { return p.name == "" }

// IsCustom reports whether the provider is outside the enumerated set.
func (p Provider) IsCustom() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderAzure,
		ProviderAWS, ProviderCohere, ProviderMistral:
		return false
	}
	return !p.IsZero()
}

func (p Provider) String() string { return p.name }

// SupportsTokenValidation reports whether the provider's own usage API can
// be used to cross-check reported token counts.
func (p Provider) SupportsTokenValidation() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		return true
	}
	return false
}

// DefaultContextWindow returns a conservative context window for a model
// when upstream telemetry does not report one.
func (p Provider) DefaultContextWindow(model string) uint64 {
	switch {
	case p == ProviderOpenAI && strings.Contains(model, "gpt-4"):
		return 8192
	case p == ProviderOpenAI && strings.Contains(model, "gpt-3.5"):
		return 4096
	case p == ProviderAnthropic && strings.Contains(model, "claude-3"):
		return 200000
	case p == ProviderGoogle:
		return 32768
	}
	return 4096
}

func (p Provider) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.name)
}

func (p *Provider) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = ParseProvider(s)
	return nil
}

// ModelIdentifier names a model, optionally with a version and context
// window capacity reported by upstream telemetry.
type ModelIdentifier struct {
	Name          string  `json:"name"`
	Version       string  `json:"version,omitempty"`
	ContextWindow *uint64 `json:"context_window,omitempty"`
}

// NewModel builds an identifier with a known context window.
func NewModel(name string, contextWindow uint64) ModelIdentifier {
	return ModelIdentifier{Name: name, ContextWindow: &contextWindow}
}

// Currency is an ISO-4217 code, or a custom code for private billing units.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyJPY Currency = "JPY"
)

// ParseCurrency accepts ISO-4217 codes case-insensitively; anything else is
// carried through uppercased as a custom unit.
func ParseCurrency(s string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(s)))
}

func (c Currency) String() string { return string(c) }
