package pricing

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/costplane/costplane/internal/domain"
	"github.com/shopspring/decimal"
)

func TestStructure_JSONRoundTrip(t *testing.T) {
	upper := uint64(999)
	structures := []Structure{
		NewPerToken(decimal.RequireFromString("10.5"), decimal.NewFromInt(30)),
		NewPerTokenWithCache(decimal.NewFromInt(3), decimal.NewFromInt(15),
			decimal.RequireFromString("0.9")),
		NewPerRequest(decimal.RequireFromString("0.01"), 2000, decimal.NewFromInt(5)),
		NewTiered([]Tier{
			{MinTokens: 0, MaxTokens: &upper,
				InputPricePerMillion: decimal.NewFromInt(10), OutputPricePerMillion: decimal.NewFromInt(30)},
			{MinTokens: 1000,
				InputPricePerMillion: decimal.NewFromInt(8), OutputPricePerMillion: decimal.NewFromInt(24)},
		}),
	}

	for _, s := range structures {
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal %s failed: %v", s.Type, err)
		}
		if !strings.Contains(string(data), `"type":"`+string(s.Type)+`"`) {
			t.Errorf("tagged union must carry its type: %s", data)
		}

		var back Structure
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s failed: %v", s.Type, err)
		}
		if back.Type != s.Type {
			t.Errorf("type changed: %s → %s", s.Type, back.Type)
		}
		switch s.Type {
		case StructurePerToken:
			if !back.PerToken.InputPricePerMillion.Equal(s.PerToken.InputPricePerMillion) {
				t.Error("per_token rates did not survive the round trip")
			}
			if (s.PerToken.CachedInputDiscount == nil) != (back.PerToken.CachedInputDiscount == nil) {
				t.Error("cache discount presence changed")
			}
		case StructurePerRequest:
			if back.PerRequest.IncludedTokens != s.PerRequest.IncludedTokens ||
				!back.PerRequest.PricePerRequest.Equal(s.PerRequest.PricePerRequest) {
				t.Error("per_request fields did not survive the round trip")
			}
		case StructureTiered:
			if len(back.Tiers) != len(s.Tiers) {
				t.Fatal("tier count changed")
			}
			if *back.Tiers[0].MaxTokens != upper || back.Tiers[1].MaxTokens != nil {
				t.Error("tier bounds did not survive the round trip")
			}
		}
	}
}

func TestStructure_UnknownTypeRejected(t *testing.T) {
	var s Structure
	if err := json.Unmarshal([]byte(`{"type":"flat_fee"}`), &s); err == nil {
		t.Error("unknown structure type should fail to decode")
	}
}

func TestTable_DecimalsSerializeAsStrings(t *testing.T) {
	table := NewTable(domain.ProviderOpenAI, "gpt-4",
		NewPerToken(decimal.RequireFromString("10.5"), decimal.NewFromInt(30)))
	data, err := json.Marshal(table)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	// Rates travel as decimal strings, never bare JSON numbers.
	if !strings.Contains(string(data), `"input_price_per_million":"10.5"`) {
		t.Errorf("decimal must serialize as a string: %s", data)
	}
	if !strings.Contains(string(data), `"provider":"openai"`) {
		t.Errorf("provider must serialize as a lowercase string: %s", data)
	}

	var back Table
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back.ID != table.ID || back.Provider != table.Provider ||
		!back.EffectiveFrom.Equal(table.EffectiveFrom) {
		t.Error("pricing table did not survive the round trip")
	}
}
