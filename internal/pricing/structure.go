package pricing

// Package pricing holds the time-versioned tariff catalog.
//
// Responsibilities:
//   - Model the three pricing schemes (per-token, per-request, tiered)
//   - Validate tier lists at insertion (ordered, non-overlapping)
//   - Resolve the active tariff for (provider, model, timestamp)
//
// Tariffs are never mutated after creation; a price change is a new table
// with a later effective_from that supersedes the old one at resolution.

import (
	"encoding/json"
	"fmt"

	"github.com/costplane/costplane/internal/domain"
	"github.com/shopspring/decimal"
)

// StructureType discriminates the pricing scheme.
type StructureType string

const (
	StructurePerToken   StructureType = "per_token"
	StructurePerRequest StructureType = "per_request"
	StructureTiered     StructureType = "tiered"
)

// PerToken prices prompt and completion tokens independently, with an
// optional discount on prompt tokens served from the provider's cache.
type PerToken struct {
	InputPricePerMillion  decimal.Decimal  `json:"input_price_per_million"`
	OutputPricePerMillion decimal.Decimal  `json:"output_price_per_million"`
	CachedInputDiscount   *decimal.Decimal `json:"cached_input_discount,omitempty"`
}

// PerRequest charges a flat price with an included token allowance and a
// per-million overage rate beyond it.
type PerRequest struct {
	PricePerRequest        decimal.Decimal `json:"price_per_request"`
	IncludedTokens         uint64          `json:"included_tokens"`
	OveragePricePerMillion decimal.Decimal `json:"overage_price_per_million"`
}

// Tier is one band of a tiered scheme. MaxTokens nil means unbounded.
type Tier struct {
	MinTokens             uint64          `json:"min_tokens"`
	MaxTokens             *uint64         `json:"max_tokens,omitempty"`
	InputPricePerMillion  decimal.Decimal `json:"input_price_per_million"`
	OutputPricePerMillion decimal.Decimal `json:"output_price_per_million"`
}

// Contains reports whether a request of total tokens falls in this tier.
func (t Tier) Contains(totalTokens uint64) bool {
	if totalTokens < t.MinTokens {
		return false
	}
	return t.MaxTokens == nil || totalTokens <= *t.MaxTokens
}

// Structure is the tagged union over the three schemes. Exactly one of the
// payload fields is non-nil, selected by Type.
type Structure struct {
	Type       StructureType
	PerToken   *PerToken
	PerRequest *PerRequest
	Tiers      []Tier
}

// NewPerToken builds a simple per-token structure.
func NewPerToken(inputPerMillion, outputPerMillion decimal.Decimal) Structure {
	return Structure{
		Type: StructurePerToken,
		PerToken: &PerToken{
			InputPricePerMillion:  inputPerMillion,
			OutputPricePerMillion: outputPerMillion,
		},
	}
}

// NewPerTokenWithCache builds a per-token structure with a cache discount
// in [0,1] applied to cached prompt tokens.
func NewPerTokenWithCache(inputPerMillion, outputPerMillion, cachedDiscount decimal.Decimal) Structure {
	return Structure{
		Type: StructurePerToken,
		PerToken: &PerToken{
			InputPricePerMillion:  inputPerMillion,
			OutputPricePerMillion: outputPerMillion,
			CachedInputDiscount:   &cachedDiscount,
		},
	}
}

// NewPerRequest builds a per-request structure.
func NewPerRequest(pricePerRequest decimal.Decimal, includedTokens uint64, overagePerMillion decimal.Decimal) Structure {
	return Structure{
		Type: StructurePerRequest,
		PerRequest: &PerRequest{
			PricePerRequest:        pricePerRequest,
			IncludedTokens:         includedTokens,
			OveragePricePerMillion: overagePerMillion,
		},
	}
}

// NewTiered builds a tiered structure. Validation happens at catalog
// insertion, not here.
func NewTiered(tiers []Tier) Structure {
	return Structure{Type: StructureTiered, Tiers: tiers}
}

// Validate checks the scheme's internal consistency. Tier lists must start
// at zero, be strictly ordered, and leave no gaps or overlaps; the final
// tier may be unbounded.
func (s Structure) Validate() error {
	switch s.Type {
	case StructurePerToken:
		if s.PerToken == nil {
			return domain.NewError(domain.ErrInvalidPricing, "per_token structure missing payload")
		}
		if s.PerToken.InputPricePerMillion.Sign() < 0 || s.PerToken.OutputPricePerMillion.Sign() < 0 {
			return domain.NewError(domain.ErrInvalidPricing, "per_token rates must be non-negative")
		}
		if d := s.PerToken.CachedInputDiscount; d != nil {
			if d.Sign() < 0 || d.GreaterThan(decimal.NewFromInt(1)) {
				return domain.NewError(domain.ErrInvalidPricing,
					"cached_input_discount %s outside [0,1]", d)
			}
		}
	case StructurePerRequest:
		if s.PerRequest == nil {
			return domain.NewError(domain.ErrInvalidPricing, "per_request structure missing payload")
		}
		if s.PerRequest.PricePerRequest.Sign() < 0 || s.PerRequest.OveragePricePerMillion.Sign() < 0 {
			return domain.NewError(domain.ErrInvalidPricing, "per_request prices must be non-negative")
		}
	case StructureTiered:
		if len(s.Tiers) == 0 {
			return domain.NewError(domain.ErrInvalidPricing, "tiered structure has no tiers")
		}
		if s.Tiers[0].MinTokens != 0 {
			return domain.NewError(domain.ErrInvalidPricing,
				"first tier must start at 0, starts at %d", s.Tiers[0].MinTokens)
		}
		for i, tier := range s.Tiers {
			if tier.InputPricePerMillion.Sign() < 0 || tier.OutputPricePerMillion.Sign() < 0 {
				return domain.NewError(domain.ErrInvalidPricing, "tier %d rates must be non-negative", i)
			}
			if tier.MaxTokens != nil && *tier.MaxTokens < tier.MinTokens {
				return domain.NewError(domain.ErrInvalidPricing,
					"tier %d upper bound %d below lower bound %d", i, *tier.MaxTokens, tier.MinTokens)
			}
			if i < len(s.Tiers)-1 {
				if tier.MaxTokens == nil {
					return domain.NewError(domain.ErrInvalidPricing,
						"tier %d is unbounded but not last", i)
				}
				next := s.Tiers[i+1]
				if next.MinTokens != *tier.MaxTokens+1 {
					return domain.NewError(domain.ErrInvalidPricing,
						"tier %d ends at %d but tier %d starts at %d",
						i, *tier.MaxTokens, i+1, next.MinTokens)
				}
			}
		}
	default:
		return domain.NewError(domain.ErrInvalidPricing, "unknown pricing structure type %q", s.Type)
	}
	return nil
}

// TierFor selects the unique tier containing totalTokens, or nil.
func (s Structure) TierFor(totalTokens uint64) *Tier {
	for i := range s.Tiers {
		if s.Tiers[i].Contains(totalTokens) {
			return &s.Tiers[i]
		}
	}
	return nil
}

type structureWire struct {
	Type       StructureType `json:"type"`
	PerToken   *PerToken     `json:"per_token,omitempty"`
	PerRequest *PerRequest   `json:"per_request,omitempty"`
	Tiers      []Tier        `json:"tiers,omitempty"`
}

func (s Structure) MarshalJSON() ([]byte, error) {
	return json.Marshal(structureWire{
		Type:       s.Type,
		PerToken:   s.PerToken,
		PerRequest: s.PerRequest,
		Tiers:      s.Tiers,
	})
}

func (s *Structure) UnmarshalJSON(data []byte) error {
	var w structureWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case StructurePerToken, StructurePerRequest, StructureTiered:
	default:
		return fmt.Errorf("unknown pricing structure type %q", w.Type)
	}
	*s = Structure{
		Type:       w.Type,
		PerToken:   w.PerToken,
		PerRequest: w.PerRequest,
		Tiers:      w.Tiers,
	}
	return nil
}
