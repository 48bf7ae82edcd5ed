// Package schedulefile reads and writes per-market fee structures in YAML.
//
//	markets:
//	  perp:
//	    tiers:
//	      - fee: {numerator: 100, denominator: 100000}
//	        maker_rebate: {numerator: 20, denominator: 100000}
//	        referee_discount: {numerator: 5, denominator: 100}
//	        referrer_reward: {numerator: 15, denominator: 100}
//	    filler_reward: {numerator: 10, denominator: 100}
//	    flat_filler_fee: "0.01"
//
// Loading does not validate the structures; callers run them through the
// validator before use.
package schedulefile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/efreitasn/feeschedule/internal/domain"
	"gopkg.in/yaml.v3"
)

// File is the YAML document.
type File struct {
	Markets map[string]Structure `yaml:"markets"`
}

// Structure is one market's fee structure.
type Structure struct {
	Tiers         []Tier `yaml:"tiers"`
	FillerReward  Rate   `yaml:"filler_reward"`
	FlatFillerFee string `yaml:"flat_filler_fee"`
}

// Tier is one row of a tier table.
type Tier struct {
	Fee             Rate `yaml:"fee"`
	MakerRebate     Rate `yaml:"maker_rebate"`
	RefereeDiscount Rate `yaml:"referee_discount"`
	ReferrerReward  Rate `yaml:"referrer_reward"`
}

// Rate is a numerator/denominator pair.
type Rate struct {
	Numerator   uint32 `yaml:"numerator"`
	Denominator uint32 `yaml:"denominator"`
}

// Parse decodes a YAML document, rejecting unknown keys.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode fee schedule: empty document")
		}
		return nil, fmt.Errorf("decode fee schedule: %w", err)
	}
	if len(f.Markets) == 0 {
		return nil, fmt.Errorf("decode fee schedule: no markets")
	}
	return &f, nil
}

// Load reads the file at path and converts it to domain structures.
func Load(path string) (map[domain.MarketType]domain.FeeStructure, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	f, err := Parse(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	structures, err := f.Structures()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return structures, nil
}

// Structures converts every market in f. Market names must be known
// market types.
func (f *File) Structures() (map[domain.MarketType]domain.FeeStructure, error) {
	out := make(map[domain.MarketType]domain.FeeStructure, len(f.Markets))
	for name, s := range f.Markets {
		market, err := domain.ParseMarketType(name)
		if err != nil {
			return nil, err
		}
		fs, err := s.toDomain()
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", name, err)
		}
		out[market] = fs
	}
	return out, nil
}

func (r Rate) toDomain() domain.Rate {
	return domain.Rate{Numerator: r.Numerator, Denominator: r.Denominator}
}

func fromRate(r domain.Rate) Rate {
	return Rate{Numerator: r.Numerator, Denominator: r.Denominator}
}

// toDomain is stricter than the validator: a market with no tiers is an
// error in the file.
func (s Structure) toDomain() (domain.FeeStructure, error) {
	if len(s.Tiers) == 0 {
		return domain.FeeStructure{}, fmt.Errorf("no tiers")
	}
	flat, err := domain.ParseQuote(s.FlatFillerFee)
	if err != nil {
		return domain.FeeStructure{}, fmt.Errorf("flat_filler_fee: %w", err)
	}

	tiers := make([]domain.FeeTier, len(s.Tiers))
	for i, t := range s.Tiers {
		tiers[i] = domain.FeeTier{
			FeeRate:             t.Fee.toDomain(),
			MakerRebateRate:     t.MakerRebate.toDomain(),
			RefereeDiscountRate: t.RefereeDiscount.toDomain(),
			ReferrerRewardRate:  t.ReferrerReward.toDomain(),
		}
	}
	return domain.FeeStructure{
		Tiers:         tiers,
		FillerReward:  domain.FillerRewardStructure{RewardRate: s.FillerReward.toDomain()},
		FlatFillerFee: flat,
	}, nil
}

// FromDomain builds a File holding the given structures.
func FromDomain(structures map[domain.MarketType]domain.FeeStructure) *File {
	f := &File{Markets: make(map[string]Structure, len(structures))}
	for market, fs := range structures {
		tiers := make([]Tier, len(fs.Tiers))
		for i, t := range fs.Tiers {
			tiers[i] = Tier{
				Fee:             fromRate(t.FeeRate),
				MakerRebate:     fromRate(t.MakerRebateRate),
				RefereeDiscount: fromRate(t.RefereeDiscountRate),
				ReferrerReward:  fromRate(t.ReferrerRewardRate),
			}
		}
		f.Markets[string(market)] = Structure{
			Tiers:         tiers,
			FillerReward:  fromRate(fs.FillerReward.RewardRate),
			FlatFillerFee: domain.FormatQuote(fs.FlatFillerFee),
		}
	}
	return f
}

// Encode writes f as YAML.
func (f *File) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode fee schedule: %w", err)
	}
	return enc.Close()
}
