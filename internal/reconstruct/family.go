package reconstruct

import "fmt"

// Family identifies a measurement family. Each family has its own store
// namespace and reconstruction variant.
type Family string

const (
	FamilyLipid   Family = "lipid"
	FamilyGene    Family = "gene"
	FamilyPeak    Family = "peak"
	FamilyProgram Family = "program"
	FamilyStream  Family = "stream"
)

// Normalization selects the intensity rescaling applied after hole filling.
type Normalization int

const (
	// NormNone keeps raw intensities.
	NormNone Normalization = iota
	// NormTable clips to the [vmin, vmax] range from the percentile table.
	NormTable
	// NormPercentile clips to the [p2, p98] range of the filled image itself.
	NormPercentile
)

// FamilyConfig holds the per-family reconstruction variant.
type FamilyConfig struct {
	Family        Family
	Namespace     string // store namespace holding this family's records
	Normalization Normalization
	MultiChannel  bool // records pack several channels per (brain, slice)
}

var familyConfigs = map[Family]FamilyConfig{
	FamilyLipid:   {Family: FamilyLipid, Namespace: "lipid_images", Normalization: NormNone},
	FamilyGene:    {Family: FamilyGene, Namespace: "gene_images", Normalization: NormNone},
	FamilyPeak:    {Family: FamilyPeak, Namespace: "peak_images", Normalization: NormTable},
	FamilyProgram: {Family: FamilyProgram, Namespace: "program_images", Normalization: NormPercentile, MultiChannel: true},
	FamilyStream:  {Family: FamilyStream, Namespace: "stream_images", Normalization: NormNone},
}

// ConfigFor returns the configuration for a family.
func ConfigFor(f Family) (FamilyConfig, error) {
	cfg, ok := familyConfigs[f]
	if !ok {
		return FamilyConfig{}, fmt.Errorf("unknown measurement family: %s", f)
	}
	return cfg, nil
}

// Families returns all known families in a fixed order.
func Families() []Family {
	return []Family{FamilyLipid, FamilyGene, FamilyPeak, FamilyProgram, FamilyStream}
}
