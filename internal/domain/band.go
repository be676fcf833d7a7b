package domain

// Band represents a discrete exercise difficulty tier
type Band string

const (
	BandBeginner     Band = "beginner"
	BandIntermediate Band = "intermediate"
	BandAdvanced     Band = "advanced"
)

// String returns the band name
func (b Band) String() string {
	return string(b)
}

// IsZero reports whether the band is unset
func (b Band) IsZero() bool {
	return b == ""
}

// BandBound is the inclusive lower score bound of a band. A band extends up
// to the next band's lower bound; the last band is closed at MaxScore.
type BandBound struct {
	Band  Band    `yaml:"band" json:"band"`
	Lower float64 `yaml:"lower" json:"lower"`
}

// DefaultBands partitions the default 1-10 range into three tiers
func DefaultBands() []BandBound {
	return []BandBound{
		{Band: BandBeginner, Lower: 1.0},
		{Band: BandIntermediate, Lower: 4.0},
		{Band: BandAdvanced, Lower: 7.0},
	}
}
