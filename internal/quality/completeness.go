package quality

import "math"

// Fields every listing must carry, and fields that improve it.
var (
	RequiredFields = []string{"title", "location", "price", "property_type"}
	OptionalFields = []string{"description", "agent_name", "mobile", "area_size", "rooms"}
)

// Completeness describes how much of a listing record is filled in.
type Completeness struct {
	Score           int      `json:"score"`
	Filled          int      `json:"filled"`
	Total           int      `json:"total"`
	MissingRequired []string `json:"missing_required"`
	MissingOptional []string `json:"missing_optional"`
	Complete        bool     `json:"complete"`
}

// ValidateCompleteness checks r against RequiredFields and OptionalFields.
// Names match the way duplicate detection does, so "Property-Type" counts
// as property_type. Score is the filled share of all listed fields.
func ValidateCompleteness(r Record) Completeness {
	c := Completeness{
		Total:           len(RequiredFields) + len(OptionalFields),
		MissingRequired: []string{},
		MissingOptional: []string{},
	}
	filled := func(name string) bool {
		v, ok := r.Get(name)
		return ok && !isEmptyValue(v)
	}
	for _, f := range RequiredFields {
		if filled(f) {
			c.Filled++
		} else {
			c.MissingRequired = append(c.MissingRequired, f)
		}
	}
	for _, f := range OptionalFields {
		if filled(f) {
			c.Filled++
		} else {
			c.MissingOptional = append(c.MissingOptional, f)
		}
	}
	c.Score = int(math.Round(float64(c.Filled) * 100 / float64(c.Total)))
	c.Complete = len(c.MissingRequired) == 0
	return c
}
