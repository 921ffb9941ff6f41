package linqpipe

import (
	"github.com/go-playground/validator/v10"
)

var optionsValidate = validator.New(validator.WithRequiredStructEnabled())

// TranslateOptions bounds the shape of pipeline a caller is willing to
// accept, so an attacker-controlled or malformed expression tree cannot
// make Build emit an unbounded pipeline. Guard names and defaults are
// modeled on the size-guard constants an aggregation-building AST layer
// typically carries (MaxPipelineStages, MaxSortFields, and friends).
type TranslateOptions struct {
	// MaxStages caps the number of stages Build will emit. Zero means
	// "use DefaultMaxStages".
	MaxStages int `validate:"gte=0"`

	// MaxSortFields caps the number of OrderBy/ThenBy keys in a single
	// sort specification.
	MaxSortFields int `validate:"gte=0"`

	// MaxProjectionFields is validated, defaulted and made part of the
	// BuildCached key like the other guards, but Build does not enforce
	// it: no MemberInit is rejected for the number of members it binds.
	MaxProjectionFields int `validate:"gte=0"`

	// AllowDiskUse is carried through to Result.AllowDiskUse so a caller
	// can set it on the driver's own aggregate options before running the
	// pipeline; the translator itself has no memory budget to enforce.
	AllowDiskUse bool
}

const (
	DefaultMaxStages           = 64
	DefaultMaxSortFields       = 8
	DefaultMaxProjectionFields = 64
)

// DefaultTranslateOptions returns the options Build uses when called with
// a zero TranslateOptions.
func DefaultTranslateOptions() TranslateOptions {
	return TranslateOptions{
		MaxStages:           DefaultMaxStages,
		MaxSortFields:       DefaultMaxSortFields,
		MaxProjectionFields: DefaultMaxProjectionFields,
	}
}

// normalize validates o and fills any zero-valued guard with its default,
// returning the options Build should actually enforce.
func (o TranslateOptions) normalize() (TranslateOptions, error) {
	if err := optionsValidate.Struct(o); err != nil {
		return TranslateOptions{}, internalInvariant("invalid TranslateOptions: %s", err.Error())
	}
	if o.MaxStages == 0 {
		o.MaxStages = DefaultMaxStages
	}
	if o.MaxSortFields == 0 {
		o.MaxSortFields = DefaultMaxSortFields
	}
	if o.MaxProjectionFields == 0 {
		o.MaxProjectionFields = DefaultMaxProjectionFields
	}
	return o, nil
}
