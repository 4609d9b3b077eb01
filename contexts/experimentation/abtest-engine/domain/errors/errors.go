package errors

import "errors"

var (
	ErrInvalidInput            = errors.New("invalid experiment input")
	ErrInvalidPrior            = errors.New("beta prior parameters must be positive")
	ErrUnknownCampaign         = errors.New("unknown campaign")
	ErrUnknownVariant          = errors.New("unknown variant for campaign")
	ErrUnknownPolicy           = errors.New("unknown assignment policy")
	ErrUnsupportedVariantCount = errors.New("assignment policy requires exactly two variants")
	ErrAlreadyAssigned         = errors.New("user is already assigned to a different variant")
	ErrNoAssignment            = errors.New("user has no assignment for campaign")
	ErrConflict                = errors.New("experiment state conflict")
)

// IsDomain reports whether err carries one of the engine's sentinel errors.
// Anything else is treated as a persistence or transport failure.
func IsDomain(err error) bool {
	for _, target := range []error{
		ErrInvalidInput,
		ErrInvalidPrior,
		ErrUnknownCampaign,
		ErrUnknownVariant,
		ErrUnknownPolicy,
		ErrUnsupportedVariantCount,
		ErrAlreadyAssigned,
		ErrNoAssignment,
		ErrConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
