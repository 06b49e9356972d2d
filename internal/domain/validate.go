package domain

import "regexp"

// playerIDPattern is the strict shape: lowercase alphanumeric start,
// then 2–63 characters of alphanumerics, hyphen or underscore.
var playerIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,63}$`)

// PlayerIDValidator applies one schema to inbound player identifiers
// everywhere. Leniency is an explicit configuration choice, not an
// environment branch: a non-strict validator still rejects empty and
// oversized identifiers.
type PlayerIDValidator struct {
	Strict bool
}

// Validate returns ErrInvalidPlayerID when the identifier does not fit
// the schema.
func (v PlayerIDValidator) Validate(id string) error {
	if id == "" || len(id) > 64 {
		return ErrInvalidPlayerID
	}
	if v.Strict && !playerIDPattern.MatchString(id) {
		return ErrInvalidPlayerID
	}
	return nil
}
