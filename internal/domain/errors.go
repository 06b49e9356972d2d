package domain

import "errors"

// Domain errors
var (
	ErrInvalidGuess       = errors.New("guess is missing or malformed")
	ErrInvalidPlayerID    = errors.New("invalid player id")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrPuzzleNotFound     = errors.New("puzzle not found")
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrThemeNotFound      = errors.New("theme not found")
	ErrStreakNotFound     = errors.New("streak not found")
	ErrEntryNotFound      = errors.New("leaderboard entry not found")
	ErrAttemptComplete    = errors.New("attempt is already complete")
	ErrAttemptConflict    = errors.New("attempt was modified concurrently")
	ErrPartitionFinalized = errors.New("leaderboard partition is finalized")
	ErrNotAttemptOwner    = errors.New("attempt belongs to another player")
	ErrStorageFailure     = errors.New("storage operation failed")
	ErrSimilarityFailure  = errors.New("similarity provider failed")
	ErrInternalError      = errors.New("internal server error")
)

// IsValidation reports whether the error is a malformed-input error.
// Validation errors are never retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidGuess) ||
		errors.Is(err, ErrInvalidPlayerID) ||
		errors.Is(err, ErrInvalidRequest)
}

// IsNotFound reports whether the error is a missing-resource error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPuzzleNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrThemeNotFound) ||
		errors.Is(err, ErrStreakNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}

// IsConflict reports whether the error is an operation on an
// already-terminal or already-finalized resource.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAttemptComplete) ||
		errors.Is(err, ErrAttemptConflict) ||
		errors.Is(err, ErrPartitionFinalized)
}

// IsAuthorization reports whether the error is an identity mismatch.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNotAttemptOwner)
}

// IsDependency reports whether the error came from an external
// collaborator (storage or the similarity provider).
func IsDependency(err error) bool {
	return errors.Is(err, ErrStorageFailure) ||
		errors.Is(err, ErrSimilarityFailure)
}
