package solo

import "errors"

var (
	// ErrNotSingleton is returned when a type or object was never registered
	// as a singleton type.
	ErrNotSingleton = errors.New("solo: not a singleton type")

	// ErrWrongCategory is returned when an operation for one category is
	// invoked with a type registered under the other one.
	ErrWrongCategory = errors.New("solo: wrong singleton category")

	// ErrAlreadyRegistered is returned when a type or key is registered twice
	// with conflicting descriptors.
	ErrAlreadyRegistered = errors.New("solo: singleton type already registered")

	// ErrNilCandidate is returned when election is requested for a nil candidate.
	ErrNilCandidate = errors.New("solo: nil candidate")

	// ErrUnsupportedTableVersion is returned when a baked table was written by
	// a newer schema than this build understands.
	ErrUnsupportedTableVersion = errors.New("solo: unsupported baked table version")

	// ErrNoArtifact is returned by AfterPackage when no BeforePackage run is pending.
	ErrNoArtifact = errors.New("solo: no baked table artifact pending")
)
