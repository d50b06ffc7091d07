package persistence

import "errors"

// Standard persistence error types that all implementations should use.
var (
	// ErrAutomationNotFound indicates no automation exists for the identifier.
	ErrAutomationNotFound = errors.New("automation not found")

	// ErrExecutionNotFound indicates no execution exists for the identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrSettingNotFound indicates no setting row matches the scope and key.
	ErrSettingNotFound = errors.New("setting not found")

	// ErrImportNotFound indicates no import exists for the identifier.
	ErrImportNotFound = errors.New("import not found")

	// ErrDuplicateName indicates a uniqueness constraint rejected the write
	// (import name per owner, setting key per scope).
	ErrDuplicateName = errors.New("name already exists")

	// ErrPermissionDenied indicates the store refused the write for the
	// acting identity.
	ErrPermissionDenied = errors.New("permission denied")
)

// IsNotFound checks whether an error is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAutomationNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrSettingNotFound) ||
		errors.Is(err, ErrImportNotFound)
}

// IsDuplicateName checks whether an error is a uniqueness violation.
func IsDuplicateName(err error) bool {
	return errors.Is(err, ErrDuplicateName)
}

// IsPermissionDenied checks whether an error is an authorization failure.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
