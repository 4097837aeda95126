package domain

import "errors"

// Domain errors
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNameRequired  = errors.New("name is required")
	ErrNameTooLong   = errors.New("name exceeds maximum length")
	ErrNoRecord      = errors.New("no loan record loaded")
	ErrNotBound      = errors.New("view is not bound to a drive file")
	ErrEditInProcess = errors.New("loan is being edited")
	ErrRecordBound   = errors.New("loan is saved to a drive file; edit it to change its terms")
	ErrRenameFailed  = errors.New("rename was rejected by the drive")
	ErrViewNotOpen   = errors.New("loan view is not open")
)

// Validation constants
const (
	MaxFileNameLength = 255
)
