package chore

import "errors"

var (
	ErrNoGroup        = errors.New("user has no group")
	ErrGroupNotFound  = errors.New("group not found")
	ErrTaskNotFound   = errors.New("task not found")
	ErrNotMember      = errors.New("user is not a member of the group")
	ErrNotAssignee    = errors.New("only an assignee can complete this task")
	ErrAlreadyInGroup = errors.New("user already belongs to another group")
)

// ValidationError is a user-correctable input problem.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
