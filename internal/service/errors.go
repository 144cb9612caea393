package service

import "fmt"

// ResourceChatLog names ledger entries in service errors
const ResourceChatLog = "chat_log"

// NotFoundError is returned when a ledger lookup matches no entry
type NotFoundError struct {
	Resource string
	Field    string
	Value    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with %s %q not found", e.Resource, e.Field, e.Value)
}

// ValidationError is a request the service refuses before touching storage
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// BusinessLogicError represents a request that is well-formed but not allowed
type BusinessLogicError struct {
	Message string
}

func (e *BusinessLogicError) Error() string {
	return fmt.Sprintf("business logic error: %s", e.Message)
}

// ConflictError is a write that collides with an existing ledger entry,
// such as a provider message id recorded twice.
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Message)
}
