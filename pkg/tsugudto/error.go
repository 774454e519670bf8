package tsugudto

// BackendError carries the message text of a structured `status: failed`
// backend reply. It is user-facing and relayed verbatim after the error
// prefix, unlike transport errors.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "tsugu backend error"
}
