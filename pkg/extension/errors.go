package extension

import "fmt"

// ArgumentError reports that a call did not supply the expected number of
// integer-interpretable arguments. It is the only error the marshaling layer
// produces; handlers never see malformed arguments.
type ArgumentError struct {
	Module string
	Method string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Module, e.Method, e.Reason)
}
