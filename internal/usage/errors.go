package usage

import "fmt"

// MissingColumnError reports a column the cleaning contract requires but the
// input does not carry, either before the unconditional drops or after the
// rename step. The summary builders also use it when the serv label column
// was never applied.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column %q", e.Column)
}

// InvalidDateError reports a date cell that is blank or matches none of the
// accepted layouts. Row is the 1-based data row, headers excluded.
type InvalidDateError struct {
	Row   int
	Value string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("row %d: unparseable date %q", e.Row, e.Value)
}

// InvalidAgeError reports an age cell that does not coerce to a whole
// integer, including fractional-looking values such as "25.0".
type InvalidAgeError struct {
	Row   int
	Value string
}

func (e *InvalidAgeError) Error() string {
	return fmt.Sprintf("row %d: age %q is not a whole number", e.Row, e.Value)
}

// NotFoundError reports a service-code lookup miss. Exactly one of Code and
// Service is set, naming the side of the mapping that was queried.
type NotFoundError struct {
	Code    string
	Service string
}

func (e *NotFoundError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("no service for code %q", e.Code)
	}
	return fmt.Sprintf("no code for service %q", e.Service)
}
