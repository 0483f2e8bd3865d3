package config

import "strings"

// ErrorSet defines a list of one or more errors and is itself an error.
// The loader keeps going after a bad key so a single pass reports every
// problem in the file.
type ErrorSet []error

func (e ErrorSet) Len() int {
	return len(e)
}

func (e *ErrorSet) Append(args ...error) {
	*e = append(*e, args...)
}

func (e ErrorSet) Error() string {
	var sb strings.Builder
	for i, err := range e {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// orNil returns the set as an error, or nil if it is empty.
func (e ErrorSet) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
