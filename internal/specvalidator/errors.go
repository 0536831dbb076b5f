package specvalidator

import "strings"

// ValidationError aggregates document validation issues.
type ValidationError struct {
	Document string
	Issues   []string
}

func (e *ValidationError) Error() string {
	prefix := "validation failed"
	if strings.TrimSpace(e.Document) != "" {
		prefix = e.Document + " validation failed"
	}
	if len(e.Issues) == 0 {
		return prefix
	}
	return prefix + ": " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}
