package crawl

import "fmt"

// SourceError is the failure of one source. Stage is the state the source was
// in when it failed.
type SourceError struct {
	SourceID int64
	URL      string
	Stage    State
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %d '%s' failed while %s with %s", e.SourceID, e.URL, e.Stage, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// PanicError carries a recovered panic out of a source unit
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
