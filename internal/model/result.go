package model

import "fmt"

// ResultKind names the outcome of one section extraction.
type ResultKind string

const (
	KindContent ResultKind = "content"
	KindEmpty   ResultKind = "empty"
	KindFailed  ResultKind = "failed"
)

// StepResult is the outcome of extracting one section from one filing.
// The set of implementations is closed: Content, Empty and Failed.
type StepResult interface {
	Kind() ResultKind
	stepResult()
}

// Content is a successfully extracted section.
type Content struct {
	Text   string
	Length int
}

// Empty means the service answered with too little text for the section to
// exist in this filing.
type Empty struct {
	Length int
}

// Failed means the section could not be extracted within the attempt budget.
type Failed struct {
	Reason string
}

func (Content) Kind() ResultKind { return KindContent }
func (Empty) Kind() ResultKind   { return KindEmpty }
func (Failed) Kind() ResultKind  { return KindFailed }

func (Content) stepResult() {}
func (Empty) stepResult()   {}
func (Failed) stepResult()  {}

// NewContent builds a Content result, measuring the text length in bytes.
func NewContent(text string) Content {
	return Content{Text: text, Length: len(text)}
}

// Failedf builds a Failed result from a format string.
func Failedf(format string, args ...any) Failed {
	return Failed{Reason: fmt.Sprintf(format, args...)}
}

// Succeeded reports whether r carries extracted content.
func Succeeded(r StepResult) bool {
	_, ok := r.(Content)
	return ok
}
