package search

import "fmt"

// ErrorKind classifies a match failure
type ErrorKind string

const (
	KindPattern     ErrorKind = "pattern"
	KindHash        ErrorKind = "hash"
	KindIO          ErrorKind = "io"
	KindOS          ErrorKind = "os"
	KindPrivilege   ErrorKind = "privilege"
	KindUnsupported ErrorKind = "unsupported"
)

// Evidence is a successful match of one request
type Evidence struct {
	Tag
	Modality    Modality
	Description string
}

// MatchError is a failure scoped to one request, or to a whole modality
// when Tag is zero.
type MatchError struct {
	Tag
	Modality Modality
	Kind     ErrorKind
	Message  string
}

func (e *MatchError) Error() string {
	if e.IocID == 0 && e.EntryID == 0 {
		return fmt.Sprintf("%s search: %s", e.Modality, e.Message)
	}
	return fmt.Sprintf("%s search: %s (ioc %d, entry %d)", e.Modality, e.Message, e.IocID, e.EntryID)
}

// Outcome holds exactly one of Evidence or Err
type Outcome struct {
	Evidence *Evidence
	Err      *MatchError
}

// OK reports whether the outcome is a successful match
func (o Outcome) OK() bool {
	return o.Evidence != nil
}

// Tag returns the correlation tag of whichever side is set
func (o Outcome) Tag() Tag {
	if o.Evidence != nil {
		return o.Evidence.Tag
	}
	if o.Err != nil {
		return o.Err.Tag
	}
	return Tag{}
}

// Hit builds a successful outcome
func Hit(tag Tag, m Modality, format string, args ...interface{}) Outcome {
	return Outcome{Evidence: &Evidence{Tag: tag, Modality: m, Description: fmt.Sprintf(format, args...)}}
}

// Fail builds a failed outcome
func Fail(tag Tag, m Modality, kind ErrorKind, format string, args ...interface{}) Outcome {
	return Outcome{Err: &MatchError{Tag: tag, Modality: m, Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

// Hits filters the successful outcomes
func Hits(outcomes []Outcome) []Evidence {
	var res []Evidence
	for _, o := range outcomes {
		if o.Evidence != nil {
			res = append(res, *o.Evidence)
		}
	}
	return res
}

// Errors filters the failed outcomes
func Errors(outcomes []Outcome) []MatchError {
	var res []MatchError
	for _, o := range outcomes {
		if o.Err != nil {
			res = append(res, *o.Err)
		}
	}
	return res
}
