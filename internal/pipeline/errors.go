package pipeline

import "fmt"

// ErrorKind is the machine-checkable classification of a failed run.
type ErrorKind string

const (
	KindInvalidReference   ErrorKind = "invalid_reference"
	KindNotFound           ErrorKind = "not_found"
	KindPrivate            ErrorKind = "private_or_inaccessible"
	KindAcquisitionFailed  ErrorKind = "acquisition_failed"
	KindInvalidLayout      ErrorKind = "invalid_project_layout"
	KindBackendUnavailable ErrorKind = "grading_backend_unavailable"
	KindDispatchFailed     ErrorKind = "grading_dispatch_failed"
	KindUnexpected         ErrorKind = "unexpected"
)

// Kinds lists every ErrorKind in taxonomy order.
var Kinds = []ErrorKind{
	KindInvalidReference,
	KindNotFound,
	KindPrivate,
	KindAcquisitionFailed,
	KindInvalidLayout,
	KindBackendUnavailable,
	KindDispatchFailed,
	KindUnexpected,
}

var kindMessages = map[ErrorKind]string{
	KindInvalidReference:   "The submission link is not a valid repository URL. Expected a link of the form https://host/owner/repository.",
	KindNotFound:           "The repository could not be found. Check that the link is correct and that the repository has not been deleted or renamed.",
	KindPrivate:            "The repository exists but is private or requires authentication. Ask the student to make it accessible, then grade it again.",
	KindAcquisitionFailed:  "The repository could not be downloaded. This is usually a temporary network problem; try again later.",
	KindInvalidLayout:      "No Unity project was found in the repository. Expected Assets and ProjectSettings folders within three levels of the repository root.",
	KindBackendUnavailable: "The grading service rejected the request. Check that the configured credentials are valid.",
	KindDispatchFailed:     "The grading request failed before a result was returned. The submission was analyzed but not graded.",
	KindUnexpected:         "An unexpected error occurred while processing the submission.",
}

// Message returns the fixed human-readable explanation for k.
func (k ErrorKind) Message() string {
	if m, ok := kindMessages[k]; ok {
		return m
	}
	return kindMessages[KindUnexpected]
}

// NeedsHumanReview reports whether failures of kind k should be routed to
// manual grading instead of being scored automatically.
func (k ErrorKind) NeedsHumanReview() bool {
	switch k {
	case KindPrivate, KindInvalidLayout, KindUnexpected:
		return true
	}
	return false
}

// Failure describes why a run stopped. Message is safe to show to users;
// Err holds the underlying cause for logs.
type Failure struct {
	Kind             ErrorKind `json:"error_kind"`
	Message          string    `json:"message"`
	NeedsHumanReview bool      `json:"needs_human_review"`
	Stage            State     `json:"stage"`
	Err              error     `json:"-"`
}

func newFailure(kind ErrorKind, stage State, err error) *Failure {
	return &Failure{
		Kind:             kind,
		Message:          kind.Message(),
		NeedsHumanReview: kind.NeedsHumanReview(),
		Stage:            stage,
		Err:              err,
	}
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s at %s: %v", f.Kind, f.Stage, f.Err)
	}
	return fmt.Sprintf("%s at %s", f.Kind, f.Stage)
}

func (f *Failure) Unwrap() error { return f.Err }
