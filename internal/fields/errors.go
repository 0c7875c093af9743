package fields

import (
	"errors"
	"fmt"
	"strings"
)

// Raw error strings emitted by the service's commit message parser.
const (
	noTestPlanMessage     = "Invalid or missing field 'Test Plan': You must provide a test plan."
	unknownReviewerPrefix = "Error parsing field 'Reviewers': Commit message references nonexistent users: "
)

// ParseError is one problem reported while parsing a commit message. The
// concrete type is one of NoTestPlan, UnknownReviewer or Unrecognized.
type ParseError interface {
	parseError()
	String() string
}

// NoTestPlan reports a message without a test plan section.
type NoTestPlan struct{}

// UnknownReviewer reports reviewer names that matched no registered user.
type UnknownReviewer struct {
	Names []string
}

// Unrecognized carries any parser message this package does not model.
type Unrecognized struct {
	Message string
}

func (NoTestPlan) parseError()      {}
func (UnknownReviewer) parseError() {}
func (Unrecognized) parseError()    {}

func (NoTestPlan) String() string { return "no test plan" }

func (e UnknownReviewer) String() string {
	return "unknown reviewers: " + strings.Join(e.Names, ", ")
}

func (e Unrecognized) String() string { return e.Message }

// ParseErrors maps the parser's raw error strings onto typed variants,
// preserving order.
func ParseErrors(raw []string) []ParseError {
	result := make([]ParseError, 0, len(raw))
	for _, msg := range raw {
		switch {
		case msg == noTestPlanMessage:
			result = append(result, NoTestPlan{})
		case strings.HasPrefix(msg, unknownReviewerPrefix):
			users := msg[len(unknownReviewerPrefix):]
			if users != "" {
				// drop the closing period
				users = users[:len(users)-1]
			}
			result = append(result, UnknownReviewer{Names: strings.Split(users, ", ")})
		default:
			result = append(result, Unrecognized{Message: msg})
		}
	}
	return result
}

// RawError is the inverse of ParseErrors for a single error.
func RawError(e ParseError) string {
	switch v := e.(type) {
	case NoTestPlan:
		return noTestPlanMessage
	case UnknownReviewer:
		return unknownReviewerPrefix + strings.Join(v.Names, ", ") + "."
	case Unrecognized:
		return v.Message
	default:
		return e.String()
	}
}

// ErrUnrecognizedResponse matches any *UnrecognizedResponseError.
var ErrUnrecognizedResponse = errors.New("unrecognized parser response")

// UnrecognizedResponseError is returned when the parser's field container is
// not an object. It is a protocol error and is never retried.
type UnrecognizedResponseError struct {
	Raw string
}

func (e *UnrecognizedResponseError) Error() string {
	return fmt.Sprintf("fields is not a map: %s", e.Raw)
}

func (e *UnrecognizedResponseError) Is(target error) bool {
	return target == ErrUnrecognizedResponse
}
