// Package transport dispatches requests to the ad endpoint and reports each result as
// an Outcome.
package transport

import "fmt"

// Outcome is the uniform status delivered to every callback.
type Outcome struct {
	Code int    `json:"code"`
	Text string `json:"text"`
}

var (
	Success          = Outcome{Code: 0, Text: "success"}
	FailedUnlinkSlot = Outcome{Code: 1001, Text: "no ad slot supplied"}
	InvalidSlot      = Outcome{Code: 1002, Text: "invalid ad slot"}
	NetworkError     = Outcome{Code: 1003, Text: "network error"}
	Timeout          = Outcome{Code: 1004, Text: "request timed out"}
	BadRequest       = Outcome{Code: 1005, Text: "request could not be built"}
)

// OK reports whether o carries the Success code.
func (o Outcome) OK() bool { return o.Code == Success.Code }

// Is compares codes only, so an outcome with extra detail still matches its kind.
func (o Outcome) Is(other Outcome) bool { return o.Code == other.Code }

// With returns o with detail appended to its text.
func (o Outcome) With(detail string) Outcome {
	if detail == "" {
		return o
	}
	return Outcome{Code: o.Code, Text: o.Text + ": " + detail}
}

func (o Outcome) String() string { return fmt.Sprintf("%d %s", o.Code, o.Text) }

// Callback receives the outcome and raw response body of one request.
type Callback func(o Outcome, body string)

// Transport posts requests asynchronously. Implementations call cb exactly once and
// bound every request with their own timeout. A nil form sends no body.
type Transport interface {
	Post(url string, form map[string]string, cb Callback)
}
