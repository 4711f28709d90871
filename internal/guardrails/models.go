package guardrails

type ViolationType string

const (
	ViolationContent   ViolationType = "content_violation"
	ViolationInjection ViolationType = "injection_attempt"
	ViolationFormat    ViolationType = "format_error"
	ViolationEncoding  ViolationType = "encoding_error"
	ViolationPII       ViolationType = "pii_violation"
	ViolationTopic     ViolationType = "topic_violation"
)

type Outcome string

const (
	OutcomePass     Outcome = "pass"
	OutcomeFail     Outcome = "fail"     // blocking
	OutcomeFiltered Outcome = "filtered" // text rewritten, request continues
)

type Result struct {
	Outcome  Outcome
	Category ViolationType
	Message  string
	Detail   string // internal detail for logs and audit, never returned to callers
	Text     string // rewritten text when Outcome is OutcomeFiltered
}

func Pass() Result {
	return Result{Outcome: OutcomePass}
}

func Fail(category ViolationType, message string, detail string) Result {
	return Result{
		Outcome:  OutcomeFail,
		Category: category,
		Message:  message,
		Detail:   detail,
	}
}

func Filtered(text string, message string, detail string) Result {
	return Result{
		Outcome: OutcomeFiltered,
		Text:    text,
		Message: message,
		Detail:  detail,
	}
}

// Violation is a blocking validation failure.
type Violation struct {
	Type      ViolationType `json:"violation_type"`
	Message   string        `json:"message"`
	Validator string        `json:"validator"`
	Detail    string        `json:"-"`
}

func (v *Violation) Error() string {
	return string(v.Type) + ": " + v.Message
}

// Report is the outcome of running a chain over a piece of text.
type Report struct {
	Text       string
	Violation  *Violation
	Filtered   []string // validators that rewrote the text
	FailedOpen []string // validators that errored and were treated as a pass
}

func (r Report) Blocked() bool {
	return r.Violation != nil
}

func (r Report) Modified() bool {
	return len(r.Filtered) > 0
}
