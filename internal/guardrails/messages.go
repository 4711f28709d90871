package guardrails

// Message keys as they appear under custom_messages in the guardrails config.
const (
	MessageToxic     = "toxic"
	MessageProfanity = "profanity"
	MessageTopic     = "topic"
	MessagePII       = "pii"
	MessageInjection = "injection"
	MessageFormat    = "format"
	MessageEncoding  = "encoding"
)

const ErrorTitle = "Content validation failed"

var defaultMessages = map[string]string{
	MessageToxic:     "I can't process inappropriate content. Please rephrase your request.",
	MessageProfanity: "Inappropriate language was removed from the request.",
	MessageTopic:     "I am an AI system for database analytics. I can't provide personal advice.",
	MessagePII:       "Personal data detected. The request was blocked for security reasons.",
	MessageInjection: "The request contains disallowed instructions and was blocked.",
	MessageFormat:    "The request body must be a valid JSON object.",
	MessageEncoding:  "The request body must be valid UTF-8 text.",
}

const fallbackMessage = "Validation failed. Please try again with different content."

type Messages map[string]string

// NewMessages overlays the configured messages on the defaults.
func NewMessages(custom map[string]string) Messages {
	messages := make(Messages, len(defaultMessages))
	for key, value := range defaultMessages {
		messages[key] = value
	}
	for key, value := range custom {
		if value != "" {
			messages[key] = value
		}
	}
	return messages
}

func (m Messages) Get(key string) string {
	if message, ok := m[key]; ok {
		return message
	}
	return fallbackMessage
}

// ForViolation returns the message shown to callers for a violation type.
func (m Messages) ForViolation(violationType ViolationType) string {
	switch violationType {
	case ViolationContent:
		return m.Get(MessageToxic)
	case ViolationInjection:
		return m.Get(MessageInjection)
	case ViolationFormat:
		return m.Get(MessageFormat)
	case ViolationEncoding:
		return m.Get(MessageEncoding)
	case ViolationPII:
		return m.Get(MessagePII)
	case ViolationTopic:
		return m.Get(MessageTopic)
	default:
		return fallbackMessage
	}
}

// ErrorBody is the JSON body returned with HTTP 400 on a blocking violation.
type ErrorBody struct {
	Error         string        `json:"error" description:"Always 'Content validation failed'"`
	Message       string        `json:"message" description:"Human readable explanation"`
	ViolationType ViolationType `json:"violation_type" description:"content_violation, injection_attempt, format_error, encoding_error, pii_violation or topic_violation"`
}

func NewErrorBody(message string, violationType ViolationType) ErrorBody {
	return ErrorBody{
		Error:         ErrorTitle,
		Message:       message,
		ViolationType: violationType,
	}
}
