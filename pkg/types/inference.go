package types

// ActionKind identifies the semantic kind of an inference request. The router
// picks a backend strategy based on this, not on the backend names themselves.
type ActionKind string

const (
	ActionGenerateReply ActionKind = "generate_reply" // ActionGenerateReply produces reply text for a post.
	ActionGenerateQuote ActionKind = "generate_quote" // ActionGenerateQuote produces quote commentary for a post.
	ActionAnalyzePage   ActionKind = "analyze_page"   // ActionAnalyzePage asks local vision inference for page actions.
)

// IsTextGeneration reports whether the action kind is a text-generation
// request (eligible for the local -> cloud fallback ladder).
func (k ActionKind) IsTextGeneration() bool {
	return k == ActionGenerateReply || k == ActionGenerateQuote
}

// VisionPayload carries optional image context for a vision-augmented call.
type VisionPayload struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type,omitempty"`
}

// PageElement describes one labeled interactive element on the current page,
// with viewport coordinates. Vision-analysis prompts embed a capped list of
// these so the model can reference concrete click targets.
type PageElement struct {
	Label string  `json:"label"`
	Role  string  `json:"role,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// InferenceRequest is the semantic request handed to the inference router.
type InferenceRequest struct {
	Action      ActionKind     `json:"action"`
	Prompt      string         `json:"prompt"`
	MaxTokens   int            `json:"maxTokens,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
	Vision      *VisionPayload `json:"vision,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`

	// Goal and Elements are only meaningful for vision-analysis requests.
	Goal     string        `json:"goal,omitempty"`
	Elements []PageElement `json:"elements,omitempty"`
}

// InferenceMetadata records where a request was ultimately served.
type InferenceMetadata struct {
	RoutedTo string `json:"routedTo"`
	Model    string `json:"model,omitempty"`
}

// InferenceResponse is the response envelope shared by every backend. Failures
// are carried in Error with Success=false; backends never panic through it.
type InferenceResponse struct {
	Success  bool              `json:"success"`
	Content  string            `json:"content,omitempty"`
	Metadata InferenceMetadata `json:"metadata"`
	Error    string            `json:"error,omitempty"`
}

// PageActions is the validated structure a vision-analysis reply must parse
// into: a non-nil actions list, each with at least a type.
type PageActions struct {
	Actions []PageAction `json:"actions"`
	Thought string       `json:"thought,omitempty"`
}

// PageAction is one model-proposed interaction with the page.
type PageAction struct {
	Type     string  `json:"type"`
	Label    string  `json:"label,omitempty"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	Text     string  `json:"text,omitempty"`
	Duration int     `json:"duration,omitempty"`
}
