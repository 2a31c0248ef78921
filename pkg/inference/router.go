package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/logging"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

// MaxVisionElements caps how many labeled page elements a vision-analysis
// prompt embeds. More adds noise faster than signal.
const MaxVisionElements = 30

// RouterConfig controls routing behavior.
type RouterConfig struct {
	// LocalEnabled gates the local backend. When false, text generation goes
	// straight to cloud and vision analysis fails outright.
	LocalEnabled bool

	// PromptTokenBudget trims prompts before sending. Zero means no trim.
	PromptTokenBudget int
}

// Observer receives routing telemetry. Methods run on the request path and
// must be fast and non-blocking.
type Observer interface {
	// RecordInference observes one backend call outcome. Latency includes
	// any time spent waiting in the backend's request queue.
	RecordInference(backend string, latency time.Duration, success bool)

	// SetInferenceQueueDepth reports how many requests are waiting on the
	// backend after a call finishes.
	SetInferenceQueueDepth(backend string, depth int)
}

// Router routes semantic requests by action kind. Every backend call passes
// through the circuit breaker (keyed by endpoint) and a per-backend request
// queue; backends are never called directly.
type Router struct {
	cfg     RouterConfig
	local   Backend
	cloud   Backend
	breaker *CircuitBreaker
	queues  map[string]*RequestQueue
	tok     *Tokenizer
	obs     Observer
	logger  *logging.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithTokenizer installs client-side token counting for prompt trimming.
func WithTokenizer(tok *Tokenizer) RouterOption {
	return func(r *Router) {
		r.tok = tok
	}
}

// WithObserver installs a telemetry sink for backend calls.
func WithObserver(obs Observer) RouterOption {
	return func(r *Router) {
		r.obs = obs
	}
}

// WithRequestQueue overrides the queue for a backend name.
func WithRequestQueue(backendName string, q *RequestQueue) RouterOption {
	return func(r *Router) {
		r.queues[backendName] = q
	}
}

// NewRouter creates a router over the given backends. local may be nil when
// LocalEnabled is false.
func NewRouter(cfg RouterConfig, local, cloud Backend, breaker *CircuitBreaker, logger *logging.Logger, opts ...RouterOption) *Router {
	r := &Router{
		cfg:     cfg,
		local:   local,
		cloud:   cloud,
		breaker: breaker,
		logger:  logger,
		queues:  make(map[string]*RequestQueue),
	}
	if local != nil {
		r.queues[local.Name()] = NewRequestQueue(1, 2)
	}
	if cloud != nil {
		r.queues[cloud.Name()] = NewRequestQueue(2, 4)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route dispatches a request by action kind. Failures always come back as a
// structured envelope, never as a panic or a bare error, so callers can fall
// back deterministically.
func (r *Router) Route(ctx context.Context, req types.InferenceRequest) *types.InferenceResponse {
	switch {
	case req.Action.IsTextGeneration():
		return r.routeTextGeneration(ctx, req)
	case req.Action == types.ActionAnalyzePage:
		return r.routeVisionAnalysis(ctx, req)
	default:
		return failureResponse(fmt.Sprintf("unknown action kind %q", req.Action))
	}
}

// routeTextGeneration walks the fallback ladder for reply/quote generation:
// local vision, local text-only, then cloud with the image payload stripped.
func (r *Router) routeTextGeneration(ctx context.Context, req types.InferenceRequest) *types.InferenceResponse {
	req.Prompt = r.trimPrompt(req.Prompt)

	if !r.cfg.LocalEnabled || r.local == nil {
		resp, err := r.call(ctx, r.cloud, stripVision(req))
		if err != nil {
			return failureResponse(fmt.Sprintf("all backends failed: cloud: %v", err))
		}
		return resp
	}

	var attempts []string

	if req.Vision != nil {
		resp, err := r.call(ctx, r.local, req)
		if err == nil {
			return resp
		}
		attempts = append(attempts, fmt.Sprintf("local(vision): %v", err))
		if r.logger != nil {
			r.logger.Warnf("local vision-augmented call failed (%v), demoting to text-only", err)
		}
	}

	textReq := stripVision(req)
	resp, err := r.call(ctx, r.local, textReq)
	if err == nil {
		return resp
	}
	attempts = append(attempts, fmt.Sprintf("local(text): %v", err))

	// Cloud gets the request with the image payload stripped: smaller body,
	// and the cloud endpoint does not accept vision context anyway.
	resp, err = r.call(ctx, r.cloud, textReq)
	if err == nil {
		return resp
	}
	attempts = append(attempts, fmt.Sprintf("cloud: %v", err))

	return failureResponse("all backends failed: " + strings.Join(attempts, "; "))
}

// routeVisionAnalysis sends page analysis to local inference only. A local
// vision failure surfaces as an error; silently retrying page analysis on a
// different backend is explicitly off the table.
func (r *Router) routeVisionAnalysis(ctx context.Context, req types.InferenceRequest) *types.InferenceResponse {
	if !r.cfg.LocalEnabled || r.local == nil {
		return failureResponse("vision analysis requires the local backend, which is disabled")
	}

	req.Prompt = r.trimPrompt(BuildVisionInstruction(req.Goal, req.Elements))

	resp, err := r.call(ctx, r.local, req)
	if err != nil {
		return failureResponse(fmt.Sprintf("local vision analysis failed: %v", err))
	}

	parsed, err := ParsePageActions(resp.Content)
	if err != nil {
		return failureResponse(err.Error())
	}
	if r.logger != nil {
		r.logger.Debugf("vision analysis produced %d actions", len(parsed.Actions))
	}
	return resp
}

// ParseActions re-exposes reply parsing for callers that routed a raw request
// and want the validated action list.
func (r *Router) ParseActions(content string) (*types.PageActions, error) {
	return ParsePageActions(content)
}

// call runs one backend request through its queue and the breaker. An
// unsuccessful envelope is treated as a failure so the breaker counts it.
func (r *Router) call(ctx context.Context, b Backend, req types.InferenceRequest) (*types.InferenceResponse, error) {
	if b == nil {
		return nil, errors.New("backend not configured")
	}

	queue, ok := r.queues[b.Name()]
	if !ok {
		queue = NewRequestQueue(1, 2)
		r.queues[b.Name()] = queue
	}

	start := time.Now()
	var resp *types.InferenceResponse
	err := queue.Enqueue(ctx, func(ctx context.Context) error {
		return r.breaker.Execute(ctx, b.Endpoint(), func(ctx context.Context) error {
			out, err := b.Complete(ctx, req)
			if err != nil {
				return err
			}
			if !out.Success {
				return fmt.Errorf("backend %s reported failure: %s", b.Name(), out.Error)
			}
			resp = out
			return nil
		})
	})
	if r.obs != nil {
		r.obs.RecordInference(b.Name(), time.Since(start), err == nil)
		r.obs.SetInferenceQueueDepth(b.Name(), queue.Stats().Queued)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// trimPrompt enforces the prompt token budget when a tokenizer is installed.
func (r *Router) trimPrompt(prompt string) string {
	if r.cfg.PromptTokenBudget <= 0 {
		return prompt
	}
	return r.tok.Truncate(prompt, r.cfg.PromptTokenBudget)
}

// Status reports per-endpoint circuit health and per-backend queue load.
type Status struct {
	Circuits []EndpointStatus      `json:"circuits"`
	Queues   map[string]QueueStats `json:"queues"`
}

// Status returns the router's health view.
func (r *Router) Status() Status {
	s := Status{
		Circuits: r.breaker.Status(),
		Queues:   make(map[string]QueueStats, len(r.queues)),
	}
	for name, q := range r.queues {
		s.Queues[name] = q.Stats()
	}
	return s
}

// BuildVisionInstruction renders the analysis prompt: the goal plus a capped,
// numbered list of labeled interactive elements with coordinates, or an
// explicit notice when none were detected.
func BuildVisionInstruction(goal string, elements []types.PageElement) string {
	var sb strings.Builder

	sb.WriteString("You are analyzing a social feed page in a browser.\n")
	sb.WriteString(fmt.Sprintf("Goal: %s\n\n", goal))

	if len(elements) == 0 {
		sb.WriteString("No interactive elements were detected on the page.\n")
	} else {
		capped := elements
		if len(capped) > MaxVisionElements {
			capped = capped[:MaxVisionElements]
		}
		sb.WriteString("Interactive elements (label @ x,y):\n")
		for i, el := range capped {
			role := el.Role
			if role == "" {
				role = "element"
			}
			sb.WriteString(fmt.Sprintf("%d. [%s] %s @ (%.0f, %.0f)\n", i+1, role, el.Label, el.X, el.Y))
		}
		if len(elements) > MaxVisionElements {
			sb.WriteString(fmt.Sprintf("(%d more elements omitted)\n", len(elements)-MaxVisionElements))
		}
	}

	sb.WriteString("\nRespond with a JSON object containing an \"actions\" array. ")
	sb.WriteString("Each action has a \"type\" (click, scroll, type, wait) and, where relevant, ")
	sb.WriteString("the target element's label and coordinates.")
	return sb.String()
}

// stripVision returns req without its image payload.
func stripVision(req types.InferenceRequest) types.InferenceRequest {
	req.Vision = nil
	return req
}

// failureResponse builds the structured failure envelope.
func failureResponse(msg string) *types.InferenceResponse {
	return &types.InferenceResponse{
		Success: false,
		Error:   msg,
	}
}
