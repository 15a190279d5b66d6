// Package chat implements the retrieval-augmented chat assistant. A reply
// is assembled from the patient record, ranked context snippets from the
// Retriever, and the llm.Provider's generation; provider failures degrade
// to a canned message so the endpoint never hard-fails on the LLM. The
// response uses the OpenAI chat-completion envelope so existing clients
// can consume it unchanged.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docuease/copilot/internal/emr"
	"github.com/docuease/copilot/internal/llm"
)

// ErrNoMessages is returned when the request carries an empty conversation.
var ErrNoMessages = errors.New("no messages provided")

const (
	completionModel  = "emr-copilot-assistant"
	maxReplyTokens   = 500
	replyTemperature = 0.7
)

// Retriever returns ranked context snippets for a patient.
type Retriever interface {
	Search(ctx context.Context, query, patientID string) ([]Snippet, error)
}

// Snippet is one ranked piece of patient context.
type Snippet struct {
	ContentType string  `json:"content_type"`
	Text        string  `json:"content_text"`
	Score       float64 `json:"score"`
}

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the chat endpoint's body.
type Request struct {
	Messages  []Message `json:"messages"`
	PatientID string    `json:"patient_id,omitempty"`
}

// ToolCall mirrors the OpenAI function-call shape for detected tools.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names a tool and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Choice is one completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is the envelope's token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the OpenAI-compatible response envelope, extended with the
// pattern-detected tool calls and suggested action.
type Completion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Model   string   `json:"model"`
	Created int64    `json:"created"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`

	SuggestedAction      string     `json:"suggested_action,omitempty"`
	ToolCalls            []ToolCall `json:"tool_calls,omitempty"`
	RequiresConfirmation bool       `json:"requires_confirmation,omitempty"`
}

// Service assembles chat replies.
type Service struct {
	store     emr.Store
	retriever Retriever
	provider  llm.Provider
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a chat service. retriever may be nil when no
// embedding store is configured; replies then skip snippet context.
func NewService(store emr.Store, retriever Retriever, provider llm.Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:     store,
		retriever: retriever,
		provider:  provider,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Reply produces a completion for the conversation's last user message.
func (s *Service) Reply(ctx context.Context, req *Request) (*Completion, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}
	last := req.Messages[len(req.Messages)-1].Content

	content, suggested := s.generate(ctx, last, req.PatientID)

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += llm.EstimateTokens(m.Content)
	}
	completionTokens := llm.EstimateTokens(content)

	completion := &Completion{
		ID:      fmt.Sprintf("chat-%d", s.now().UnixMilli()),
		Object:  "chat.completion",
		Model:   completionModel,
		Created: s.now().Unix(),
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		SuggestedAction: suggested,
	}

	if calls, requiresConfirmation := DetectToolUsage(last); len(calls) > 0 {
		completion.ToolCalls = calls
		completion.RequiresConfirmation = requiresConfirmation
	}

	return completion, nil
}

// generate returns the reply content and an optional suggested action.
// When a patient is in scope it attempts retrieval-augmented generation;
// otherwise, or when no patient record is found, it falls back to
// pattern-matched guidance.
func (s *Service) generate(ctx context.Context, userMessage, patientID string) (content, suggested string) {
	if patientID != "" {
		patient, err := s.store.GetPatient(ctx, patientID)
		if err == nil {
			return s.generateWithContext(ctx, userMessage, patient), ""
		}
		s.logger.WarnContext(ctx, "patient lookup failed, falling back to patterns",
			"patient_id", patientID, "error", err)
	}
	return patternReply(userMessage, patientID)
}

func (s *Service) generateWithContext(ctx context.Context, userMessage string, patient *emr.Patient) string {
	var snippets []Snippet
	if s.retriever != nil {
		found, err := s.retriever.Search(ctx, userMessage, patient.ID)
		if err != nil {
			// Retrieval is best-effort; generation proceeds without it.
			s.logger.WarnContext(ctx, "context retrieval failed",
				"patient_id", patient.ID, "error", err)
		} else {
			snippets = found
		}
	}

	resp, err := s.provider.Generate(ctx, &llm.Request{
		SystemPrompt: systemPrompt(buildContextString(patient, snippets, s.now())),
		UserMessage:  userMessage,
		MaxTokens:    maxReplyTokens,
		Temperature:  replyTemperature,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "generation failed, returning canned reply",
			"patient_id", patient.ID, "provider", s.provider.Name(), "error", err)
		return cannedReply(patient)
	}
	return resp.Content
}

func systemPrompt(contextString string) string {
	return `You are a helpful medical AI assistant integrated with an EMR co-pilot. You have access to patient data and can provide contextual responses about medical history, medications, lab results, and treatment plans.

IMPORTANT:
- Always base your responses on the provided patient context
- Be accurate and professional in medical terminology
- If you're unsure about something, say so
- Suggest appropriate follow-up actions when relevant
- Maintain patient confidentiality and HIPAA compliance

Patient Context:
` + contextString
}

func buildContextString(patient *emr.Patient, snippets []Snippet, now time.Time) string {
	var b strings.Builder
	b.WriteString("Patient Information:\n")
	fmt.Fprintf(&b, "Name: %s\n", patient.FullName())
	fmt.Fprintf(&b, "Age: %d\n", ageAt(patient.DateOfBirth, now))
	if patient.Gender != "" {
		fmt.Fprintf(&b, "Gender: %s\n", patient.Gender)
	}
	if len(patient.Allergies) > 0 {
		fmt.Fprintf(&b, "Allergies: %s\n", strings.Join(patient.Allergies, ", "))
	}
	if len(snippets) > 0 {
		b.WriteString("\nRelevant Medical Information:\n")
		for i, sn := range snippets {
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, sn.ContentType, sn.Text)
		}
	}
	return b.String()
}

func ageAt(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

func cannedReply(patient *emr.Patient) string {
	return fmt.Sprintf("I apologize, but I'm having trouble processing your request right now. Based on the available patient data for %s, I can see their medical information, but I'm unable to generate a detailed response at this moment. Please try again or contact your system administrator if the issue persists.",
		patient.FullName())
}

func patternReply(userMessage, patientID string) (content, suggested string) {
	message := strings.ToLower(userMessage)

	switch {
	case strings.Contains(message, "summary") || strings.Contains(message, "timeline"):
		return "I can help you get a patient timeline summary. This will retrieve the patient's recent encounters, lab results, medications, and appointments. Would you like me to proceed?",
			"get_patient_timeline"
	case strings.Contains(message, "note") || strings.Contains(message, "soap") || strings.Contains(message, "documentation"):
		return "I can help you draft a clinical note. I'll create a SOAP format note based on the patient's recent data. This will be saved as a draft for your review. Should I proceed?",
			"draft_progress_note"
	case strings.Contains(message, "appointment") || strings.Contains(message, "schedule") || strings.Contains(message, "follow"):
		return "I can help you schedule an appointment for this patient. This will create a new appointment entry that requires your confirmation. Would you like to proceed?",
			"create_appointment"
	}

	scope := "Select a patient to get started with context-aware responses."
	if patientID != "" {
		scope = fmt.Sprintf("Currently viewing patient: %.8s...", patientID)
	}
	return fmt.Sprintf(`I'm your EMR co-pilot assistant with RAG-powered patient context. I can help you with:

- Patient Questions: ask about medical history, medications, lab results, or conditions
- Clinical Insights: AI analysis of patient data and trends
- Documentation: draft SOAP notes and clinical documentation
- Scheduling: create follow-up appointments and manage calendar

%s

What would you like to know about this patient?`, scope), ""
}

// DetectToolUsage maps conversational intent onto concrete tool calls.
// Pattern-based: the tool endpoint performs its own authorization and
// confirmation, so a false positive costs nothing.
func DetectToolUsage(userMessage string) ([]ToolCall, bool) {
	message := strings.ToLower(userMessage)

	mustJSON := func(v any) string {
		b, _ := json.Marshal(v)
		return string(b)
	}

	switch {
	case strings.Contains(message, "summary") || strings.Contains(message, "timeline") || strings.Contains(message, "history"):
		return []ToolCall{{
			ID:   "call_timeline",
			Type: "function",
			Function: FunctionCall{
				Name: "get_patient_timeline",
				Arguments: mustJSON(map[string]any{
					"timeframe":     "90days",
					"include_types": []string{"encounters", "labs", "medications", "appointments"},
				}),
			},
		}}, false
	case strings.Contains(message, "note") || strings.Contains(message, "soap") || strings.Contains(message, "draft"):
		return []ToolCall{{
			ID:   "call_draft_note",
			Type: "function",
			Function: FunctionCall{
				Name: "draft_progress_note",
				Arguments: mustJSON(map[string]any{
					"template": "soap",
					"context":  "Generated from AI assistant",
				}),
			},
		}}, false
	case strings.Contains(message, "appointment") || strings.Contains(message, "schedule"):
		return []ToolCall{{
			ID:   "call_create_appointment",
			Type: "function",
			Function: FunctionCall{
				Name: "create_appointment",
				Arguments: mustJSON(map[string]any{
					"appointment_type": "follow-up",
					"duration_minutes": 30,
					"reason":           "Follow-up appointment scheduled by AI assistant",
				}),
			},
		}}, true
	}
	return nil, false
}
