package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/docuease/copilot/internal/emr"
	"github.com/docuease/copilot/internal/llm"
)

var testTime = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type fakeProvider struct {
	reply string
	err   error
	last  *llm.Request
}

func (p *fakeProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.last = req
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: p.reply}, nil
}

func (p *fakeProvider) Name() string { return "fake" }

type fakeRetriever struct {
	snippets []Snippet
	err      error
}

func (r *fakeRetriever) Search(_ context.Context, _, _ string) ([]Snippet, error) {
	return r.snippets, r.err
}

func seedPatient(store *emr.MemoryStore) *emr.Patient {
	p := &emr.Patient{
		ID:          "p1",
		FirstName:   "Jane",
		LastName:    "Doe",
		DateOfBirth: time.Date(1980, 3, 12, 0, 0, 0, 0, time.UTC),
		Gender:      "female",
		Allergies:   []string{"penicillin", "latex"},
	}
	store.AddPatient(p)
	return p
}

func TestReply_WithPatientContext(t *testing.T) {
	store := emr.NewMemoryStore()
	seedPatient(store)
	provider := &fakeProvider{reply: "Jane Doe's HbA1c is trending down."}
	retriever := &fakeRetriever{snippets: []Snippet{
		{ContentType: "lab_result", Text: "HbA1c 6.8% on 2025-05-01", Score: 0.91},
	}}
	svc := NewService(store, retriever, provider, nil).
		WithClock(func() time.Time { return testTime })

	got, err := svc.Reply(context.Background(), &Request{
		Messages:  []Message{{Role: "user", Content: "How is her diabetes control?"}},
		PatientID: "p1",
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}

	if got.Object != "chat.completion" {
		t.Errorf("object = %q, want chat.completion", got.Object)
	}
	if len(got.Choices) != 1 {
		t.Fatalf("choices = %d, want 1", len(got.Choices))
	}
	choice := got.Choices[0]
	if choice.Message.Role != "assistant" || choice.FinishReason != "stop" {
		t.Errorf("choice = %+v", choice)
	}
	if choice.Message.Content != provider.reply {
		t.Errorf("content = %q, want provider reply", choice.Message.Content)
	}
	if got.Usage.TotalTokens != got.Usage.PromptTokens+got.Usage.CompletionTokens {
		t.Errorf("usage does not add up: %+v", got.Usage)
	}

	if provider.last == nil {
		t.Fatal("provider was not called")
	}
	prompt := provider.last.SystemPrompt
	for _, want := range []string{
		"Name: Jane Doe",
		"Age: 45",
		"Gender: female",
		"Allergies: penicillin, latex",
		"Relevant Medical Information:",
		"1. lab_result: HbA1c 6.8% on 2025-05-01",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestReply_ProviderFailureDegrades(t *testing.T) {
	store := emr.NewMemoryStore()
	seedPatient(store)
	provider := &fakeProvider{err: errors.New("rate limited")}
	svc := NewService(store, nil, provider, nil)

	got, err := svc.Reply(context.Background(), &Request{
		Messages:  []Message{{Role: "user", Content: "summarize recent labs"}},
		PatientID: "p1",
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	content := got.Choices[0].Message.Content
	if !strings.Contains(content, "Jane Doe") {
		t.Errorf("canned reply should name the patient, got %q", content)
	}
	if !strings.Contains(content, "having trouble processing") {
		t.Errorf("unexpected degradation message %q", content)
	}
}

func TestReply_RetrieverFailureIsBestEffort(t *testing.T) {
	store := emr.NewMemoryStore()
	seedPatient(store)
	provider := &fakeProvider{reply: "ok"}
	retriever := &fakeRetriever{err: errors.New("index offline")}
	svc := NewService(store, retriever, provider, nil)

	got, err := svc.Reply(context.Background(), &Request{
		Messages:  []Message{{Role: "user", Content: "anything"}},
		PatientID: "p1",
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got.Choices[0].Message.Content != "ok" {
		t.Errorf("content = %q, want provider reply despite retriever failure", got.Choices[0].Message.Content)
	}
	if strings.Contains(provider.last.SystemPrompt, "Relevant Medical Information") {
		t.Error("system prompt should omit snippet section when retrieval fails")
	}
}

func TestReply_NoMessages(t *testing.T) {
	svc := NewService(emr.NewMemoryStore(), nil, &fakeProvider{}, nil)
	if _, err := svc.Reply(context.Background(), &Request{}); !errors.Is(err, ErrNoMessages) {
		t.Fatalf("err = %v, want ErrNoMessages", err)
	}
}

func TestReply_PatternSuggestions(t *testing.T) {
	svc := NewService(emr.NewMemoryStore(), nil, &fakeProvider{}, nil)

	tests := []struct {
		message   string
		suggested string
	}{
		{"give me a timeline", "get_patient_timeline"},
		{"can you show a summary", "get_patient_timeline"},
		{"draft a soap note", "draft_progress_note"},
		{"schedule an appointment", "create_appointment"},
		{"hello there", ""},
	}
	for _, tt := range tests {
		got, err := svc.Reply(context.Background(), &Request{
			Messages: []Message{{Role: "user", Content: tt.message}},
		})
		if err != nil {
			t.Fatalf("Reply(%q): %v", tt.message, err)
		}
		if got.SuggestedAction != tt.suggested {
			t.Errorf("Reply(%q) suggested = %q, want %q", tt.message, got.SuggestedAction, tt.suggested)
		}
	}
}

func TestDetectToolUsage(t *testing.T) {
	calls, confirm := DetectToolUsage("show me the patient history")
	if len(calls) != 1 || calls[0].Function.Name != "get_patient_timeline" {
		t.Fatalf("calls = %+v", calls)
	}
	if confirm {
		t.Error("timeline detection should not require confirmation")
	}
	if !strings.Contains(calls[0].Function.Arguments, `"timeframe":"90days"`) {
		t.Errorf("arguments = %s", calls[0].Function.Arguments)
	}

	calls, confirm = DetectToolUsage("please schedule a follow-up appointment")
	if len(calls) != 1 || calls[0].Function.Name != "create_appointment" {
		t.Fatalf("calls = %+v", calls)
	}
	if !confirm {
		t.Error("appointment detection should require confirmation")
	}

	if calls, _ = DetectToolUsage("what is the weather"); calls != nil {
		t.Errorf("expected no calls, got %+v", calls)
	}
}

func TestDetectToolUsage_AttachedToCompletion(t *testing.T) {
	svc := NewService(emr.NewMemoryStore(), nil, &fakeProvider{}, nil)
	got, err := svc.Reply(context.Background(), &Request{
		Messages: []Message{{Role: "user", Content: "schedule a visit"}},
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if len(got.ToolCalls) != 1 || !got.RequiresConfirmation {
		t.Errorf("tool calls = %+v, requires_confirmation = %v", got.ToolCalls, got.RequiresConfirmation)
	}
}

func TestAgeAt(t *testing.T) {
	dob := time.Date(1980, 6, 16, 0, 0, 0, 0, time.UTC)
	if got := ageAt(dob, testTime); got != 44 {
		t.Errorf("day before birthday: age = %d, want 44", got)
	}
	if got := ageAt(time.Date(1980, 6, 15, 0, 0, 0, 0, time.UTC), testTime); got != 45 {
		t.Errorf("on birthday: age = %d, want 45", got)
	}
}
