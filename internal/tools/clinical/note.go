package clinical

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docuease/copilot/internal/emr"
	"github.com/docuease/copilot/internal/policy"
	"github.com/docuease/copilot/internal/tools"
)

const (
	defaultTemplate   = "soap"
	previewLen        = 200
	draftNoteFooter   = "\n\n---\nNote: This is an AI-generated draft. Please review and complete before finalizing."
)

// NoteDrafter creates draft progress notes from a template. The note lands
// in draft status so the side effect is non-authoritative; a clinician must
// finalize it. That is why this tool skips the confirmation workflow.
type NoteDrafter struct {
	store  emr.Store
	logger *slog.Logger
	now    clock
}

// NewNoteDrafter creates the draft_progress_note tool.
func NewNoteDrafter(store emr.Store, logger *slog.Logger) *NoteDrafter {
	return &NoteDrafter{store: store, logger: logger, now: realClock}
}

// WithClock overrides the time source. Test hook.
func (n *NoteDrafter) WithClock(now func() time.Time) *NoteDrafter {
	n.now = now
	return n
}

func (n *NoteDrafter) Name() string { return "draft_progress_note" }
func (n *NoteDrafter) Description() string {
	return "Create a draft progress note (SOAP, brief, or detailed template) for clinician review"
}
func (n *NoteDrafter) RequiredAction() string { return policy.ActionUseAIAgent }
func (n *NoteDrafter) RiskLevel() policy.RiskLevel { return policy.RiskLow }
func (n *NoteDrafter) ConfirmationRequired() bool { return false }
func (n *NoteDrafter) EstimatedDuration() string { return "3-5s" }

func (n *NoteDrafter) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"patient_id":   map[string]any{"type": "string", "description": "Patient UUID"},
			"encounter_id": map[string]any{"type": "string", "description": "Encounter to attach the note to"},
			"template": map[string]any{
				"type": "string", "enum": []string{"soap", "brief", "detailed"},
				"description": "Note template (default: soap)",
			},
			"context": map[string]any{"type": "string", "description": "Free-text context to seed the draft"},
		},
		"required": []string{"patient_id"},
	}
}

func (n *NoteDrafter) Validate(args map[string]any) error {
	var bad []string
	if _, ok := stringArg(args, "patient_id"); !ok {
		bad = append(bad, "patient_id")
	}
	if tpl := optionalString(args, "template"); tpl != "" && !oneOf(tpl, "soap", "brief", "detailed") {
		bad = append(bad, "template")
	}
	if len(bad) > 0 {
		return &tools.ArgumentError{Tool: n.Name(), Fields: bad}
	}
	return nil
}

func (n *NoteDrafter) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	patientID, _ := stringArg(args, "patient_id")
	template := optionalString(args, "template")
	if template == "" {
		template = defaultTemplate
	}

	if _, err := n.store.GetPatient(ctx, patientID); err != nil {
		return nil, fmt.Errorf("patient lookup: %w", err)
	}

	now := n.now()
	content := draftNoteContent(template, optionalString(args, "context"), now.Format("2006-01-02"))

	note := &emr.ProgressNote{
		ID:          uuid.New().String(),
		PatientID:   patientID,
		EncounterID: optionalString(args, "encounter_id"),
		Content:     content,
		Status:      "draft",
		AIGenerated: true,
		CreatedAt:   now,
	}
	if err := n.store.CreateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("save draft note: %w", err)
	}

	n.logger.InfoContext(ctx, "draft note created",
		"note_id", note.ID, "patient_id", patientID, "template", template)

	preview := content
	if len(preview) > previewLen {
		preview = preview[:previewLen] + "..."
	}

	return &tools.Result{
		Summary: fmt.Sprintf("Draft %s note created successfully", template),
		Payload: map[string]any{
			"note_id":         note.ID,
			"patient_id":      patientID,
			"encounter_id":    note.EncounterID,
			"template":        template,
			"status":          "draft",
			"content_preview": preview,
			"ai_generated":    true,
		},
	}, nil
}

func draftNoteContent(template, context, date string) string {
	switch template {
	case "soap":
		subjective := "[To be completed by clinician]"
		if context != "" {
			subjective = "Context: " + context
		}
		return fmt.Sprintf(`SOAP Note - %s

SUBJECTIVE:
%s

OBJECTIVE:
- Vital signs: [To be recorded]
- Physical exam: [To be completed]

ASSESSMENT:
- [Clinical assessment to be documented]

PLAN:
- [Treatment plan to be outlined]`, date, subjective) + draftNoteFooter

	case "brief":
		issues := context
		if issues == "" {
			issues = "[To be identified]"
		}
		return fmt.Sprintf(`Brief Note - %s

Patient Status: [To be documented]
Key Issues: %s
Actions Taken: [To be recorded]
Follow-up: [To be scheduled]`, date, issues) + draftNoteFooter

	case "detailed":
		complaint := context
		if complaint == "" {
			complaint = "[To be documented]"
		}
		return fmt.Sprintf(`Detailed Progress Note - %s

CHIEF COMPLAINT:
%s

HISTORY OF PRESENT ILLNESS:
[To be completed]

REVIEW OF SYSTEMS:
[To be documented]

PHYSICAL EXAMINATION:
[To be completed]

ASSESSMENT AND PLAN:
[To be outlined]`, date, complaint) + draftNoteFooter

	default:
		body := context
		if body == "" {
			body = "Patient encounter documentation"
		}
		return fmt.Sprintf("Progress Note - %s\n\n%s\n\n[This is an AI-generated draft note. Please review and complete.]", date, body)
	}
}
