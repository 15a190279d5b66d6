package clinical

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docuease/copilot/internal/emr"
	"github.com/docuease/copilot/internal/policy"
	"github.com/docuease/copilot/internal/tools"
)

const defaultTimeframe = "30days"

// timeframeWindows maps the accepted timeframe values to their lookback.
var timeframeWindows = map[string]time.Duration{
	"7days":  7 * 24 * time.Hour,
	"30days": 30 * 24 * time.Hour,
	"90days": 90 * 24 * time.Hour,
	"1year":  365 * 24 * time.Hour,
}

var timelineTypes = []string{"encounters", "labs", "medications", "appointments"}

// Timeline retrieves a patient's clinical history grouped by record type.
// Read-only, so it never enters the confirmation workflow.
type Timeline struct {
	store  emr.Store
	logger *slog.Logger
	now    clock
}

// NewTimeline creates the get_patient_timeline tool.
func NewTimeline(store emr.Store, logger *slog.Logger) *Timeline {
	return &Timeline{store: store, logger: logger, now: realClock}
}

// WithClock overrides the time source. Test hook.
func (t *Timeline) WithClock(now func() time.Time) *Timeline {
	t.now = now
	return t
}

func (t *Timeline) Name() string { return "get_patient_timeline" }
func (t *Timeline) Description() string {
	return "Retrieve a patient's clinical timeline: encounters, labs, medications, and appointments over a timeframe"
}
func (t *Timeline) RequiredAction() string { return policy.ActionUseAIAgent }
func (t *Timeline) RiskLevel() policy.RiskLevel { return policy.RiskLow }
func (t *Timeline) ConfirmationRequired() bool { return false }
func (t *Timeline) EstimatedDuration() string { return "<2s" }

func (t *Timeline) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"patient_id": map[string]any{"type": "string", "description": "Patient UUID"},
			"timeframe": map[string]any{
				"type": "string", "enum": []string{"7days", "30days", "90days", "1year"},
				"description": "Lookback window (default: 30days)",
			},
			"include_types": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string", "enum": timelineTypes},
				"description": "Record types to include (default: all)",
			},
		},
		"required": []string{"patient_id"},
	}
}

func (t *Timeline) Validate(args map[string]any) error {
	var bad []string
	if _, ok := stringArg(args, "patient_id"); !ok {
		bad = append(bad, "patient_id")
	}
	if tf := optionalString(args, "timeframe"); tf != "" {
		if _, ok := timeframeWindows[tf]; !ok {
			bad = append(bad, "timeframe")
		}
	}
	if raw, ok := args["include_types"]; ok {
		if !validIncludeTypes(raw) {
			bad = append(bad, "include_types")
		}
	}
	if len(bad) > 0 {
		return &tools.ArgumentError{Tool: t.Name(), Fields: bad}
	}
	return nil
}

func validIncludeTypes(raw any) bool {
	items, ok := raw.([]any)
	if !ok {
		// Already-typed string slices come from in-process callers.
		ss, ok := raw.([]string)
		if !ok {
			return false
		}
		for _, s := range ss {
			if !oneOf(s, timelineTypes...) {
				return false
			}
		}
		return true
	}
	for _, it := range items {
		s, ok := it.(string)
		if !ok || !oneOf(s, timelineTypes...) {
			return false
		}
	}
	return true
}

func includeSet(raw any) map[string]bool {
	set := make(map[string]bool)
	switch items := raw.(type) {
	case []any:
		for _, it := range items {
			if s, ok := it.(string); ok {
				set[s] = true
			}
		}
	case []string:
		for _, s := range items {
			set[s] = true
		}
	}
	if len(set) == 0 {
		for _, typ := range timelineTypes {
			set[typ] = true
		}
	}
	return set
}

func (t *Timeline) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	patientID, _ := stringArg(args, "patient_id")
	timeframe := optionalString(args, "timeframe")
	if timeframe == "" {
		timeframe = defaultTimeframe
	}

	if _, err := t.store.GetPatient(ctx, patientID); err != nil {
		return nil, fmt.Errorf("patient lookup: %w", err)
	}

	end := t.now()
	start := end.Add(-timeframeWindows[timeframe])
	window := emr.Range{From: start, To: end}
	include := includeSet(args["include_types"])

	timeline := make(map[string]any)
	total := 0

	if include["encounters"] {
		encounters, err := t.store.ListEncounters(ctx, patientID, window)
		if err != nil {
			return nil, fmt.Errorf("list encounters: %w", err)
		}
		timeline["encounters"] = encounters
		total += len(encounters)
	}
	if include["labs"] {
		labs, err := t.store.ListLabResults(ctx, patientID, window)
		if err != nil {
			return nil, fmt.Errorf("list lab results: %w", err)
		}
		timeline["labs"] = labs
		total += len(labs)
	}
	if include["medications"] {
		meds, err := t.store.ListMedications(ctx, patientID, emr.Range{From: start})
		if err != nil {
			return nil, fmt.Errorf("list medications: %w", err)
		}
		timeline["medications"] = meds
		total += len(meds)
	}
	if include["appointments"] {
		appts, err := t.store.ListAppointments(ctx, patientID, emr.Range{From: start})
		if err != nil {
			return nil, fmt.Errorf("list appointments: %w", err)
		}
		timeline["appointments"] = appts
		total += len(appts)
	}

	t.logger.DebugContext(ctx, "timeline retrieved",
		"patient_id", patientID, "timeframe", timeframe, "total_items", total)

	return &tools.Result{
		Summary: fmt.Sprintf("Retrieved %s timeline with %d data types", timeframe, len(timeline)),
		Payload: map[string]any{
			"patient_id": patientID,
			"timeframe":  timeframe,
			"date_range": map[string]string{
				"start": start.Format(time.RFC3339),
				"end":   end.Format(time.RFC3339),
			},
			"timeline":    timeline,
			"total_items": total,
		},
	}, nil
}
