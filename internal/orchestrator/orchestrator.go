// Package orchestrator implements the two-phase confirmation protocol that
// gates every clinical tool invocation: propose, confirm, execute. Each
// request moves through envelope validation, argument validation, policy
// authorization, and the confirmation gate, in that fixed order; execution
// never runs before authorization succeeds. Every request leaves exactly
// one terminal audit entry.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docuease/copilot/internal/audit"
	"github.com/docuease/copilot/internal/emr"
	"github.com/docuease/copilot/internal/identity"
	"github.com/docuease/copilot/internal/pending"
	"github.com/docuease/copilot/internal/policy"
	"github.com/docuease/copilot/internal/tools"
)

// actionPrefix namespaces tool invocations in the audit log.
const actionPrefix = "agent_"

// actionUnknown is logged when the envelope fails before tool resolution.
const actionUnknown = actionPrefix + "unknown"

// Request is the inbound tool-invocation envelope.
type Request struct {
	Tool             string         `json:"tool"`
	Args             map[string]any `json:"args"`
	PatientID        string         `json:"patient_id"`
	UserID           string         `json:"user_id"`
	ConfirmationID   string         `json:"confirmation_id,omitempty"`
	SkipConfirmation bool           `json:"skip_confirmation,omitempty"`
}

// EchoedOperation mirrors the proposed call back in confirmation responses.
type EchoedOperation struct {
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	PatientID string         `json:"patient_id"`
	UserID    string         `json:"user_id"`
}

// Response is the outcome envelope for a tool invocation. A
// requires_confirmation response is not a success in the executed sense:
// callers must check the flag before treating Result as present.
type Response struct {
	Success              bool              `json:"success"`
	Tool                 string            `json:"tool,omitempty"`
	Result               *tools.Result     `json:"result,omitempty"`
	RequiresConfirmation bool              `json:"requires_confirmation,omitempty"`
	PendingOperationID   string            `json:"pending_operation_id,omitempty"`
	ToolConfig           *tools.Descriptor `json:"tool_config,omitempty"`
	Operation            *EchoedOperation  `json:"operation,omitempty"`
	Message              string            `json:"message,omitempty"`
	Error                string            `json:"error,omitempty"`
	ExecutionTimeMS      int64             `json:"execution_time_ms"`
}

// Orchestrator coordinates the confirmation workflow. All collaborators are
// injected so tests can run it entirely against fakes.
type Orchestrator struct {
	registry *tools.Registry
	engine   *policy.Engine
	pendings pending.Store
	auditor  audit.Appender
	records  emr.Store
	actors   identity.Provider
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an orchestrator over its collaborators.
func New(
	registry *tools.Registry,
	engine *policy.Engine,
	pendings pending.Store,
	auditor audit.Appender,
	records emr.Store,
	actors identity.Provider,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{
		registry: registry,
		engine:   engine,
		pendings: pendings,
		auditor:  auditor,
		records:  records,
		actors:   actors,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Test hook.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Execute runs one request through the full protocol. The returned error,
// when non-nil, is always an *Error; the Response is still populated with
// the failure shape so transport layers can serialize it directly.
func (o *Orchestrator) Execute(ctx context.Context, req *Request) (*Response, error) {
	start := o.now()

	entry := &audit.Entry{
		Action:       actionUnknown,
		ResultStatus: audit.ResultFailure,
		RequestedAt:  start,
	}

	fail := func(e *Error) (*Response, error) {
		elapsed := o.now().Sub(start).Milliseconds()
		entry.ErrorMessage = e.Error()
		entry.ResultData = map[string]any{
			"error_type":        string(e.Code),
			"execution_time_ms": elapsed,
		}
		o.writeAudit(ctx, entry)
		return &Response{
			Success:         false,
			Tool:            req.Tool,
			Error:           string(e.Code),
			Message:         e.Message,
			ExecutionTimeMS: elapsed,
		}, e
	}

	// Envelope validation. Failures here predate tool resolution and are
	// audited under the synthetic unknown action.
	if req.Tool == "" {
		return fail(invalidRequest("tool is required"))
	}
	if req.PatientID == "" {
		return fail(invalidRequest("patient_id is required"))
	}
	userID := req.UserID
	if userID == "" {
		userID = identity.DemoActorID
	}
	entry.ActorID = userID
	entry.PatientID = req.PatientID

	actor, err := o.actors.Lookup(ctx, userID)
	if err != nil {
		return fail(forbidden([]string{"unknown actor"}))
	}
	entry.ActorEmail = actor.Email
	entry.ActorRole = string(actor.Role)

	// Tool resolution. From here on the action name is known.
	tool := o.registry.Get(req.Tool)
	if tool == nil {
		return fail(unsupportedTool(req.Tool))
	}
	entry.Action = actionPrefix + tool.Name()
	entry.ToolName = tool.Name()

	args := cloneArgs(req.Args)
	if _, ok := args["patient_id"]; !ok {
		args["patient_id"] = req.PatientID
	}
	entry.InputArguments = audit.MinimizePHI(args)

	if err := tool.Validate(args); err != nil {
		var argErr *tools.ArgumentError
		if errors.As(err, &argErr) {
			return fail(invalidArguments(argErr.Fields))
		}
		return fail(invalidArguments([]string{err.Error()}))
	}

	// Authorization. Risk is escalated before the policy engine sees it so
	// high-risk predicates fire on flagged arguments.
	resource, err := o.buildResource(ctx, req.PatientID, args)
	if err != nil {
		o.logger.ErrorContext(ctx, "authorization attribute lookup failed",
			"tool", tool.Name(), "actor_id", actor.ID, "error", err)
		return fail(executionFailure(err))
	}
	effective := tools.EscalateRisk(tool.RiskLevel(), args)
	pctx := &policy.Context{
		ToolName:  tool.Name(),
		RiskLevel: effective,
		ToolArgs:  args,
	}
	decision := o.engine.IsAuthorized(ctx, actor, tool.RequiredAction(), resource, pctx)
	if !decision.Allowed() {
		o.logger.WarnContext(ctx, "tool invocation denied",
			"tool", tool.Name(), "actor_id", actor.ID, "risk_level", effective.String(),
			"reasons", decision.Reasons)
		return fail(forbidden(decision.Reasons))
	}

	// Confirmation gate. skip_confirmation is honored only when the
	// escalated risk is low; it never bypasses a tool that requires
	// confirmation at a higher effective risk.
	skipHonored := req.SkipConfirmation && effective == policy.RiskLow
	if tool.ConfirmationRequired() && req.ConfirmationID == "" && !skipHonored {
		resp, err := o.propose(ctx, req, tool, actor, args, effective, entry, start)
		if err != nil {
			return fail(executionFailure(err))
		}
		return resp, nil
	}

	entry.ConfirmationStatus = audit.ConfirmationAutoExecuted
	if req.ConfirmationID != "" {
		op, err := o.pendings.ValidateAndConsume(ctx, req.ConfirmationID, actor.ID)
		if err != nil {
			o.logger.WarnContext(ctx, "confirmation rejected",
				"confirmation_id", req.ConfirmationID, "actor_id", actor.ID, "error", err)
			return fail(invalidConfirmation(err))
		}
		entry.ConfirmationStatus = audit.ConfirmationApproved
		entry.ConfirmedBy = op.ConfirmedBy
	}

	// Execute.
	result, err := tool.Execute(tools.ContextWithActorID(ctx, actor.ID), args)
	if err != nil {
		return fail(executionFailure(err))
	}

	elapsed := o.now().Sub(start).Milliseconds()
	entry.ResultStatus = audit.ResultSuccess
	entry.ResultData = map[string]any{
		"tool_executed":     tool.Name(),
		"execution_time_ms": elapsed,
		"result_summary":    result.Summary,
	}
	o.writeAudit(ctx, entry)

	o.logger.InfoContext(ctx, "tool executed",
		"tool", tool.Name(), "actor_id", actor.ID, "patient_id", req.PatientID,
		"duration_ms", elapsed)

	return &Response{
		Success:         true,
		Tool:            tool.Name(),
		Result:          result,
		ExecutionTimeMS: elapsed,
	}, nil
}

// propose creates a pending operation and returns the requires_confirmation
// response. Execution does not occur on this path.
func (o *Orchestrator) propose(
	ctx context.Context,
	req *Request,
	tool tools.Tool,
	actor *identity.Actor,
	args map[string]any,
	effective policy.RiskLevel,
	entry *audit.Entry,
	start time.Time,
) (*Response, error) {
	op, err := o.pendings.Create(ctx, &pending.CreateRequest{
		OperationType:     tool.Name(),
		ToolName:          tool.Name(),
		ActorID:           actor.ID,
		PatientID:         req.PatientID,
		Args:              args,
		RiskLevel:         effective.String(),
		EstimatedDuration: tool.EstimatedDuration(),
	})
	if err != nil {
		return nil, err
	}

	elapsed := o.now().Sub(start).Milliseconds()
	entry.ResultStatus = audit.ResultPending
	entry.ConfirmationStatus = audit.ConfirmationPending
	entry.ResultData = map[string]any{
		"pending_operation_id": op.ID,
		"risk_level":           effective.String(),
		"execution_time_ms":    elapsed,
	}
	o.writeAudit(ctx, entry)

	o.logger.InfoContext(ctx, "confirmation required",
		"tool", tool.Name(), "actor_id", actor.ID, "pending_operation_id", op.ID,
		"risk_level", effective.String())

	desc := tools.Describe(tool)
	desc.RiskLevel = effective.String()
	return &Response{
		Success:              true,
		Tool:                 tool.Name(),
		RequiresConfirmation: true,
		PendingOperationID:   op.ID,
		ToolConfig:           &desc,
		Operation: &EchoedOperation{
			Tool:      tool.Name(),
			Args:      args,
			PatientID: req.PatientID,
			UserID:    actor.ID,
		},
		Message:         tool.Name() + " requires user confirmation before execution",
		ExecutionTimeMS: elapsed,
	}, nil
}

// buildResource assembles the policy resource for the request's patient
// scope. A missing record leaves the corresponding fields zero and the tool
// itself surfaces the not-found error later; any other lookup error fails
// the request, since a zero-valued resource would stop deny policies keyed
// on privacy level or controlled status from matching.
func (o *Orchestrator) buildResource(ctx context.Context, patientID string, args map[string]any) (*policy.Resource, error) {
	res := &policy.Resource{Type: "Patient", ID: patientID}
	p, err := o.records.GetPatient(ctx, patientID)
	switch {
	case err == nil:
		res.PrivacyLevel = p.PrivacyLevel
		res.AssignedProvider = p.AssignedProvider
		res.CareTeam = p.CareTeam
	case !errors.Is(err, emr.ErrNotFound):
		return nil, fmt.Errorf("patient lookup for authorization: %w", err)
	}
	if medID, ok := args["medication_id"].(string); ok && medID != "" {
		med, err := o.records.GetMedication(ctx, medID)
		switch {
		case err == nil:
			res.IsControlled = med.IsControlled
		case !errors.Is(err, emr.ErrNotFound):
			return nil, fmt.Errorf("medication lookup for authorization: %w", err)
		}
	}
	if v, ok := args["is_controlled"].(bool); ok && v {
		res.IsControlled = true
	}
	return res, nil
}

// writeAudit finalizes and appends the terminal entry for a request.
// Append failures are logged, not surfaced: the caller's outcome is
// already decided and the failure response must still reach them.
func (o *Orchestrator) writeAudit(ctx context.Context, entry *audit.Entry) {
	entry.Finalize(o.now())
	if err := o.auditor.Append(ctx, entry); err != nil {
		o.logger.ErrorContext(ctx, "audit append failed",
			"action", entry.Action, "error", err)
	}
}

func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	return out
}
