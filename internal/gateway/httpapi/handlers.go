package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/docuease/copilot/internal/audit"
	"github.com/docuease/copilot/internal/chat"
	"github.com/docuease/copilot/internal/emr"
	"github.com/docuease/copilot/internal/orchestrator"
	"github.com/docuease/copilot/internal/pending"
	"github.com/docuease/copilot/internal/workflow"
	"github.com/jkaninda/okapi"
)

// handleToolInvocation runs one tool request through the confirmation
// protocol. The orchestrator's response envelope is serialized as-is; only
// the HTTP status differs between outcome shapes.
func (g *Gateway) handleToolInvocation(c *okapi.Context) error {
	userID := c.GetString("userID")
	if err := g.rateLimit(c, userID); err != nil {
		return err
	}

	var req orchestrator.Request
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	// The authenticated identity wins over anything in the body.
	req.UserID = userID

	correlationID := newCorrelationID()
	g.logger.Info("tool invocation",
		slog.String("user_id", userID),
		slog.String("tool", req.Tool),
		slog.String("correlation_id", correlationID),
	)

	resp, err := g.orch.Execute(c.Context(), &req)
	if err != nil {
		// Execute populates the failure envelope alongside the error; the
		// code decides the status, the envelope carries the detail.
		return c.JSON(statusForCode(orchestrator.CodeOf(err)), resp)
	}
	if resp.RequiresConfirmation {
		return c.JSON(http.StatusAccepted, resp)
	}
	return c.OK(resp)
}

// statusForCode maps orchestrator failure codes to HTTP statuses.
func statusForCode(code orchestrator.Code) int {
	switch code {
	case orchestrator.CodeInvalidRequest, orchestrator.CodeInvalidArguments,
		orchestrator.CodeUnsupportedTool, orchestrator.CodeInvalidConfirmation:
		return http.StatusBadRequest
	case orchestrator.CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// AuditQueryResponse wraps the matched audit entries.
type AuditQueryResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
}

func (g *Gateway) handleAuditQuery(c *okapi.Context) error {
	userID := c.GetString("userID")
	if err := g.rateLimit(c, userID); err != nil {
		return err
	}

	q := c.Request().URL.Query()
	f := audit.Filter{
		Action:       q.Get("action"),
		ActorRole:    q.Get("actor_role"),
		ResultStatus: q.Get("status"),
		Search:       q.Get("search"),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.AbortBadRequest("from must be RFC 3339")
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.AbortBadRequest("to must be RFC 3339")
		}
		f.To = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.AbortBadRequest("limit must be a non-negative integer")
		}
		f.Limit = n
	}

	entries, err := g.audits.Query(c.Context(), f)
	if err != nil {
		g.logger.Error("audit query failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("audit query failed")
	}

	return c.OK(AuditQueryResponse{Entries: entries, Count: len(entries)})
}

func (g *Gateway) handleChat(c *okapi.Context) error {
	userID := c.GetString("userID")
	if err := g.rateLimit(c, userID); err != nil {
		return err
	}

	var req chat.Request
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	completion, err := g.chats.Reply(c.Context(), &req)
	if err != nil {
		if errors.Is(err, chat.ErrNoMessages) {
			return c.AbortBadRequest("messages are required")
		}
		g.logger.Error("chat reply failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("chat reply failed")
	}

	return c.OK(completion)
}

// ManagementRequest is the JSON body for POST /v1/patients/{id}/management.
// The patient scope comes from the path, never the body.
type ManagementRequest struct {
	Action          string                       `json:"action"`
	PreferredWindow string                       `json:"preferred_window,omitempty"`
	LabID           string                       `json:"lab_id,omitempty"`
	ReviewNotes     string                       `json:"review_notes,omitempty"`
	AppointmentID   string                       `json:"appointment_id,omitempty"`
	ReminderType    string                       `json:"reminder_type,omitempty"`
	Appointment     *workflow.AppointmentDetails `json:"appointment_details,omitempty"`
}

func (g *Gateway) handleManagement(c *okapi.Context) error {
	userID := c.GetString("userID")
	if err := g.rateLimit(c, userID); err != nil {
		return err
	}

	patientID := c.Param("id")
	if patientID == "" {
		return c.AbortBadRequest("patient id is required")
	}

	var req ManagementRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Action == "" {
		return c.AbortBadRequest("action is required")
	}

	g.logger.Info("management action",
		slog.String("user_id", userID),
		slog.String("patient_id", patientID),
		slog.String("action", req.Action),
	)

	outcome, err := g.workflows.Run(c.Context(), &workflow.Request{
		PatientID:       patientID,
		Action:          req.Action,
		ActorID:         userID,
		PreferredWindow: req.PreferredWindow,
		LabID:           req.LabID,
		ReviewNotes:     req.ReviewNotes,
		AppointmentID:   req.AppointmentID,
		ReminderType:    req.ReminderType,
		Appointment:     req.Appointment,
	})
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrUnknownAction):
			return c.AbortBadRequest("unknown action: " + req.Action)
		case errors.Is(err, emr.ErrNotFound):
			return c.JSON(http.StatusNotFound, ErrorBody{Error: "not_found", Message: err.Error()})
		default:
			g.logger.Error("management action failed",
				slog.String("action", req.Action),
				slog.String("error", err.Error()),
			)
			return c.AbortInternalServerError("management action failed")
		}
	}

	return c.OK(outcome)
}

// OperationResponse is the inspection view of a pending operation. The
// proposed arguments are echoed so the confirming user sees exactly what
// will run.
type OperationResponse struct {
	ID          string         `json:"id"`
	ToolName    string         `json:"tool_name"`
	PatientID   string         `json:"patient_id"`
	Args        map[string]any `json:"args"`
	RiskLevel   string         `json:"risk_level"`
	Status      string         `json:"status"`
	ConfirmedBy string         `json:"confirmed_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

func toOperationResponse(op *pending.Operation) OperationResponse {
	return OperationResponse{
		ID:          op.ID,
		ToolName:    op.ToolName,
		PatientID:   op.PatientID,
		Args:        op.Args,
		RiskLevel:   op.RiskLevel,
		Status:      op.Status.String(),
		ConfirmedBy: op.ConfirmedBy,
		CreatedAt:   op.CreatedAt,
		ExpiresAt:   op.ExpiresAt,
	}
}

func (g *Gateway) handleOperationGet(c *okapi.Context) error {
	userID := c.GetString("userID")
	if err := g.rateLimit(c, userID); err != nil {
		return err
	}

	op, err := g.pendings.Get(c.Context(), c.Param("id"))
	if err != nil {
		return operationError(c, err)
	}
	return c.OK(toOperationResponse(op))
}

func (g *Gateway) handleOperationReject(c *okapi.Context) error {
	userID := c.GetString("userID")
	if err := g.rateLimit(c, userID); err != nil {
		return err
	}

	id := c.Param("id")
	if err := g.pendings.Reject(c.Context(), id, userID); err != nil {
		return operationError(c, err)
	}

	g.logger.Info("pending operation rejected",
		slog.String("user_id", userID),
		slog.String("pending_operation_id", id),
	)

	op, err := g.pendings.Get(c.Context(), id)
	if err != nil {
		return operationError(c, err)
	}
	return c.OK(toOperationResponse(op))
}

// operationError maps pending-store errors to appropriate HTTP responses.
func operationError(c *okapi.Context, err error) error {
	switch {
	case errors.Is(err, pending.ErrNotFound), errors.Is(err, pending.ErrActorMismatch):
		// Actor mismatch is reported as not-found so ids are not probeable.
		return c.JSON(http.StatusNotFound, ErrorBody{Error: "not_found", Message: "pending operation not found"})
	case errors.Is(err, pending.ErrExpired):
		return c.JSON(http.StatusGone, ErrorBody{Error: "expired", Message: "pending operation expired"})
	case errors.Is(err, pending.ErrAlreadyResolved):
		return c.JSON(http.StatusConflict, ErrorBody{Error: "already_resolved", Message: "pending operation already resolved"})
	default:
		return c.AbortInternalServerError("pending operation error")
	}
}
