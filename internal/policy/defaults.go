package policy

import "github.com/docuease/copilot/internal/identity"

// Action names evaluated by the default policy set.
const (
	ActionViewPatient         = "ViewPatient"
	ActionUpdatePatient       = "UpdatePatient"
	ActionCreateEncounter     = "CreateEncounter"
	ActionViewEncounter       = "ViewEncounter"
	ActionViewMedication      = "ViewMedication"
	ActionViewLabResult       = "ViewLabResult"
	ActionUseAIAgent          = "UseAIAgent"
	ActionConfirmAIAction     = "ConfirmAIAction"
	ActionPrescribeMedication = "PrescribeMedication"
	ActionUpdateMedication    = "UpdateMedication"
)

// Specialties permitted to touch controlled substances.
var controlledSubstanceSpecialties = map[string]bool{
	"pain_management": true,
	"psychiatry":      true,
	"anesthesiology":  true,
	"oncology":        true,
}

// DefaultPolicies returns the static production policy set.
func DefaultPolicies() []Policy {
	return []Policy{
		{
			ID:     "demo-user-access",
			Effect: Allow,
			Principal: PrincipalMatcher{
				Roles: []identity.Role{identity.RoleAdmin},
				IDs:   []string{identity.DemoActorID},
			},
			Actions:  []string{ActionViewPatient, ActionUpdatePatient, ActionUseAIAgent, ActionConfirmAIAction},
			Resource: ResourceMatcher{Type: "Patient"},
			When: func(a *identity.Actor, _ *Resource, _ *Context) bool {
				return a.ID == identity.DemoActorID && a.Role == identity.RoleAdmin
			},
		},
		{
			ID:        "provider-patient-access",
			Effect:    Allow,
			Principal: PrincipalMatcher{Roles: []identity.Role{identity.RoleProvider}},
			Actions:   []string{ActionViewPatient, ActionUpdatePatient, ActionCreateEncounter, ActionUseAIAgent},
			Resource:  ResourceMatcher{Type: "Patient"},
			When: func(a *identity.Actor, r *Resource, _ *Context) bool {
				return a.Active && (r.AssignedProvider == a.ID || containsString(r.CareTeam, a.ID))
			},
		},
		{
			ID:       "ai-agent-restrictions",
			Effect:   Allow,
			Actions:  []string{ActionUseAIAgent, ActionConfirmAIAction},
			Resource: ResourceMatcher{Type: "Patient"},
			When: func(a *identity.Actor, _ *Resource, pctx *Context) bool {
				licensedRole := a.Role == identity.RoleProvider ||
					a.Role == identity.RoleResident ||
					a.Role == identity.RoleAdmin
				// High-risk tools are admin-only.
				return licensedRole && a.Active && a.Licensed() &&
					(pctx.RiskLevel != RiskHigh || a.Role == identity.RoleAdmin)
			},
		},
		{
			ID:        "admin-medication-access",
			Effect:    Allow,
			Principal: PrincipalMatcher{Roles: []identity.Role{identity.RoleAdmin}},
			Actions:   []string{ActionUpdateMedication, ActionPrescribeMedication},
			When: func(a *identity.Actor, _ *Resource, _ *Context) bool {
				return a.Active
			},
		},
		{
			ID:        "emergency-access",
			Effect:    Allow,
			Principal: PrincipalMatcher{Roles: []identity.Role{identity.RoleEmergencyProvider}},
			Actions:   []string{ActionViewPatient, ActionViewEncounter, ActionViewMedication, ActionViewLabResult},
			When: func(a *identity.Actor, _ *Resource, _ *Context) bool {
				return a.Active && a.Department == "emergency"
			},
		},
		{
			ID:       "vip-patient-restriction",
			Effect:   Deny,
			Actions:  []string{Wildcard},
			Resource: ResourceMatcher{Type: "Patient", PrivacyLevel: "vip"},
			When: func(a *identity.Actor, r *Resource, _ *Context) bool {
				return a.Role != identity.RoleProvider &&
					r.AssignedProvider != a.ID &&
					!containsString(r.CareTeam, a.ID)
			},
		},
		{
			ID:      "inactive-user-restriction",
			Effect:  Deny,
			Actions: []string{Wildcard},
			When: func(a *identity.Actor, _ *Resource, _ *Context) bool {
				return !a.Active
			},
		},
		{
			ID:      "controlled-substance-restriction",
			Effect:  Deny,
			Actions: []string{ActionPrescribeMedication, ActionUpdateMedication},
			When: func(a *identity.Actor, r *Resource, pctx *Context) bool {
				controlled := r.IsControlled
				if !controlled && pctx.ToolArgs != nil {
					controlled, _ = pctx.ToolArgs["is_controlled"].(bool)
				}
				return controlled && !controlledSubstanceSpecialties[a.Specialty]
			},
		},
	}
}
