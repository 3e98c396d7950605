package auth

import (
	"io"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// Variant names an extra rule a policy applies after the role check.
type Variant string

const (
	// VariantStaffPathAllowlist keeps Staff inside the allowed admin prefixes.
	VariantStaffPathAllowlist Variant = "staff-path-allowlist"
	// VariantManagerCinemaAssignment requires a Manager to be assigned to a
	// cinema. Admin bypasses it.
	VariantManagerCinemaAssignment Variant = "manager-cinema-assignment-required"
	// VariantReadOnlyForUnprivileged renders read only for everyone but
	// Admin, and Manager under the edit prefixes.
	VariantReadOnlyForUnprivileged Variant = "read-only-for-unprivileged"
)

// IsValid reports whether v is a known variant.
func (v Variant) IsValid() bool {
	switch v {
	case VariantStaffPathAllowlist, VariantManagerCinemaAssignment, VariantReadOnlyForUnprivileged:
		return true
	default:
		return false
	}
}

// Policy is the access rule of a route. A policy requires an authenticated
// session when RequireAuth is set, when it has an allow list or when it has
// variants.
type Policy struct {
	Name         string    `yaml:"name" json:"name"`
	RequireAuth  bool      `yaml:"require_auth" json:"requireAuth"`
	AllowedRoles []Role    `yaml:"allowed_roles" json:"allowedRoles,omitempty"`
	Variants     []Variant `yaml:"variants" json:"variants,omitempty"`
}

// RequiresAuth reports whether anonymous sessions are sent to login.
func (p Policy) RequiresAuth() bool {
	return p.RequireAuth || len(p.AllowedRoles) > 0 || len(p.Variants) > 0
}

// Allows reports whether role passes the allow list.
func (p Policy) Allows(role Role) bool {
	if len(p.AllowedRoles) == 0 {
		return true
	}
	return role.In(p.AllowedRoles...)
}

// PublicPolicy renders for everyone.
func PublicPolicy() Policy {
	return Policy{Name: "public"}
}

// AuthenticatedPolicy renders for any signed in user.
func AuthenticatedPolicy() Policy {
	return Policy{Name: "authenticated", RequireAuth: true}
}

// CustomerPolicy guards customer pages such as checkout and profile.
func CustomerPolicy() Policy {
	return Policy{Name: "customer", AllowedRoles: []Role{RoleCustomer}}
}

// AdminAreaPolicy guards the back office: Staff are confined to their
// prefixes, Managers need a cinema and only edit under the edit prefixes.
func AdminAreaPolicy() Policy {
	return Policy{
		Name:         "admin",
		AllowedRoles: []Role{RoleAdmin, RoleManager, RoleStaff},
		Variants: []Variant{
			VariantStaffPathAllowlist,
			VariantManagerCinemaAssignment,
			VariantReadOnlyForUnprivileged,
		},
	}
}

// LoadPolicies reads named policies from YAML:
//
//	policies:
//	  admin:
//	    allowed_roles: [Admin, Manager, Staff]
//	    variants: [staff-path-allowlist]
func LoadPolicies(r io.Reader) (map[string]Policy, error) {
	var doc struct {
		Policies map[string]Policy `yaml:"policies"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode policies")
	}

	policies := make(map[string]Policy, len(doc.Policies))
	for name, policy := range doc.Policies {
		if policy.Name == "" {
			policy.Name = name
		}
		for i, role := range policy.AllowedRoles {
			parsed, ok := ParseRole(string(role))
			if !ok {
				return nil, goerrors.New("unknown role in policy", goerrors.CategoryBadInput).
					WithCode(goerrors.CodeBadRequest).
					WithMetadata(map[string]any{"policy": name, "role": role})
			}
			policy.AllowedRoles[i] = parsed
		}
		for _, variant := range policy.Variants {
			if !variant.IsValid() {
				return nil, goerrors.New("unknown variant in policy", goerrors.CategoryBadInput).
					WithCode(goerrors.CodeBadRequest).
					WithMetadata(map[string]any{"policy": name, "variant": variant})
			}
		}
		policies[name] = policy
	}
	return policies, nil
}

// AssignmentStatus is how far the cinema assignment lookup got.
type AssignmentStatus string

const (
	AssignmentUnknown    AssignmentStatus = "unknown"
	AssignmentLoading    AssignmentStatus = "loading"
	AssignmentAssigned   AssignmentStatus = "assigned"
	AssignmentUnassigned AssignmentStatus = "unassigned"
)

// AssignmentState is the cinema assignment of the current user.
type AssignmentState struct {
	Status   AssignmentStatus `json:"status"`
	CinemaID *int             `json:"cinemaId,omitempty"`
}

// Route is the navigation being evaluated.
type Route struct {
	Path       string
	Assignment AssignmentState
}

// DecisionKind is the outcome of a gate evaluation.
type DecisionKind string

const (
	DecisionLoading        DecisionKind = "loading"
	DecisionRedirect       DecisionKind = "redirect"
	DecisionRenderFull     DecisionKind = "render-full"
	DecisionRenderReadOnly DecisionKind = "render-read-only"
)

// Decision tells the caller what to do with a navigation. From is the
// attempted path on a login redirect.
type Decision struct {
	Kind         DecisionKind `json:"kind"`
	Target       string       `json:"target,omitempty"`
	From         string       `json:"from,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
}

// Renders reports whether the route content should be rendered.
func (d Decision) Renders() bool {
	return d.Kind == DecisionRenderFull || d.Kind == DecisionRenderReadOnly
}

// Gate evaluates policies against a session. It holds configuration only.
type Gate struct {
	cfg Config
}

// NewGate returns a gate using the paths and prefixes in cfg.
func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Evaluate decides what to do with route under policy for session.
func (g *Gate) Evaluate(policy Policy, session Session, route Route) Decision {
	if session.IsLoading {
		return Decision{Kind: DecisionLoading}
	}

	if !session.IsAuthenticated || session.User == nil {
		if policy.RequiresAuth() {
			return g.redirect(g.cfg.GetLoginPath(), route.Path)
		}
		return full()
	}

	role := session.User.Role
	if !policy.Allows(role) {
		if role.IsPrivileged() {
			return g.redirect(g.cfg.GetAdminDashboardPath(), "")
		}
		return g.redirect(g.cfg.GetHomePath(), "")
	}

	readOnly := false
	for _, variant := range policy.Variants {
		switch variant {
		case VariantStaffPathAllowlist:
			if role == RoleStaff && !matchesPrefix(route.Path, g.cfg.GetStaffAllowedPrefixes()) {
				return g.redirect(g.cfg.GetStaffLandingPath(), "")
			}
		case VariantManagerCinemaAssignment:
			if role != RoleManager {
				continue
			}
			switch assignmentStatus(session.User, route.Assignment) {
			case AssignmentUnassigned:
				return g.redirect(g.cfg.GetManagerFallbackPath(), "")
			case AssignmentAssigned:
			default:
				return Decision{Kind: DecisionLoading}
			}
		case VariantReadOnlyForUnprivileged:
			switch {
			case role == RoleAdmin:
			case role == RoleManager && matchesPrefix(route.Path, g.cfg.GetManagerEditPrefixes()):
			default:
				readOnly = true
			}
		}
	}

	if readOnly {
		return Decision{Kind: DecisionRenderReadOnly, Capabilities: Capabilities{CanEdit: false}}
	}
	return full()
}

func (g *Gate) redirect(target, from string) Decision {
	return Decision{Kind: DecisionRedirect, Target: target, From: from}
}

func full() Decision {
	return Decision{Kind: DecisionRenderFull, Capabilities: Capabilities{CanEdit: true}}
}

// assignmentStatus prefers the resolved state, falling back to the cinema
// carried by the profile.
func assignmentStatus(user *User, state AssignmentState) AssignmentStatus {
	switch state.Status {
	case AssignmentAssigned, AssignmentUnassigned, AssignmentLoading:
		return state.Status
	}
	if user.HasCinema() {
		return AssignmentAssigned
	}
	return AssignmentUnknown
}

// matchesPrefix matches whole path segments, so "/admin/rooms" covers
// "/admin/rooms/4" but not "/admin/roomsx".
func matchesPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		prefix = strings.TrimSuffix(prefix, "/")
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
