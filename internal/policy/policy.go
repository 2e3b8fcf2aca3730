// Package policy holds the pure authorization decision logic. Every endpoint
// funnels through Decide instead of re-deriving role conditionals per route,
// so the rules live (and are tested) in exactly one place.
//
// Callers resolve the resource first: a missing record is reported as
// not-found before any decision here runs. Ownership facts follow the chain
// grade -> evaluation -> subject -> teacher_id.
package policy

import "github.com/noah-isme/school-control-api/internal/models"

// Action enumerates the operations subject to authorization.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Resource enumerates the record kinds subject to authorization.
type Resource string

const (
	ResourceUser       Resource = "user"
	ResourceSubject    Resource = "subject"
	ResourceEnrollment Resource = "enrollment"
	ResourceEvaluation Resource = "evaluation"
	ResourceGrade      Resource = "grade"
)

// Actor is the resolved authenticated identity making a request.
type Actor struct {
	ID   string
	Role models.UserRole
}

// Facts carries the ownership facts resolved for the target resource. Zero
// values mean "no such relationship".
type Facts struct {
	// TeacherID is the id of the teacher transitively owning the resource via
	// its subject.
	TeacherID string
	// StudentID is the id of the student owning the record (enrollment, grade).
	StudentID string
	// Enrolled reports whether the actor holds an enrollment in the owning
	// subject.
	Enrolled bool
	// UserID is the target user's id for user resources.
	UserID string
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

// Stable reason tags. Deny reasons name the failed rule, not the caller.
const (
	ReasonAdmin           = "admin"
	ReasonSubjectOwner    = "subject_owner"
	ReasonRecordOwner     = "record_owner"
	ReasonEnrolled        = "enrolled"
	ReasonSelf            = "self"
	ReasonUnknownRole     = "unknown_role"
	ReasonNotSubjectOwner = "not_subject_owner"
	ReasonNotRecordOwner  = "not_record_owner"
	ReasonNotEnrolled     = "not_enrolled"
	ReasonNotSelf         = "not_self"
	ReasonAdminOnly       = "admin_only"
	ReasonReadOnlyRole    = "read_only_role"
)

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// Decide evaluates whether the actor may perform the action on the resource
// described by the given ownership facts.
func Decide(actor Actor, action Action, resource Resource, facts Facts) Decision {
	switch actor.Role {
	case models.RoleAdmin:
		return allow(ReasonAdmin)
	case models.RoleTeacher:
		return decideTeacher(actor, action, resource, facts)
	case models.RoleStudent:
		return decideStudent(actor, action, resource, facts)
	}
	return deny(ReasonUnknownRole)
}

func decideTeacher(actor Actor, action Action, resource Resource, facts Facts) Decision {
	switch resource {
	case ResourceUser:
		if facts.UserID == actor.ID {
			return allow(ReasonSelf)
		}
		return deny(ReasonNotSelf)
	case ResourceSubject:
		// Subjects are created and removed by administration; owners may only
		// read and update theirs.
		if action == ActionCreate || action == ActionDelete {
			return deny(ReasonAdminOnly)
		}
	}
	if facts.TeacherID == actor.ID && actor.ID != "" {
		return allow(ReasonSubjectOwner)
	}
	return deny(ReasonNotSubjectOwner)
}

func decideStudent(actor Actor, action Action, resource Resource, facts Facts) Decision {
	if action != ActionRead {
		return deny(ReasonReadOnlyRole)
	}
	switch resource {
	case ResourceUser:
		if facts.UserID == actor.ID {
			return allow(ReasonSelf)
		}
		return deny(ReasonNotSelf)
	case ResourceEnrollment, ResourceGrade:
		if facts.StudentID == actor.ID && actor.ID != "" {
			return allow(ReasonRecordOwner)
		}
		return deny(ReasonNotRecordOwner)
	case ResourceSubject, ResourceEvaluation:
		if facts.Enrolled {
			return allow(ReasonEnrolled)
		}
		return deny(ReasonNotEnrolled)
	}
	return deny(ReasonNotRecordOwner)
}
