package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/school-control-api/internal/models"
)

func TestDecideAdminAlwaysAllowed(t *testing.T) {
	admin := Actor{ID: "a1", Role: models.RoleAdmin}
	for _, action := range []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete} {
		for _, resource := range []Resource{ResourceUser, ResourceSubject, ResourceEnrollment, ResourceEvaluation, ResourceGrade} {
			d := Decide(admin, action, resource, Facts{})
			assert.True(t, d.Allowed, "admin %s %s", action, resource)
			assert.Equal(t, ReasonAdmin, d.Reason)
		}
	}
}

func TestDecideTeacher(t *testing.T) {
	owner := Actor{ID: "t1", Role: models.RoleTeacher}
	other := Actor{ID: "t2", Role: models.RoleTeacher}

	tests := []struct {
		name     string
		actor    Actor
		action   Action
		resource Resource
		facts    Facts
		allowed  bool
		reason   string
	}{
		{"owner updates own subject", owner, ActionUpdate, ResourceSubject, Facts{TeacherID: "t1"}, true, ReasonSubjectOwner},
		{"owner cannot create subject", owner, ActionCreate, ResourceSubject, Facts{TeacherID: "t1"}, false, ReasonAdminOnly},
		{"owner cannot delete subject", owner, ActionDelete, ResourceSubject, Facts{TeacherID: "t1"}, false, ReasonAdminOnly},
		{"owner creates evaluation", owner, ActionCreate, ResourceEvaluation, Facts{TeacherID: "t1"}, true, ReasonSubjectOwner},
		{"owner deletes grade", owner, ActionDelete, ResourceGrade, Facts{TeacherID: "t1"}, true, ReasonSubjectOwner},
		{"owner creates enrollment", owner, ActionCreate, ResourceEnrollment, Facts{TeacherID: "t1"}, true, ReasonSubjectOwner},
		{"other teacher denied grade", other, ActionUpdate, ResourceGrade, Facts{TeacherID: "t1"}, false, ReasonNotSubjectOwner},
		{"other teacher denied read subject", other, ActionRead, ResourceSubject, Facts{TeacherID: "t1"}, false, ReasonNotSubjectOwner},
		{"unowned subject denied", owner, ActionUpdate, ResourceSubject, Facts{}, false, ReasonNotSubjectOwner},
		{"teacher updates self", owner, ActionUpdate, ResourceUser, Facts{UserID: "t1"}, true, ReasonSelf},
		{"teacher cannot update other user", owner, ActionUpdate, ResourceUser, Facts{UserID: "t2"}, false, ReasonNotSelf},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(tc.actor, tc.action, tc.resource, tc.facts)
			assert.Equal(t, tc.allowed, d.Allowed)
			assert.Equal(t, tc.reason, d.Reason)
		})
	}
}

func TestDecideStudent(t *testing.T) {
	student := Actor{ID: "s3", Role: models.RoleStudent}

	tests := []struct {
		name     string
		action   Action
		resource Resource
		facts    Facts
		allowed  bool
		reason   string
	}{
		{"reads own grade", ActionRead, ResourceGrade, Facts{StudentID: "s3"}, true, ReasonRecordOwner},
		{"denied another student's grade", ActionRead, ResourceGrade, Facts{StudentID: "s7"}, false, ReasonNotRecordOwner},
		{"reads own enrollment", ActionRead, ResourceEnrollment, Facts{StudentID: "s3"}, true, ReasonRecordOwner},
		{"reads enrolled subject", ActionRead, ResourceSubject, Facts{Enrolled: true}, true, ReasonEnrolled},
		{"denied unenrolled subject", ActionRead, ResourceSubject, Facts{}, false, ReasonNotEnrolled},
		{"reads enrolled evaluation", ActionRead, ResourceEvaluation, Facts{Enrolled: true}, true, ReasonEnrolled},
		{"cannot create grade", ActionCreate, ResourceGrade, Facts{StudentID: "s3"}, false, ReasonReadOnlyRole},
		{"cannot update own enrollment", ActionUpdate, ResourceEnrollment, Facts{StudentID: "s3"}, false, ReasonReadOnlyRole},
		{"cannot delete anything", ActionDelete, ResourceEvaluation, Facts{Enrolled: true}, false, ReasonReadOnlyRole},
		{"reads self", ActionRead, ResourceUser, Facts{UserID: "s3"}, true, ReasonSelf},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(student, tc.action, tc.resource, tc.facts)
			assert.Equal(t, tc.allowed, d.Allowed)
			assert.Equal(t, tc.reason, d.Reason)
		})
	}
}

func TestDecideUnknownRoleDenied(t *testing.T) {
	d := Decide(Actor{ID: "x", Role: ""}, ActionRead, ResourceSubject, Facts{Enrolled: true})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonUnknownRole, d.Reason)
}
