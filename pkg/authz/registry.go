package authz

import (
	"errors"
	"strings"
)

// Role is the closed vocabulary of caller roles. Comparisons are exact;
// anything outside the vocabulary is rejected at parse time rather than
// silently treated as an unprivileged caller.
type Role string

const (
	RoleAdmin     Role = "admin"
	RolePrincipal Role = "principal"
	RoleTeacher   Role = "teacher"
	RoleParent    Role = "parent"
	RoleAnonymous Role = "anonymous"
)

var knownRoles = map[Role]struct{}{
	RoleAdmin:     {},
	RolePrincipal: {},
	RoleTeacher:   {},
	RoleParent:    {},
	RoleAnonymous: {},
}

var ErrUnknownRole = errors.New("authz: unknown role")

// ParseRole validates a raw role slug against the closed vocabulary.
// The match is case-sensitive after trimming: "Parent" is not a role.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.TrimSpace(raw))
	if _, ok := knownRoles[r]; !ok {
		return "", ErrUnknownRole
	}
	return r, nil
}

const (
	ActionRead  = "read"
	ActionWrite = "write"
)

const DomainGlobal = "global"

const (
	ObjectOrgs            = "iam.orgs"
	ObjectOrgMembership   = "iam.org-membership"
	ObjectStudents        = "school.students"
	ObjectTeachers        = "school.teachers"
	ObjectAttendance      = "school.attendance"
	ObjectAttendanceRules = "school.attendance-rules"
	ObjectMessages        = "school.messages"
	ObjectAnnouncements   = "school.announcements"
	ObjectCalendarEvents  = "school.calendar-events"
)
