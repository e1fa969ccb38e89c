package server

import "github.com/jackc/pgx/v5/pgxpool"

// Stores bundles every persistence interface the API handlers touch.
// Handlers receive it on each authorized call rather than holding their
// own references, so tests can swap in memory-backed implementations
// wholesale.
type Stores struct {
	Orgs            OrgStore
	Students        StudentStore
	Teachers        TeacherStore
	Attendance      AttendanceStore
	AttendanceRules AttendanceRuleStore
	Messages        MessageStore
	Announcements   AnnouncementStore
	Events          CalendarEventStore
}

// NewPGStores wires every store against a shared pgx pool.
func NewPGStores(pool *pgxpool.Pool) *Stores {
	return &Stores{
		Orgs:            newOrgPGStore(pool),
		Students:        newStudentPGStore(pool),
		Teachers:        newTeacherPGStore(pool),
		Attendance:      newAttendancePGStore(pool),
		AttendanceRules: newAttendanceRulePGStore(pool),
		Messages:        newMessagePGStore(pool),
		Announcements:   newAnnouncementPGStore(pool),
		Events:          newCalendarEventPGStore(pool),
	}
}

// NewMemoryStores returns in-memory stores for tests and local runs
// without a database.
func NewMemoryStores() *Stores {
	return &Stores{
		Orgs:            newMemoryOrgStore(),
		Students:        newMemoryStudentStore(),
		Teachers:        newMemoryTeacherStore(),
		Attendance:      newMemoryAttendanceStore(),
		AttendanceRules: newMemoryAttendanceRuleStore(),
		Messages:        newMemoryMessageStore(),
		Announcements:   newMemoryAnnouncementStore(),
		Events:          newMemoryCalendarEventStore(),
	}
}
