package domain

import (
	"fmt"
	"strings"
)

// EnumError reports a value outside one of the closed enums below.
type EnumError struct {
	Kind  string
	Value string
}

func (e *EnumError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Kind, e.Value)
}

// Role is an agent role. Each role owns a fixed three-letter task ID prefix.
type Role string

const (
	RoleAdministrator Role = "Administrator"
	RoleArchitect     Role = "Architect"
	RoleEngineer      Role = "Engineer"
	RoleTester        Role = "Tester"
	RoleDocumentarian Role = "Documentarian"
	RoleDesigner      Role = "Designer"
	RoleInspector     Role = "Inspector"
	RoleOperator      Role = "Operator"
	RoleHistorian     Role = "Historian"
)

type roleEntry struct {
	role    Role
	prefix  string
	aliases []string
	legacy  []string
}

var roleTable = []roleEntry{
	{RoleAdministrator, "ADM", nil, nil},
	{RoleArchitect, "ARC", nil, nil},
	{RoleEngineer, "ENG", []string{"Builder"}, []string{"BLD"}},
	{RoleTester, "TST", nil, nil},
	{RoleDocumentarian, "DOC", nil, nil},
	{RoleDesigner, "DES", nil, nil},
	{RoleInspector, "INS", nil, nil},
	{RoleOperator, "OPR", nil, nil},
	{RoleHistorian, "HIS", nil, nil},
}

// Roles returns every role in table order.
func Roles() []Role {
	out := make([]Role, 0, len(roleTable))
	for _, e := range roleTable {
		out = append(out, e.role)
	}
	return out
}

// ParseRole matches a role name case-insensitively, including legacy aliases.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	for _, e := range roleTable {
		if strings.EqualFold(s, string(e.role)) {
			return e.role, nil
		}
		for _, a := range e.aliases {
			if strings.EqualFold(s, a) {
				return e.role, nil
			}
		}
	}
	return "", &EnumError{Kind: "role", Value: s}
}

// RoleForPrefix resolves a task ID prefix. Legacy prefixes are accepted.
func RoleForPrefix(prefix string) (Role, bool) {
	for _, e := range roleTable {
		if e.prefix == prefix {
			return e.role, true
		}
		for _, l := range e.legacy {
			if l == prefix {
				return e.role, true
			}
		}
	}
	return "", false
}

func (r Role) Prefix() string {
	for _, e := range roleTable {
		if e.role == r {
			return e.prefix
		}
	}
	return ""
}

func (r Role) Valid() bool { return r.Prefix() != "" }

// Priority orders work. Lower rank sorts first.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

var priorityTable = []struct {
	priority Priority
	code     string
}{
	{PriorityCritical, "C"},
	{PriorityHigh, "H"},
	{PriorityMedium, "M"},
	{PriorityLow, "L"},
}

func Priorities() []Priority {
	out := make([]Priority, 0, len(priorityTable))
	for _, e := range priorityTable {
		out = append(out, e.priority)
	}
	return out
}

func ParsePriority(s string) (Priority, error) {
	s = strings.TrimSpace(s)
	for _, e := range priorityTable {
		if strings.EqualFold(s, string(e.priority)) || strings.EqualFold(s, e.code) {
			return e.priority, nil
		}
	}
	return "", &EnumError{Kind: "priority", Value: s}
}

func PriorityForCode(code string) (Priority, bool) {
	for _, e := range priorityTable {
		if e.code == code {
			return e.priority, true
		}
	}
	return "", false
}

func (p Priority) Code() string {
	for _, e := range priorityTable {
		if e.priority == p {
			return e.code
		}
	}
	return ""
}

// Rank is the sort position of the priority, or len(priorities) when unknown.
func (p Priority) Rank() int {
	for i, e := range priorityTable {
		if e.priority == p {
			return i
		}
	}
	return len(priorityTable)
}

func (p Priority) Valid() bool { return p.Code() != "" }

type TaskStatus string

const (
	TaskTodo     TaskStatus = "TODO"
	TaskUnderway TaskStatus = "UNDERWAY"
	TaskBlocked  TaskStatus = "BLOCKED"
	TaskPaused   TaskStatus = "PAUSED"
	TaskReview   TaskStatus = "REVIEW"
	TaskComplete TaskStatus = "COMPLETE"
	TaskAborted  TaskStatus = "ABORTED"
)

var taskStatuses = []TaskStatus{TaskTodo, TaskUnderway, TaskBlocked, TaskPaused, TaskReview, TaskComplete, TaskAborted}

func TaskStatuses() []TaskStatus { return append([]TaskStatus(nil), taskStatuses...) }

func ParseTaskStatus(s string) (TaskStatus, error) {
	for _, st := range taskStatuses {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", &EnumError{Kind: "task status", Value: s}
}

// Closed reports whether the status is terminal.
func (s TaskStatus) Closed() bool { return s == TaskComplete || s == TaskAborted }

type EpicStatus string

const (
	EpicTodo     EpicStatus = "TODO"
	EpicUnderway EpicStatus = "UNDERWAY"
	EpicComplete EpicStatus = "COMPLETE"
	EpicAborted  EpicStatus = "ABORTED"
)

var epicStatuses = []EpicStatus{EpicTodo, EpicUnderway, EpicComplete, EpicAborted}

func ParseEpicStatus(s string) (EpicStatus, error) {
	for _, st := range epicStatuses {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", &EnumError{Kind: "epic status", Value: s}
}

func (s EpicStatus) Active() bool { return s == EpicTodo || s == EpicUnderway }
func (s EpicStatus) Closed() bool { return s == EpicComplete || s == EpicAborted }

// ReviewType classifies what a review gates.
type ReviewType string

const (
	ReviewCode           ReviewType = "code"
	ReviewTaskCompletion ReviewType = "task_completion"
	ReviewDesign         ReviewType = "design"
	ReviewGeneral        ReviewType = "general"
)

var reviewTypeTable = []struct {
	typ     ReviewType
	display string
}{
	{ReviewCode, "Code/PR Review"},
	{ReviewTaskCompletion, "Task Completion Review"},
	{ReviewDesign, "Design/Architecture Review"},
	{ReviewGeneral, "General Artifact Review"},
}

func ParseReviewType(s string) (ReviewType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, e := range reviewTypeTable {
		if s == string(e.typ) {
			return e.typ, nil
		}
	}
	return "", &EnumError{Kind: "review type", Value: s}
}

func (t ReviewType) Display() string {
	for _, e := range reviewTypeTable {
		if e.typ == t {
			return e.display
		}
	}
	return string(t)
}

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

func ParseReviewStatus(s string) (ReviewStatus, error) {
	switch st := ReviewStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ReviewPending, ReviewApproved, ReviewRejected:
		return st, nil
	}
	return "", &EnumError{Kind: "review status", Value: s}
}

type HandoffStatus string

const (
	HandoffPending   HandoffStatus = "pending"
	HandoffAccepted  HandoffStatus = "accepted"
	HandoffCompleted HandoffStatus = "completed"
	HandoffCancelled HandoffStatus = "cancelled"
)

func ParseHandoffStatus(s string) (HandoffStatus, error) {
	switch st := HandoffStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case HandoffPending, HandoffAccepted, HandoffCompleted, HandoffCancelled:
		return st, nil
	}
	return "", &EnumError{Kind: "handoff status", Value: s}
}

// Category is an optional task classification.
type Category string

var categories = []Category{
	"feature", "bug-fix", "refactor", "documentation", "testing",
	"infrastructure", "security", "performance", "architecture", "maintenance",
}

func Categories() []Category { return append([]Category(nil), categories...) }

func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range categories {
		if s == string(c) {
			return c, nil
		}
	}
	return "", &EnumError{Kind: "category", Value: s}
}

// ADRStatus tracks an architecture decision record through review.
type ADRStatus string

const (
	ADRProposed   ADRStatus = "PROPOSED"
	ADRAccepted   ADRStatus = "ACCEPTED"
	ADRRejected   ADRStatus = "REJECTED"
	ADRSuperseded ADRStatus = "SUPERSEDED"
	ADRDeprecated ADRStatus = "DEPRECATED"
)

var adrStatuses = []ADRStatus{ADRProposed, ADRAccepted, ADRRejected, ADRSuperseded, ADRDeprecated}

func ADRStatuses() []ADRStatus { return append([]ADRStatus(nil), adrStatuses...) }

func ParseADRStatus(s string) (ADRStatus, error) {
	for _, st := range adrStatuses {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", &EnumError{Kind: "adr status", Value: s}
}
