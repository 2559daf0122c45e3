package domain

type Persona struct {
	Name          string  `json:"name"`
	Role          Role    `json:"role"`
	Mythology     string  `json:"mythology"`
	Description   string  `json:"description,omitempty"`
	MissionCount  int     `json:"mission_count"`
	LastMissionAt *string `json:"last_mission_at,omitempty" format:"date-time"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type Mission struct {
	ID          int64   `json:"id"`
	PersonaName string  `json:"persona_name"`
	Role        Role    `json:"role"`
	Codename    string  `json:"codename"`
	Objective   string  `json:"objective,omitempty"`
	StartTime   string  `json:"start_time" format:"date-time"`
	EndTime     *string `json:"end_time,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// Active reports whether the mission has not ended.
func (m Mission) Active() bool { return m.EndTime == nil }

type Task struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Status           TaskStatus `json:"status" enum:"TODO,UNDERWAY,BLOCKED,PAUSED,REVIEW,COMPLETE,ABORTED"`
	Priority         Priority   `json:"priority" enum:"CRITICAL,HIGH,MEDIUM,LOW"`
	Role             Role       `json:"role"`
	Category         *Category  `json:"category,omitempty"`
	Description      string     `json:"description,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	EpicID           *string    `json:"epic_id,omitempty"`
	CurrentMissionID *int64     `json:"current_mission_id,omitempty"`
	BlocksOnReviewID *int64     `json:"blocks_on_review_id,omitempty"`
	ClaimedAt        *string    `json:"claimed_at,omitempty" format:"date-time"`
	ClosedAt         *string    `json:"closed_at,omitempty" format:"date-time"`
	PausedAt         *string    `json:"paused_at,omitempty" format:"date-time"`
	DependsOn        []string   `json:"depends_on,omitempty"`
	CreatedAt        string     `json:"created_at" format:"date-time"`
	UpdatedAt        string     `json:"updated_at" format:"date-time"`
}

type Epic struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Priority       Priority   `json:"priority" enum:"CRITICAL,HIGH,MEDIUM,LOW"`
	Status         EpicStatus `json:"status" enum:"TODO,UNDERWAY,COMPLETE,ABORTED"`
	AbortedReason  *string    `json:"aborted_reason,omitempty"`
	CompletedAt    *string    `json:"completed_at,omitempty" format:"date-time"`
	AbortedAt      *string    `json:"aborted_at,omitempty" format:"date-time"`
	SubtaskCount   int        `json:"subtask_count"`
	CompletedCount int        `json:"completed_count"`
	CreatedAt      string     `json:"created_at" format:"date-time"`
	UpdatedAt      string     `json:"updated_at" format:"date-time"`
}

// ProgressPercent is completed/subtasks as a truncated percentage; 0 without subtasks.
func (e Epic) ProgressPercent() int {
	if e.SubtaskCount == 0 {
		return 0
	}
	return e.CompletedCount * 100 / e.SubtaskCount
}

type Review struct {
	ID            int64        `json:"id"`
	Type          ReviewType   `json:"type" enum:"code,task_completion,design,general"`
	Status        ReviewStatus `json:"status" enum:"pending,approved,rejected"`
	TaskID        *string      `json:"task_id,omitempty"`
	Title         string       `json:"title"`
	Description   string       `json:"description,omitempty"`
	ArtifactPath  string       `json:"artifact_path,omitempty"`
	RequestedBy   *string      `json:"requested_by,omitempty"`
	RequestedAt   string       `json:"requested_at" format:"date-time"`
	ReviewedBy    *string      `json:"reviewed_by,omitempty"`
	ReviewedAt    *string      `json:"reviewed_at,omitempty" format:"date-time"`
	OutcomeReason *string      `json:"outcome_reason,omitempty"`
}

// BlockedTask pairs a task with the pending review gating it.
type BlockedTask struct {
	Task   Task   `json:"task"`
	Review Review `json:"review"`
}

type Handoff struct {
	ID                 int64         `json:"id"`
	TaskID             string        `json:"task_id"`
	FromMissionID      int64         `json:"from_mission_id"`
	ToRole             Role          `json:"to_role"`
	ToMissionID        *int64        `json:"to_mission_id,omitempty"`
	Status             HandoffStatus `json:"status" enum:"pending,accepted,completed,cancelled"`
	Summary            string        `json:"summary"`
	Files              []string      `json:"files,omitempty"`
	AcceptanceCriteria string        `json:"acceptance_criteria,omitempty"`
	Notes              string        `json:"notes,omitempty"`
	CreatedAt          string        `json:"created_at" format:"date-time"`
	AcceptedAt         *string       `json:"accepted_at,omitempty" format:"date-time"`
	CompletedAt        *string       `json:"completed_at,omitempty" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	UID        string `json:"uid"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// ADR is an architecture decision record. The document itself lives in the
// workspace at FilePath; the store tracks its status and links.
type ADR struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    ADRStatus `json:"status" enum:"PROPOSED,ACCEPTED,REJECTED,SUPERSEDED,DEPRECATED"`
	FilePath  string    `json:"file_path"`
	EpicIDs   []string  `json:"epic_ids,omitempty"`
	TaskIDs   []string  `json:"task_ids,omitempty"`
	CreatedAt string    `json:"created_at" format:"date-time"`
	UpdatedAt string    `json:"updated_at" format:"date-time"`
}
