package server

import (
	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
)

// Request payloads

type CreateTaskRequest struct {
	ID          string   `json:"id,omitempty" example:"OPR-H-0001"`
	Title       string   `json:"title" minLength:"1"`
	Role        string   `json:"role,omitempty" example:"Operator"`
	Priority    string   `json:"priority,omitempty" enum:"CRITICAL,HIGH,MEDIUM,LOW"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	EpicID      string   `json:"epic_id,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Notes       *string `json:"notes,omitempty"`
	// Category "" clears the category.
	Category *string `json:"category,omitempty"`
}

type ClaimTaskRequest struct {
	MissionID int64 `json:"mission_id,omitempty"`
}

type SetTaskStatusRequest struct {
	Status string  `json:"status" enum:"TODO,UNDERWAY,BLOCKED,PAUSED,REVIEW,COMPLETE,ABORTED"`
	Notes  *string `json:"notes,omitempty"`
}

type AddDependencyRequest struct {
	DependsOn string `json:"depends_on"`
}

type BlockTaskRequest struct {
	ReviewID int64 `json:"review_id"`
}

type LinkTaskRequest struct {
	EpicID string `json:"epic_id"`
}

type CreateEpicRequest struct {
	ID          string `json:"id,omitempty" example:"EPC-H-0001"`
	Title       string `json:"title" minLength:"1"`
	Priority    string `json:"priority,omitempty" enum:"CRITICAL,HIGH,MEDIUM,LOW"`
	Description string `json:"description,omitempty"`
}

type UpdateEpicRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
}

type AbortEpicRequest struct {
	Reason string `json:"reason,omitempty"`
}

type SyncEpicsRequest struct {
	IDs []string `json:"ids,omitempty"`
}

type CreateADRRequest struct {
	ID       string `json:"id,omitempty" example:"ADR-001"`
	Title    string `json:"title" minLength:"1"`
	Status   string `json:"status,omitempty" enum:"PROPOSED,ACCEPTED,REJECTED,SUPERSEDED,DEPRECATED"`
	FilePath string `json:"file_path,omitempty"`
}

type UpdateADRRequest struct {
	Title    *string `json:"title,omitempty"`
	Status   *string `json:"status,omitempty"`
	FilePath *string `json:"file_path,omitempty"`
}

// ADRLinkRequest names exactly one of an epic or a task.
type ADRLinkRequest struct {
	EpicID string `json:"epic_id,omitempty"`
	TaskID string `json:"task_id,omitempty"`
}

type CreateReviewRequest struct {
	Type         string `json:"type" enum:"code,task_completion,design,general"`
	Title        string `json:"title" minLength:"1"`
	TaskID       string `json:"task_id,omitempty"`
	Description  string `json:"description,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	Block        bool   `json:"block,omitempty"`
}

type DecideReviewRequest struct {
	Reviewer string `json:"reviewer,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type CreateHandoffRequest struct {
	TaskID             string   `json:"task_id"`
	FromMissionID      int64    `json:"from_mission_id"`
	ToRole             string   `json:"to_role"`
	Summary            string   `json:"summary" minLength:"1"`
	Files              []string `json:"files,omitempty"`
	AcceptanceCriteria string   `json:"acceptance_criteria,omitempty"`
	Notes              string   `json:"notes,omitempty"`
}

type AcceptHandoffRequest struct {
	MissionID int64 `json:"mission_id"`
}

type StartMissionRequest struct {
	// Persona is suggested from the catalog when empty.
	Persona   string `json:"persona,omitempty"`
	Role      string `json:"role"`
	Objective string `json:"objective,omitempty"`
}

type UpdateMissionRequest struct {
	Objective *string `json:"objective,omitempty"`
	Role      *string `json:"role,omitempty"`
}

type CreatePersonaRequest struct {
	Name        string `json:"name" example:"anansi"`
	Role        string `json:"role"`
	Mythology   string `json:"mythology"`
	Description string `json:"description,omitempty"`
}

// Response payloads

type taskList struct {
	Items []domain.Task `json:"items"`
}

type epicList struct {
	Items []domain.Epic `json:"items"`
}

type adrList struct {
	Items []domain.ADR `json:"items"`
}

type reviewList struct {
	Items []domain.Review `json:"items"`
}

type blockedList struct {
	Items []domain.BlockedTask `json:"items"`
}

type handoffList struct {
	Items []domain.Handoff `json:"items"`
}

type missionList struct {
	Items []domain.Mission `json:"items"`
}

type personaList struct {
	Items []domain.Persona `json:"items"`
}

type idList struct {
	Items []string `json:"items"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type BlockedStatusResponse struct {
	TaskID  string         `json:"task_id"`
	Blocked bool           `json:"blocked"`
	Review  *domain.Review `json:"review,omitempty"`
}

type CodenameResponse struct {
	MissionID int64  `json:"mission_id"`
	Codename  string `json:"codename"`
}

type StatusResponse struct {
	Project string `json:"project"`
	engine.Summary
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
