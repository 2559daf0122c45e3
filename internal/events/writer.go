// Package events appends audit records inside the caller's transaction.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entity kinds recorded in the log.
const (
	KindTask    = "task"
	KindEpic    = "epic"
	KindReview  = "review"
	KindHandoff = "handoff"
	KindMission = "mission"
	KindPersona = "persona"
	KindADR     = "adr"

	// KindWorkspace covers whole-store maintenance such as reset and repair.
	KindWorkspace = "workspace"
)

type Writer struct {
	Now   func() time.Time
	NewID func() string
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	newID := w.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(uid,ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		newID(), now().UTC().Format(time.RFC3339), evtType, entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
