package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Stripe metadata is a flat string map, so structured values travel as JSON
// under a versioned contract. Decoding is strict: anything malformed is an
// error, and callers fall back to "no pending state" after logging it. The
// metadata is derived, never the sole record of truth.

const (
	metaVersion       = "1"
	metaKeyVersion    = "metaVersion"
	metaKeyParentID   = "parentId"
	metaKeyChildIDs   = "childrenIds"
	metaKeyChildCount = "childrenCount"
	metaKeyAction     = "pendingAction"
	metaKeyRemovedIDs = "removedChildrenIds"
)

// PendingAction tags what a schedule is going to do at the period boundary.
type PendingAction string

const (
	PendingNone           PendingAction = ""
	PendingRemoveChildren PendingAction = "remove_children"
	PendingCancelAll      PendingAction = "cancel_all"
)

type subscriptionMeta struct {
	ParentID string
	ChildIDs []string
}

func encodeSubscriptionMeta(parentID string, childIDs []string) map[string]string {
	raw, _ := json.Marshal(childIDs)
	return map[string]string{
		metaKeyVersion:    metaVersion,
		metaKeyParentID:   parentID,
		metaKeyChildIDs:   string(raw),
		metaKeyChildCount: strconv.Itoa(len(childIDs)),
	}
}

func decodeSubscriptionMeta(md map[string]string) (subscriptionMeta, error) {
	m := subscriptionMeta{ParentID: md[metaKeyParentID]}
	raw := md[metaKeyChildIDs]
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m.ChildIDs); err != nil {
		return subscriptionMeta{ParentID: m.ParentID}, fmt.Errorf("decode childrenIds %q: %w", raw, err)
	}
	return m, nil
}

type scheduleMeta struct {
	ParentID        string
	Action          PendingAction
	RemovedChildIDs []string
}

func encodeScheduleMeta(parentID string, action PendingAction, removedChildIDs []string) map[string]string {
	raw, _ := json.Marshal(removedChildIDs)
	return map[string]string{
		metaKeyVersion:    metaVersion,
		metaKeyParentID:   parentID,
		metaKeyAction:     string(action),
		metaKeyRemovedIDs: string(raw),
	}
}

func decodeScheduleMeta(md map[string]string) (scheduleMeta, error) {
	m := scheduleMeta{ParentID: md[metaKeyParentID]}
	switch action := PendingAction(md[metaKeyAction]); action {
	case PendingNone, PendingRemoveChildren, PendingCancelAll:
		m.Action = action
	default:
		return scheduleMeta{ParentID: m.ParentID}, fmt.Errorf("unknown pendingAction %q", action)
	}
	raw := md[metaKeyRemovedIDs]
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m.RemovedChildIDs); err != nil {
		return scheduleMeta{ParentID: m.ParentID}, fmt.Errorf("decode removedChildrenIds %q: %w", raw, err)
	}
	return m, nil
}

// encodePhaseMeta annotates a schedule's future phase with the composition it
// applies, for dashboard forensics and for the status view's future values.
func encodePhaseMeta(parentID string, childrenCount int, removedChildIDs []string, action PendingAction) map[string]string {
	raw, _ := json.Marshal(removedChildIDs)
	return map[string]string{
		metaKeyParentID:   parentID,
		metaKeyChildCount: strconv.Itoa(childrenCount),
		metaKeyRemovedIDs: string(raw),
		metaKeyAction:     string(action),
	}
}
