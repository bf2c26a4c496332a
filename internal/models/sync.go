package models

// Change records one task's state before and after a local mutation.
// A nil Before marks a create; a nil After marks a delete.
type Change struct {
	Before *Task
	After  *Task
}

// ID returns the id of the task the change touches.
func (c Change) ID() string {
	if c.After != nil {
		return c.After.ID
	}
	if c.Before != nil {
		return c.Before.ID
	}
	return ""
}

// Owner returns the owner of the task the change touches.
func (c Change) Owner() string {
	if c.After != nil {
		return c.After.UserID
	}
	if c.Before != nil {
		return c.Before.UserID
	}
	return ""
}

// SyncItem is one entry of a bulk-sync request.
type SyncItem struct {
	Task
	Deleted bool `json:"deleted,omitempty"`
}

// Sync actions reported per item.
const (
	SyncActionSynced  = "synced"
	SyncActionDeleted = "deleted"
	SyncActionError   = "error"
)

// SyncItemResult reports what happened to one bulk-sync item.
type SyncItemResult struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

// SyncResult is the bulk-sync response: per-item outcomes plus the
// authoritative post-sync task set.
type SyncResult struct {
	Results []SyncItemResult `json:"results"`
	Tasks   []Task           `json:"tasks"`
}
