// Package models defines the core domain types for MorningTrio.
package models

import (
	"encoding/json"
	"time"
)

// LocalOwner is the owner assigned to tasks created before sign-in.
const LocalOwner = "local"

// MustDoCap is the number of open must-do slots per task list.
const MustDoCap = 3

// DateLayout is the on-disk and on-wire date format.
const DateLayout = "2006-01-02"

// Section is the priority partition a task lives in.
type Section string

const (
	SectionMustDo Section = "mustDo"
	SectionOther  Section = "other"
)

// Valid reports whether s is a known section.
func (s Section) Valid() bool {
	return s == SectionMustDo || s == SectionOther
}

// TaskList partitions tasks into independent boards.
type TaskList string

const (
	TaskListWork     TaskList = "work"
	TaskListPersonal TaskList = "personal"
)

// TaskLists lists every board in display order.
var TaskLists = []TaskList{TaskListPersonal, TaskListWork}

// Valid reports whether l is a known task list.
func (l TaskList) Valid() bool {
	return l == TaskListWork || l == TaskListPersonal
}

// Task is a single backlog entry.
type Task struct {
	ID            string   `json:"id" db:"id"`
	UserID        string   `json:"userId" db:"user_id"`
	Text          string   `json:"text" db:"text"`
	Completed     bool     `json:"completed" db:"completed"`
	CompletedDate *string  `json:"completedDate" db:"completed_date"`
	Section       Section  `json:"section" db:"section"`
	TaskList      TaskList `json:"taskList" db:"task_list"`
	OrderIndex    int      `json:"orderIndex" db:"order_index"`
	CreatedDate   string   `json:"createdDate" db:"created_date"`
}

// CompletedOn reports whether the task was completed on the given date.
func (t Task) CompletedOn(date string) bool {
	return t.Completed && t.CompletedDate != nil && *t.CompletedDate == date
}

// Equal reports whether two task snapshots hold the same field values.
func (t Task) Equal(o Task) bool {
	if t.CompletedDate == nil || o.CompletedDate == nil {
		if t.CompletedDate != o.CompletedDate {
			return false
		}
	} else if *t.CompletedDate != *o.CompletedDate {
		return false
	}
	return t.ID == o.ID && t.UserID == o.UserID && t.Text == o.Text &&
		t.Completed == o.Completed && t.Section == o.Section &&
		t.TaskList == o.TaskList && t.OrderIndex == o.OrderIndex &&
		t.CreatedDate == o.CreatedDate
}

// Patch is a partial field update. Nil fields are left untouched.
// ClearCompletedDate distinguishes an explicit null from an absent field.
type Patch struct {
	Text               *string
	Completed          *bool
	CompletedDate      *string
	ClearCompletedDate bool
	Section            *Section
	TaskList           *TaskList
	OrderIndex         *int
	CreatedDate        *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Text == nil && p.Completed == nil && p.CompletedDate == nil &&
		!p.ClearCompletedDate && p.Section == nil && p.TaskList == nil &&
		p.OrderIndex == nil && p.CreatedDate == nil
}

// Apply returns a copy of t with the patch applied.
func (p Patch) Apply(t Task) Task {
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.ClearCompletedDate {
		t.CompletedDate = nil
	} else if p.CompletedDate != nil {
		d := *p.CompletedDate
		t.CompletedDate = &d
	}
	if p.Section != nil {
		t.Section = *p.Section
	}
	if p.TaskList != nil {
		t.TaskList = *p.TaskList
	}
	if p.OrderIndex != nil {
		t.OrderIndex = *p.OrderIndex
	}
	if p.CreatedDate != nil {
		t.CreatedDate = *p.CreatedDate
	}
	return t
}

// Diff builds the patch that turns from into to.
func Diff(from, to Task) Patch {
	var p Patch
	if from.Text != to.Text {
		p.Text = &to.Text
	}
	if from.Completed != to.Completed {
		p.Completed = &to.Completed
	}
	switch {
	case to.CompletedDate == nil && from.CompletedDate != nil:
		p.ClearCompletedDate = true
	case to.CompletedDate != nil && (from.CompletedDate == nil || *from.CompletedDate != *to.CompletedDate):
		p.CompletedDate = to.CompletedDate
	}
	if from.Section != to.Section {
		p.Section = &to.Section
	}
	if from.TaskList != to.TaskList {
		p.TaskList = &to.TaskList
	}
	if from.OrderIndex != to.OrderIndex {
		p.OrderIndex = &to.OrderIndex
	}
	if from.CreatedDate != to.CreatedDate {
		p.CreatedDate = &to.CreatedDate
	}
	return p
}

// MarshalJSON writes only the fields that are set.
func (p Patch) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{})
	if p.Text != nil {
		m["text"] = *p.Text
	}
	if p.Completed != nil {
		m["completed"] = *p.Completed
	}
	if p.ClearCompletedDate {
		m["completedDate"] = nil
	} else if p.CompletedDate != nil {
		m["completedDate"] = *p.CompletedDate
	}
	if p.Section != nil {
		m["section"] = *p.Section
	}
	if p.TaskList != nil {
		m["taskList"] = *p.TaskList
	}
	if p.OrderIndex != nil {
		m["orderIndex"] = *p.OrderIndex
	}
	if p.CreatedDate != nil {
		m["createdDate"] = *p.CreatedDate
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads a partial patch, treating "completedDate": null as a clear.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Patch{}

	fields := []struct {
		key string
		dst interface{}
	}{
		{"text", &p.Text},
		{"completed", &p.Completed},
		{"section", &p.Section},
		{"taskList", &p.TaskList},
		{"orderIndex", &p.OrderIndex},
		{"createdDate", &p.CreatedDate},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return err
		}
	}

	if v, ok := raw["completedDate"]; ok {
		if string(v) == "null" {
			p.ClearCompletedDate = true
		} else if err := json.Unmarshal(v, &p.CompletedDate); err != nil {
			return err
		}
	}
	return nil
}

// ListPlanning is the planning status of one task list.
type ListPlanning struct {
	LastPlanningDate   *string `json:"lastPlanningDate"`
	IsPlanningComplete bool    `json:"isPlanningComplete"`
}

// AppState is the per-owner planning record.
type AppState struct {
	CurrentDate string                    `json:"currentDate"`
	Lists       map[TaskList]ListPlanning `json:"lists"`
}

// List returns the planning status for l, zero-valued if never planned.
func (s AppState) List(l TaskList) ListPlanning {
	return s.Lists[l]
}

// FormatDate renders t as YYYY-MM-DD in its own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
