package chore

import (
	"fmt"
	"slices"
	"time"

	"github.com/dukerupert/coolive/internal/model"
)

// weekdayLabels is indexed Monday=0.
var weekdayLabels = [7]string{
	"Dilluns", "Dimarts", "Dimecres", "Dijous", "Divendres", "Dissabte", "Diumenge",
}

type DayBucket struct {
	Label string           `json:"label"`
	Date  string           `json:"date"`
	Title string           `json:"title"`
	Tasks []model.TaskView `json:"tasks"`
}

type WeekView struct {
	Offset int         `json:"offset"`
	Start  string      `json:"start"`
	End    string      `json:"end"`
	Days   []DayBucket `json:"days"`
}

// NonEmpty returns only the days that have tasks.
func (w WeekView) NonEmpty() []DayBucket {
	var out []DayBucket
	for _, d := range w.Days {
		if len(d.Tasks) > 0 {
			out = append(out, d)
		}
	}
	return out
}

// StartOfWeek returns local midnight of the Monday on or before t.
func StartOfWeek(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	back := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -back)
}

func dueKey(v model.TaskView) (string, bool) {
	if v.DueDate == nil || v.DueDate.IsZero() {
		return "", false
	}
	return v.DueDate.Format(model.DateLayout), true
}

// Today returns the tasks due on now's calendar date. Tasks without a due
// date are skipped.
func Today(now time.Time, tasks []model.TaskView) []model.TaskView {
	today := now.Format(model.DateLayout)
	out := []model.TaskView{}
	for _, t := range tasks {
		if key, ok := dueKey(t); ok && key == today {
			out = append(out, t)
		}
	}
	return out
}

// Week buckets tasks by weekday for the week offset weeks away from the one
// containing now. Boundaries always derive from the current Monday, so
// moving back and forth never drifts.
func Week(now time.Time, offset int, tasks []model.TaskView) WeekView {
	monday := StartOfWeek(now).AddDate(0, 0, 7*offset)

	w := WeekView{
		Offset: offset,
		Start:  monday.Format(model.DateLayout),
		End:    monday.AddDate(0, 0, 6).Format(model.DateLayout),
		Days:   make([]DayBucket, 7),
	}
	index := make(map[string]int, 7)
	for i := range w.Days {
		d := monday.AddDate(0, 0, i)
		key := d.Format(model.DateLayout)
		index[key] = i
		w.Days[i] = DayBucket{
			Label: weekdayLabels[i],
			Date:  key,
			Title: fmt.Sprintf("%s %d/%d", weekdayLabels[i], d.Day(), int(d.Month())),
			Tasks: []model.TaskView{},
		}
	}

	for _, t := range tasks {
		key, ok := dueKey(t)
		if !ok {
			continue
		}
		if i, ok := index[key]; ok {
			w.Days[i].Tasks = append(w.Days[i].Tasks, t)
		}
	}
	return w
}

// SortByDueDate orders tasks by due date, earliest first, keeping undated
// tasks last and otherwise preserving storage order.
func SortByDueDate(tasks []model.TaskView) {
	slices.SortStableFunc(tasks, func(a, b model.TaskView) int {
		ka, okA := dueKey(a)
		kb, okB := dueKey(b)
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return 1
		case !okB:
			return -1
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return 0
	})
}
