package chore

import "github.com/dukerupert/coolive/internal/model"

// Merge annotates tasks with their assignees and completions and sets
// Completed for viewerID. Input order is preserved.
func Merge(tasks []model.Task, assignments []model.TaskAssignment, completions []model.Completion, viewerID int64) []model.TaskView {
	byTask := make(map[int64][]model.Assignee, len(tasks))
	for _, a := range assignments {
		byTask[a.TaskID] = append(byTask[a.TaskID], model.Assignee{
			ID:        a.UserID,
			FullName:  a.FullName,
			AvatarURL: a.AvatarURL,
		})
	}
	doneByTask := make(map[int64][]model.Completion, len(tasks))
	for _, c := range completions {
		doneByTask[c.TaskID] = append(doneByTask[c.TaskID], c)
	}

	out := make([]model.TaskView, 0, len(tasks))
	for _, t := range tasks {
		v := model.TaskView{
			Task:        t,
			AssignedTo:  byTask[t.ID],
			Completions: doneByTask[t.ID],
		}
		if v.AssignedTo == nil {
			v.AssignedTo = []model.Assignee{}
		}
		if v.Completions == nil {
			v.Completions = []model.Completion{}
		}
		for _, c := range v.Completions {
			if c.UserID == viewerID {
				v.Completed = true
				break
			}
		}
		out = append(out, v)
	}
	return out
}
