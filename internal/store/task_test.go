package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/coolive/internal/model"
)

type taskFixture struct {
	ts    *TaskStore
	alice *model.User
	bob   *model.User
	group *model.Group
}

func setupTaskFixture(t *testing.T) taskFixture {
	t.Helper()
	db := setupTestDB(t)
	alice := createUser(t, db, "alice@example.com", "Alice")
	bob := createUser(t, db, "bob@example.com", "Bob")
	g := createGroup(t, db, "Pis", alice.ID)
	if err := NewGroupStore(db).AddMember(context.Background(), g.ID, bob.ID); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	return taskFixture{ts: NewTaskStore(db), alice: alice, bob: bob, group: g}
}

func (f taskFixture) create(t *testing.T, title string, pts int, due *time.Time, assignees ...int64) *model.Task {
	t.Helper()
	task, err := f.ts.Create(context.Background(), f.group.ID, f.alice.ID, TaskInput{
		Title:       title,
		Points:      pts,
		DueDate:     due,
		Frequency:   model.FrequencyOnce,
		AssigneeIDs: assignees,
	})
	if err != nil {
		t.Fatalf("create task %q: %v", title, err)
	}
	return task
}

func TestTaskCreateAndGet(t *testing.T) {
	f := setupTaskFixture(t)
	ctx := context.Background()
	due := time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC)

	created := f.create(t, "Fregar plats", 10, &due, f.alice.ID, f.bob.ID)

	got, err := f.ts.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Title != "Fregar plats" || got.Points != 10 {
		t.Errorf("task = %+v", got)
	}
	if got.DueDate == nil || got.DueDate.Format(model.DateLayout) != "2025-10-13" {
		t.Errorf("due_date = %v, want 2025-10-13", got.DueDate)
	}
	if got.Frequency != model.FrequencyOnce {
		t.Errorf("frequency = %q, want once", got.Frequency)
	}

	assignments, err := f.ts.ListAssignments(ctx, []int64{created.ID})
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(assignments) != 2 {
		t.Fatalf("assignments = %d, want 2", len(assignments))
	}
	if assignments[0].FullName != "Alice" || assignments[1].FullName != "Bob" {
		t.Errorf("assignees = %q, %q", assignments[0].FullName, assignments[1].FullName)
	}
}

func TestTaskCreateWithoutDueDate(t *testing.T) {
	f := setupTaskFixture(t)
	created := f.create(t, "Escombrar", 5, nil, f.alice.ID)

	got, err := f.ts.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.DueDate != nil {
		t.Errorf("due_date = %v, want nil", got.DueDate)
	}
}

func TestTaskCreateRollsBackOnBadAssignee(t *testing.T) {
	f := setupTaskFixture(t)
	ctx := context.Background()

	_, err := f.ts.Create(ctx, f.group.ID, f.alice.ID, TaskInput{
		Title:       "Orphan",
		Points:      1,
		Frequency:   model.FrequencyOnce,
		AssigneeIDs: []int64{f.alice.ID, 9999},
	})
	if err == nil {
		t.Fatal("expected error for unknown assignee")
	}

	tasks, err := f.ts.ListByGroup(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("tasks = %d, want 0 after rollback", len(tasks))
	}
}

func TestTaskListByGroupOrder(t *testing.T) {
	f := setupTaskFixture(t)
	first := f.create(t, "A", 1, nil, f.alice.ID)
	second := f.create(t, "B", 1, nil, f.alice.ID)

	tasks, err := f.ts.ListByGroup(context.Background(), f.group.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != first.ID || tasks[1].ID != second.ID {
		t.Errorf("tasks = %+v, want storage order", tasks)
	}
}

func TestTaskUpdateReplacesAssignees(t *testing.T) {
	f := setupTaskFixture(t)
	ctx := context.Background()
	task := f.create(t, "Rentar", 3, nil, f.alice.ID)

	updated, err := f.ts.Update(ctx, task.ID, TaskInput{
		Title:       "Rentar roba",
		Points:      4,
		Frequency:   model.FrequencyWeekly,
		AssigneeIDs: []int64{f.bob.ID},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Rentar roba" || updated.Points != 4 || updated.Frequency != model.FrequencyWeekly {
		t.Errorf("updated = %+v", updated)
	}

	assignments, _ := f.ts.ListAssignments(ctx, []int64{task.ID})
	if len(assignments) != 1 || assignments[0].UserID != f.bob.ID {
		t.Errorf("assignments = %+v, want only bob", assignments)
	}
}

func TestTaskDeleteCascades(t *testing.T) {
	f := setupTaskFixture(t)
	ctx := context.Background()
	task := f.create(t, "Netejar", 10, nil, f.alice.ID)

	if _, err := f.ts.ToggleCompletion(ctx, task.ID, f.alice.ID, time.Now()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := f.ts.Delete(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got, _ := f.ts.GetByID(ctx, task.ID); got != nil {
		t.Error("task should be gone")
	}
	if c, _ := f.ts.GetCompletion(ctx, task.ID, f.alice.ID); c != nil {
		t.Error("completion should cascade")
	}
	if a, _ := f.ts.ListAssignments(ctx, []int64{task.ID}); len(a) != 0 {
		t.Error("assignments should cascade")
	}
	if got := balanceOf(t, f.ts.db, f.alice.ID); got != 10 {
		t.Errorf("points = %d, want 10 kept after delete", got)
	}
}

func TestListWithEmptyIDs(t *testing.T) {
	f := setupTaskFixture(t)
	ctx := context.Background()

	a, err := f.ts.ListAssignments(ctx, nil)
	if err != nil || a != nil {
		t.Errorf("ListAssignments(nil) = %v, %v; want nil, nil", a, err)
	}
	c, err := f.ts.ListCompletions(ctx, []int64{})
	if err != nil || c != nil {
		t.Errorf("ListCompletions([]) = %v, %v; want nil, nil", c, err)
	}
}

func TestToggleCompletion(t *testing.T) {
	f := setupTaskFixture(t)
	ctx := context.Background()
	task := f.create(t, "Fregar", 10, nil, f.alice.ID)

	res, err := f.ts.ToggleCompletion(ctx, task.ID, f.alice.ID, time.Now())
	if err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if !res.Completed || res.Points != 10 {
		t.Errorf("after first toggle = %+v, want completed with 10 points", res)
	}
	if c, _ := f.ts.GetCompletion(ctx, task.ID, f.alice.ID); c == nil {
		t.Error("expected completion row")
	}

	res, err = f.ts.ToggleCompletion(ctx, task.ID, f.alice.ID, time.Now())
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if res.Completed || res.Points != 0 {
		t.Errorf("after second toggle = %+v, want not completed with 0 points", res)
	}
	if c, _ := f.ts.GetCompletion(ctx, task.ID, f.alice.ID); c != nil {
		t.Error("expected completion removed")
	}
}

func TestToggleOffDebitsCreditedPoints(t *testing.T) {
	f := setupTaskFixture(t)
	ctx := context.Background()
	task := f.create(t, "Fregar", 10, nil, f.alice.ID)

	for range 3 {
		if _, err := f.ts.Update(ctx, task.ID, TaskInput{Title: "Fregar", Points: 100, Frequency: model.FrequencyOnce, AssigneeIDs: []int64{f.alice.ID}}); err != nil {
			t.Fatalf("raise points: %v", err)
		}
		res, err := f.ts.ToggleCompletion(ctx, task.ID, f.alice.ID, time.Now())
		if err != nil || !res.Completed || res.Points != 100 {
			t.Fatalf("toggle on = %+v, %v; want completed with 100", res, err)
		}
		c, _ := f.ts.GetCompletion(ctx, task.ID, f.alice.ID)
		if c == nil || c.Points != 100 {
			t.Fatalf("completion = %+v, want 100 points recorded", c)
		}

		if _, err := f.ts.Update(ctx, task.ID, TaskInput{Title: "Fregar", Points: 1, Frequency: model.FrequencyOnce, AssigneeIDs: []int64{f.alice.ID}}); err != nil {
			t.Fatalf("lower points: %v", err)
		}
		res, err = f.ts.ToggleCompletion(ctx, task.ID, f.alice.ID, time.Now())
		if err != nil || res.Completed {
			t.Fatalf("toggle off = %+v, %v", res, err)
		}
		if res.Points != 0 {
			t.Fatalf("points after toggle off = %d, want 0", res.Points)
		}
	}
}

func TestToggleOffFloorsAtZero(t *testing.T) {
	f := setupTaskFixture(t)
	ctx := context.Background()
	task := f.create(t, "Fregar", 10, nil, f.alice.ID)

	if _, err := f.ts.ToggleCompletion(ctx, task.ID, f.alice.ID, time.Now()); err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	// Balance drops below the task's value outside of the toggle.
	if _, err := f.ts.db.Exec(`UPDATE profiles SET points = 3 WHERE id = ?`, f.alice.ID); err != nil {
		t.Fatalf("set points: %v", err)
	}

	res, err := f.ts.ToggleCompletion(ctx, task.ID, f.alice.ID, time.Now())
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if res.Points != 0 {
		t.Errorf("points = %d, want 0", res.Points)
	}
}

func TestStandings(t *testing.T) {
	f := setupTaskFixture(t)
	ctx := context.Background()
	t1 := f.create(t, "A", 10, nil, f.alice.ID, f.bob.ID)
	t2 := f.create(t, "B", 5, nil, f.bob.ID)

	f.ts.ToggleCompletion(ctx, t1.ID, f.alice.ID, time.Now())
	f.ts.ToggleCompletion(ctx, t1.ID, f.bob.ID, time.Now())
	f.ts.ToggleCompletion(ctx, t2.ID, f.bob.ID, time.Now())

	standings, err := f.ts.Standings(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(standings) != 2 {
		t.Fatalf("standings = %d, want 2", len(standings))
	}
	byUser := map[int64]model.Standing{}
	for _, s := range standings {
		byUser[s.UserID] = s
	}
	if s := byUser[f.alice.ID]; s.Points != 10 || s.TasksCompleted != 1 || s.FullName != "Alice" {
		t.Errorf("alice = %+v", s)
	}
	if s := byUser[f.bob.ID]; s.Points != 15 || s.TasksCompleted != 2 {
		t.Errorf("bob = %+v", s)
	}
}

func TestAwardPoints(t *testing.T) {
	f := setupTaskFixture(t)
	ctx := context.Background()

	award, balance, err := f.ts.AwardPoints(ctx, f.group.ID, f.bob.ID, f.alice.ID, 7, "Ha cuinat per tothom")
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if balance != 7 {
		t.Errorf("balance = %d, want 7", balance)
	}
	if award.GrantedBy == nil || *award.GrantedBy != f.alice.ID {
		t.Errorf("granted_by = %v, want %d", award.GrantedBy, f.alice.ID)
	}
	if award.Reason != "Ha cuinat per tothom" || award.Points != 7 {
		t.Errorf("award = %+v", award)
	}

	awards, err := f.ts.ListAwards(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("list awards: %v", err)
	}
	if len(awards) != 1 || awards[0].ID != award.ID {
		t.Errorf("awards = %+v", awards)
	}
}

func TestAwardPointsRejectsNonPositive(t *testing.T) {
	f := setupTaskFixture(t)
	if _, _, err := f.ts.AwardPoints(context.Background(), f.group.ID, f.bob.ID, f.alice.ID, 0, ""); err == nil {
		t.Error("expected CHECK constraint failure for zero points")
	}
	if got := balanceOf(t, f.ts.db, f.bob.ID); got != 0 {
		t.Errorf("points = %d, want 0", got)
	}
}
