package chore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/coolive/internal/model"
	"github.com/dukerupert/coolive/internal/store"
)

const maxTitleLen = 200

// Service holds the task, completion and points rules for a group.
type Service struct {
	tasks    *store.TaskStore
	groups   *store.GroupStore
	sessions *store.SessionStore
	logger   *slog.Logger

	now     func() time.Time
	backoff func() retry.Backoff
	toggles singleflight.Group
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(ts *store.TaskStore, gs *store.GroupStore, ss *store.SessionStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		tasks:    ts,
		groups:   gs,
		sessions: ss,
		logger:   logger,
		now:      time.Now,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(5, retry.NewExponential(20*time.Millisecond))
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// LoadTasks returns the group's tasks annotated for viewerID. Assignments and
// completions are fetched concurrently; a group with no tasks issues no
// follow-up queries.
func (s *Service) LoadTasks(ctx context.Context, groupID, viewerID int64) ([]model.TaskView, error) {
	tasks, err := s.tasks.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return []model.TaskView{}, nil
	}

	ids := make([]int64, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}

	var assignments []model.TaskAssignment
	var completions []model.Completion
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assignments, err = s.tasks.ListAssignments(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		completions, err = s.tasks.ListCompletions(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Merge(tasks, assignments, completions, viewerID), nil
}

// GetTask loads one task of the group annotated for viewerID.
func (s *Service) GetTask(ctx context.Context, groupID, taskID, viewerID int64) (*model.TaskView, error) {
	t, err := s.taskInGroup(ctx, groupID, taskID)
	if err != nil {
		return nil, err
	}
	ids := []int64{t.ID}
	assignments, err := s.tasks.ListAssignments(ctx, ids)
	if err != nil {
		return nil, err
	}
	completions, err := s.tasks.ListCompletions(ctx, ids)
	if err != nil {
		return nil, err
	}
	v := Merge([]model.Task{*t}, assignments, completions, viewerID)[0]
	return &v, nil
}

func (s *Service) taskInGroup(ctx context.Context, groupID, taskID int64) (*model.Task, error) {
	t, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil || t.GroupID != groupID {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

// TaskInput is the user-supplied part of a task.
type TaskInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Points      int             `json:"points"`
	DueDate     string          `json:"due_date"`
	Frequency   model.Frequency `json:"frequency"`
	AssignedTo  []int64         `json:"assigned_to"`
}

func (s *Service) validate(ctx context.Context, groupID int64, in TaskInput) (store.TaskInput, error) {
	out := store.TaskInput{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Points:      in.Points,
		Frequency:   in.Frequency,
	}
	if out.Title == "" {
		return out, invalid("title is required")
	}
	if len(out.Title) > maxTitleLen {
		return out, invalid(fmt.Sprintf("title must be at most %d characters", maxTitleLen))
	}
	if out.Points <= 0 {
		return out, invalid("points must be greater than zero")
	}
	if out.Frequency == "" {
		out.Frequency = model.FrequencyOnce
	}
	if !out.Frequency.Valid() {
		return out, invalid("frequency must be one of once, daily, weekly, monthly")
	}
	if d := strings.TrimSpace(in.DueDate); d != "" {
		due, err := time.Parse(model.DateLayout, d)
		if err != nil {
			return out, invalid("due_date must be YYYY-MM-DD")
		}
		out.DueDate = &due
	}

	if len(in.AssignedTo) == 0 {
		return out, invalid("at least one assignee is required")
	}
	ids := slices.Clone(in.AssignedTo)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	for _, uid := range ids {
		ok, err := s.groups.IsMember(ctx, groupID, uid)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, invalid(fmt.Sprintf("user %d is not a member of this group", uid))
		}
	}
	out.AssigneeIDs = ids
	return out, nil
}

func (s *Service) CreateTask(ctx context.Context, groupID, creatorID int64, in TaskInput) (*model.TaskView, error) {
	ti, err := s.validate(ctx, groupID, in)
	if err != nil {
		return nil, err
	}
	t, err := s.tasks.Create(ctx, groupID, creatorID, ti)
	if err != nil {
		return nil, err
	}
	s.logger.Info("task created", "task_id", t.ID, "group_id", groupID, "created_by", creatorID, "assignees", ti.AssigneeIDs)
	return s.GetTask(ctx, groupID, t.ID, creatorID)
}

func (s *Service) UpdateTask(ctx context.Context, groupID, taskID, editorID int64, in TaskInput) (*model.TaskView, error) {
	if _, err := s.taskInGroup(ctx, groupID, taskID); err != nil {
		return nil, err
	}
	ti, err := s.validate(ctx, groupID, in)
	if err != nil {
		return nil, err
	}
	if _, err := s.tasks.Update(ctx, taskID, ti); err != nil {
		return nil, err
	}
	return s.GetTask(ctx, groupID, taskID, editorID)
}

func (s *Service) DeleteTask(ctx context.Context, groupID, taskID int64) error {
	if _, err := s.taskInGroup(ctx, groupID, taskID); err != nil {
		return err
	}
	return s.tasks.Delete(ctx, taskID)
}

// ToggleCompletion flips userID's completion of the task and moves the
// task's points with it. Only assignees may toggle; anyone else gets
// ErrNotAssignee and nothing is written. Concurrent toggles of the same
// (task, user) pair share one execution, which outlives any single caller's
// cancellation.
func (s *Service) ToggleCompletion(ctx context.Context, groupID, taskID, userID int64) (*store.ToggleResult, error) {
	key := fmt.Sprintf("%d:%d", taskID, userID)
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.toggles.Do(key, func() (any, error) {
		return s.toggle(shared, groupID, taskID, userID)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*store.ToggleResult)
	return &res, nil
}

func (s *Service) toggle(ctx context.Context, groupID, taskID, userID int64) (*store.ToggleResult, error) {
	view, err := s.GetTask(ctx, groupID, taskID, userID)
	if err != nil {
		return nil, err
	}
	if !view.IsAssigned(userID) {
		return nil, ErrNotAssignee
	}

	var res *store.ToggleResult
	err = s.withBusyRetry(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.tasks.ToggleCompletion(ctx, taskID, userID, s.now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("toggle completion: %w", err)
	}

	s.logger.Info("completion toggled",
		"task_id", taskID, "user_id", userID, "completed", res.Completed, "points", res.Points)
	return res, nil
}

// Ranking returns the group's leaderboard.
func (s *Service) Ranking(ctx context.Context, groupID int64) ([]model.Standing, error) {
	standings, err := s.tasks.Standings(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ranked := Rank(standings)
	if ranked == nil {
		ranked = []model.Standing{}
	}
	return ranked, nil
}

// AwardBonus adds points to a fellow member and records the grant.
func (s *Service) AwardBonus(ctx context.Context, groupID, granterID, targetID int64, points int, reason string) (*model.PointAward, int, error) {
	if points <= 0 {
		return nil, 0, invalid("points must be greater than zero")
	}
	if granterID == targetID {
		return nil, 0, invalid("cannot award points to yourself")
	}
	ok, err := s.groups.IsMember(ctx, groupID, targetID)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, ErrNotMember
	}

	var award *model.PointAward
	var balance int
	err = s.withBusyRetry(ctx, func(ctx context.Context) error {
		var err error
		award, balance, err = s.tasks.AwardPoints(ctx, groupID, targetID, granterID, points, strings.TrimSpace(reason))
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("award bonus: %w", err)
	}

	s.logger.Info("bonus awarded",
		"award_id", award.ID, "group_id", groupID, "granted_by", granterID, "user_id", targetID,
		"points", points, "reason", award.Reason, "at", award.CreatedAt)
	return award, balance, nil
}

// withBusyRetry retries fn while SQLite reports the database as locked.
func (s *Service) withBusyRetry(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if isBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Awards lists the bonus grants of the group, newest first.
func (s *Service) Awards(ctx context.Context, groupID int64) ([]model.PointAward, error) {
	awards, err := s.tasks.ListAwards(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if awards == nil {
		awards = []model.PointAward{}
	}
	return awards, nil
}
