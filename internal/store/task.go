package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/coolive/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// TaskInput carries the editable fields of a task.
type TaskInput struct {
	Title       string
	Description string
	Points      int
	DueDate     *time.Time
	Frequency   model.Frequency
	AssigneeIDs []int64
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var createdBy sql.NullInt64
	var dueDate sql.NullString
	var freq string

	err := scanner.Scan(
		&t.ID, &t.GroupID, &createdBy, &t.Title, &t.Description,
		&t.Points, &dueDate, &freq, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if createdBy.Valid {
		t.CreatedBy = &createdBy.Int64
	}
	if dueDate.Valid && dueDate.String != "" {
		d, err := time.Parse(model.DateLayout, dueDate.String)
		if err != nil {
			return nil, fmt.Errorf("parse due date %q: %w", dueDate.String, err)
		}
		t.DueDate = &d
	}
	t.Frequency = model.Frequency(freq)
	return &t, nil
}

const taskCols = `id, group_id, created_by, title, description, points, due_date, frequency, created_at`

func dueDateArg(d *time.Time) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Format(model.DateLayout), Valid: true}
}

// Create inserts the task and its assignments in one transaction so a failed
// assignment never leaves an orphaned task behind.
func (s *TaskStore) Create(ctx context.Context, groupID, createdBy int64, in TaskInput) (*model.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO tasks (group_id, created_by, title, description, points, due_date, frequency) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		groupID, createdBy, in.Title, in.Description, in.Points, dueDateArg(in.DueDate), string(in.Frequency),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := insertAssignments(ctx, tx, id, in.AssigneeIDs); err != nil {
		return nil, err
	}

	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

func insertAssignments(ctx context.Context, tx *sql.Tx, taskID int64, userIDs []int64) error {
	for _, uid := range userIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO task_assignments (task_id, user_id) VALUES (?, ?)`,
			taskID, uid,
		); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}
	return nil
}

func (s *TaskStore) GetByID(ctx context.Context, id int64) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListByGroup returns the group's tasks in insertion order.
func (s *TaskStore) ListByGroup(ctx context.Context, groupID int64) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE group_id = ? ORDER BY id ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Update rewrites the task fields and replaces its assignee set.
func (s *TaskStore) Update(ctx context.Context, id int64, in TaskInput) (*model.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, points = ?, due_date = ?, frequency = ? WHERE id = ?`,
		in.Title, in.Description, in.Points, dueDateArg(in.DueDate), string(in.Frequency), id,
	); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_assignments WHERE task_id = ?`, id); err != nil {
		return nil, fmt.Errorf("clear assignments: %w", err)
	}
	if err := insertAssignments(ctx, tx, id, in.AssigneeIDs); err != nil {
		return nil, err
	}

	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

// Delete removes the task; assignments and completions cascade. Points
// already awarded stay on the profiles.
func (s *TaskStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// inClause returns "?, ?, ?" and the matching args. Callers must not pass an
// empty slice.
func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}

// ListAssignments returns assignments for the given tasks, joined with the
// assignee's profile. An empty id list returns nil without querying.
func (s *TaskStore) ListAssignments(ctx context.Context, taskIDs []int64) ([]model.TaskAssignment, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(taskIDs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT ta.task_id, ta.user_id, p.full_name, p.avatar_url, ta.assigned_at
		 FROM task_assignments ta
		 JOIN profiles p ON p.id = ta.user_id
		 WHERE ta.task_id IN (`+placeholders+`)
		 ORDER BY ta.task_id ASC, ta.assigned_at ASC, ta.user_id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []model.TaskAssignment
	for rows.Next() {
		var a model.TaskAssignment
		if err := rows.Scan(&a.TaskID, &a.UserID, &a.FullName, &a.AvatarURL, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanCompletion(scanner interface{ Scan(...any) error }) (*model.Completion, error) {
	var c model.Completion
	err := scanner.Scan(&c.ID, &c.TaskID, &c.UserID, &c.Points, &c.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const completionCols = `id, task_id, user_id, points, completed_at`

// ListCompletions returns completions for the given tasks. An empty id list
// returns nil without querying.
func (s *TaskStore) ListCompletions(ctx context.Context, taskIDs []int64) ([]model.Completion, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(taskIDs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+completionCols+` FROM completions WHERE task_id IN (`+placeholders+`) ORDER BY completed_at ASC, id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var out []model.Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *TaskStore) GetCompletion(ctx context.Context, taskID, userID int64) (*model.Completion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+completionCols+` FROM completions WHERE task_id = ? AND user_id = ?`,
		taskID, userID,
	)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	return c, nil
}

// ToggleResult reports the state after a toggle.
type ToggleResult struct {
	Completed bool `json:"completed"`
	Points    int  `json:"points"`
}

// ToggleCompletion flips the (task, user) completion in a single transaction.
// Completing credits the task's current points and records them on the
// completion row; un-completing debits exactly what that row recorded,
// flooring the balance at zero.
func (s *TaskStore) ToggleCompletion(ctx context.Context, taskID, userID int64, at time.Time) (*ToggleResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	out := &ToggleResult{}
	var credited int
	err = tx.QueryRowContext(ctx,
		`DELETE FROM completions WHERE task_id = ? AND user_id = ? RETURNING points`,
		taskID, userID,
	).Scan(&credited)
	var delta int
	switch {
	case err == nil:
		delta = -credited
	case errors.Is(err, sql.ErrNoRows):
		var points int
		if err := tx.QueryRowContext(ctx, `SELECT points FROM tasks WHERE id = ?`, taskID).Scan(&points); err != nil {
			return nil, fmt.Errorf("read task points: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO completions (task_id, user_id, points, completed_at) VALUES (?, ?, ?, ?)`,
			taskID, userID, points, at.UTC(),
		); err != nil {
			return nil, fmt.Errorf("insert completion: %w", err)
		}
		out.Completed = true
		delta = points
	default:
		return nil, fmt.Errorf("delete completion: %w", err)
	}

	if out.Points, err = adjustPoints(ctx, tx, userID, delta); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// Standings returns every member of the group with points and completion
// count, in membership order. Ranking is applied by the caller.
func (s *TaskStore) Standings(ctx context.Context, groupID int64) ([]model.Standing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.full_name, p.avatar_url, p.points,
		        (SELECT COUNT(*) FROM completions c
		         JOIN tasks t ON t.id = c.task_id
		         WHERE c.user_id = p.id AND t.group_id = gm.group_id)
		 FROM group_members gm
		 JOIN profiles p ON p.id = gm.user_id
		 WHERE gm.group_id = ?
		 ORDER BY gm.joined_at ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list standings: %w", err)
	}
	defer rows.Close()

	var out []model.Standing
	for rows.Next() {
		var st model.Standing
		if err := rows.Scan(&st.UserID, &st.FullName, &st.AvatarURL, &st.Points, &st.TasksCompleted); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// AwardPoints grants a bonus and records who granted it, in one transaction.
func (s *TaskStore) AwardPoints(ctx context.Context, groupID, userID, grantedBy int64, points int, reason string) (*model.PointAward, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO point_awards (group_id, user_id, granted_by, points, reason) VALUES (?, ?, ?, ?, ?)`,
		groupID, userID, grantedBy, points, reason,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("insert award: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, 0, fmt.Errorf("last insert id: %w", err)
	}

	balance, err := adjustPoints(ctx, tx, userID, points)
	if err != nil {
		return nil, 0, err
	}

	var a model.PointAward
	var by sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT id, group_id, user_id, granted_by, points, reason, created_at FROM point_awards WHERE id = ?`, id,
	).Scan(&a.ID, &a.GroupID, &a.UserID, &by, &a.Points, &a.Reason, &a.CreatedAt)
	if err != nil {
		return nil, 0, fmt.Errorf("get award: %w", err)
	}
	if by.Valid {
		a.GrantedBy = &by.Int64
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit: %w", err)
	}
	return &a, balance, nil
}

func (s *TaskStore) ListAwards(ctx context.Context, groupID int64) ([]model.PointAward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, user_id, granted_by, points, reason, created_at
		 FROM point_awards WHERE group_id = ? ORDER BY created_at DESC, id DESC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list awards: %w", err)
	}
	defer rows.Close()

	var out []model.PointAward
	for rows.Next() {
		var a model.PointAward
		var by sql.NullInt64
		if err := rows.Scan(&a.ID, &a.GroupID, &a.UserID, &by, &a.Points, &a.Reason, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan award: %w", err)
		}
		if by.Valid {
			a.GrantedBy = &by.Int64
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
