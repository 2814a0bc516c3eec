package repo

import (
	"context"
	"database/sql"
	"errors"

	"offload/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,timestamp,firstname,lastname,name,email,phone,task,status,worth) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Timestamp, t.FirstName, t.LastName, t.Name, t.Email, t.Phone, t.Task, t.Status, t.Worth)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	err := r.DB.QueryRowContext(ctx, `SELECT id,timestamp,firstname,lastname,name,email,phone,task,status,worth FROM tasks WHERE id=?`, id).
		Scan(&t.ID, &t.Timestamp, &t.FirstName, &t.LastName, &t.Name, &t.Email, &t.Phone, &t.Task, &t.Status, &t.Worth)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// ListTasks returns all tasks, newest submission first.
func (r Repo) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,timestamp,firstname,lastname,name,email,phone,task,status,worth FROM tasks ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.Timestamp, &t.FirstName, &t.LastName, &t.Name, &t.Email, &t.Phone, &t.Task, &t.Status, &t.Worth); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// UpdateTaskStatus overwrites the status column. Repeated writes of
// the same status are harmless.
func (r Repo) UpdateTaskStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertIdea(ctx context.Context, tx *sql.Tx, i domain.Idea) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO ideas(id,task_id,created_at,model,output,quick_note_for_agent,solution_count) VALUES (?,?,?,?,?,?,?)`,
		i.ID, i.TaskID, i.CreatedAt, i.Model, i.OutputJSON, nullable(i.QuickNoteForAgent), nullableIntPtr(i.SolutionCount))
	return err
}

func (r Repo) GetIdea(ctx context.Context, id string) (domain.Idea, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,task_id,created_at,model,output,quick_note_for_agent,solution_count FROM ideas WHERE id=?`, id)
	return scanIdeaRow(row.Scan)
}

// ListIdeas returns all ideas ordered newest first. The admin merge
// depends on this ordering.
func (r Repo) ListIdeas(ctx context.Context) ([]domain.Idea, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,created_at,model,output,quick_note_for_agent,solution_count FROM ideas ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Idea
	for rows.Next() {
		i, err := scanIdeaRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, i)
	}
	return res, rows.Err()
}

// ListIdeasForTask returns a single task's ideas, newest first.
func (r Repo) ListIdeasForTask(ctx context.Context, taskID string) ([]domain.Idea, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,created_at,model,output,quick_note_for_agent,solution_count FROM ideas WHERE task_id=? ORDER BY created_at DESC, id DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Idea
	for rows.Next() {
		i, err := scanIdeaRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, i)
	}
	return res, rows.Err()
}

func (r Repo) CountTasksByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// LatestEvents returns up to limit event-log entries, newest first,
// optionally filtered by type and entity.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	query := `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE ` + joinAnd(clauses) + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entID.Valid {
			e.EntityID = entID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func scanIdeaRow(scan func(...any) error) (domain.Idea, error) {
	var i domain.Idea
	var note sql.NullString
	var count sql.NullInt64
	err := scan(&i.ID, &i.TaskID, &i.CreatedAt, &i.Model, &i.OutputJSON, &note, &count)
	if err == sql.ErrNoRows {
		return i, ErrNotFound
	}
	if err != nil {
		return i, err
	}
	if note.Valid {
		i.QuickNoteForAgent = note.String
	}
	if count.Valid {
		c := int(count.Int64)
		i.SolutionCount = &c
	}
	return i, nil
}

func joinAnd(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += " AND " + c
	}
	return out
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
