package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"offload/internal/config"
	"offload/internal/domain"
	"offload/internal/events"
	"offload/internal/proposal"
	"offload/internal/repo"
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Generator proposal.Generator
	Config    *config.Config
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config, gen proposal.Generator) Engine {
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Generator: gen,
		Config:    cfg,
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// PersistenceError marks a storage write failure, distinct from
// generation failures.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence failure during " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SubmitOptions are the intake fields. Worth arrives as the numeric
// string the form posts.
type SubmitOptions struct {
	ID        string
	Task      string
	Name      string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Worth     string
}

// Submit validates the intake fields and persists a task with status
// New. Proposal generation is the caller's concern and its outcome
// never affects the submission.
func (e Engine) Submit(ctx context.Context, opts SubmitOptions) (domain.Task, error) {
	opts.Task = strings.TrimSpace(opts.Task)
	opts.Name = strings.TrimSpace(opts.Name)
	opts.FirstName = strings.TrimSpace(opts.FirstName)
	opts.LastName = strings.TrimSpace(opts.LastName)
	opts.Email = strings.TrimSpace(opts.Email)
	opts.Phone = strings.TrimSpace(opts.Phone)
	opts.Worth = strings.TrimSpace(opts.Worth)

	for _, field := range []struct{ name, value string }{
		{"task", opts.Task},
		{"name", opts.Name},
		{"firstname", opts.FirstName},
		{"lastname", opts.LastName},
		{"email", opts.Email},
		{"phone", opts.Phone},
		{"worth", opts.Worth},
	} {
		if field.value == "" {
			return domain.Task{}, fmt.Errorf("%s is required", field.name)
		}
	}
	if max := e.maxTaskChars(); len(opts.Task) > max {
		return domain.Task{}, fmt.Errorf("invalid task: longer than %d characters", max)
	}
	worth, err := strconv.ParseFloat(opts.Worth, 64)
	if err != nil || math.IsNaN(worth) || math.IsInf(worth, 0) || worth < 0 {
		return domain.Task{}, errors.New("invalid worth: must be a number >= 0")
	}

	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.Email+"|"+opts.Task+"|"+now)).String()
	}
	t := domain.Task{
		ID:        id,
		Timestamp: now,
		FirstName: opts.FirstName,
		LastName:  opts.LastName,
		Name:      opts.Name,
		Email:     opts.Email,
		Phone:     opts.Phone,
		Task:      opts.Task,
		Status:    domain.StatusNew,
		Worth:     worth,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, &PersistenceError{Op: "submit", Err: err}
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, &PersistenceError{Op: "insert task", Err: err}
	}
	if err := e.Events.Append(ctx, tx, "submission.received", "task", t.ID, "public", events.EventPayload{"worth": worth}); err != nil {
		return domain.Task{}, &PersistenceError{Op: "append event", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, &PersistenceError{Op: "submit", Err: err}
	}
	return t, nil
}

func (e Engine) maxTaskChars() int {
	if e.Config != nil && e.Config.Intake.MaxTaskChars > 0 {
		return e.Config.Intake.MaxTaskChars
	}
	return 2000
}

// GenerateProposal runs one generation call for a stored task and
// persists the accepted envelope as a new idea row, then advances the
// task status to Planned. The two writes are deliberately separate: a
// status-update failure surfaces to the caller but the idea row stays.
func (e Engine) GenerateProposal(ctx context.Context, taskID, task string, worth float64) (domain.Idea, proposal.Envelope, error) {
	var idea domain.Idea
	var env proposal.Envelope
	if strings.TrimSpace(taskID) == "" {
		return idea, env, fmt.Errorf("%w: task id is required", proposal.ErrPrecondition)
	}

	env, model, err := e.Generator.Generate(ctx, task, worth)
	if err != nil {
		e.recordRejection(ctx, taskID, err)
		return idea, env, err
	}

	output, err := proposal.MarshalEnvelope(env)
	if err != nil {
		return idea, env, fmt.Errorf("%w: %v", proposal.ErrContractViolation, err)
	}

	count := len(env.Proposal.DeliverablesToUser)
	idea = domain.Idea{
		ID:                uuid.NewString(),
		TaskID:            taskID,
		CreatedAt:         e.now().UTC().Format(time.RFC3339),
		Model:             model,
		OutputJSON:        output,
		QuickNoteForAgent: env.QuickNoteForAgent,
		SolutionCount:     &count,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return idea, env, &PersistenceError{Op: "generate", Err: err}
	}
	defer tx.Rollback()
	if err := e.Repo.InsertIdea(ctx, tx, idea); err != nil {
		return idea, env, &PersistenceError{Op: "insert idea", Err: err}
	}
	if err := e.Events.Append(ctx, tx, "proposal.generated", "idea", idea.ID, "generator", events.EventPayload{
		"task_id":             taskID,
		"model":               model,
		"suggested_price_usd": env.Proposal.SuggestedPriceUSD,
	}); err != nil {
		return idea, env, &PersistenceError{Op: "append event", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return idea, env, &PersistenceError{Op: "generate", Err: err}
	}

	// Second write, outside the first transaction. Repeated Planned
	// overwrites are no-ops.
	tx2, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return idea, env, &PersistenceError{Op: "update status", Err: err}
	}
	defer tx2.Rollback()
	if err := e.Repo.UpdateTaskStatus(ctx, tx2, taskID, domain.StatusPlanned); err != nil {
		return idea, env, &PersistenceError{Op: "update status", Err: err}
	}
	if err := e.Events.Append(ctx, tx2, "task.status.changed", "task", taskID, "generator", events.EventPayload{"status": domain.StatusPlanned}); err != nil {
		return idea, env, &PersistenceError{Op: "append event", Err: err}
	}
	if err := tx2.Commit(); err != nil {
		return idea, env, &PersistenceError{Op: "update status", Err: err}
	}
	return idea, env, nil
}

// recordRejection writes a proposal.rejected event on its own
// transaction. Failures here never mask the generation error.
func (e Engine) recordRejection(ctx context.Context, taskID string, cause error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "proposal.rejected", "task", taskID, "generator", events.EventPayload{"error": cause.Error()}); err != nil {
		return
	}
	_ = tx.Commit()
}

// FeedRow is one task joined with its current proposal, or nils when
// none exists yet.
type FeedRow struct {
	Task     domain.Task
	Idea     *domain.Idea
	Envelope *proposal.Envelope
}

// AdminFeed returns every task, newest first, each merged with its
// latest idea. The optional query filters over name, email, task text,
// and proposal title.
func (e Engine) AdminFeed(ctx context.Context, query string) ([]FeedRow, error) {
	tasks, err := e.Repo.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	ideas, err := e.Repo.ListIdeas(ctx)
	if err != nil {
		return nil, err
	}
	rows := MergeLatest(tasks, ideas)

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return rows, nil
	}
	filtered := rows[:0]
	for _, row := range rows {
		if feedRowMatches(row, query) {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

func feedRowMatches(row FeedRow, query string) bool {
	fields := []string{row.Task.Name, row.Task.Email, row.Task.Task}
	if row.Envelope != nil {
		fields = append(fields, row.Envelope.Proposal.Title)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

// MergeLatest joins each task with the first idea encountered for it
// in a newest-first scan. The query already orders ideas newest first;
// sorting again here removes the dependence on that contract without
// changing the result.
func MergeLatest(tasks []domain.Task, ideas []domain.Idea) []FeedRow {
	sorted := make([]domain.Idea, len(ideas))
	copy(sorted, ideas)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt > sorted[j].CreatedAt
	})

	latest := make(map[string]*domain.Idea, len(tasks))
	for i := range sorted {
		idea := &sorted[i]
		if _, ok := latest[idea.TaskID]; !ok {
			latest[idea.TaskID] = idea
		}
	}

	rows := make([]FeedRow, 0, len(tasks))
	for _, t := range tasks {
		row := FeedRow{Task: t}
		if idea, ok := latest[t.ID]; ok {
			row.Idea = idea
			var env proposal.Envelope
			if err := json.Unmarshal([]byte(idea.OutputJSON), &env); err == nil {
				row.Envelope = &env
			}
		}
		rows = append(rows, row)
	}
	return rows
}
