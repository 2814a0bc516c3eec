package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"offload/internal/config"
	"offload/internal/db"
	"offload/internal/domain"
	"offload/internal/engine"
	"offload/internal/migrate"
	"offload/internal/openai"
	"offload/internal/proposal"
)

type stubService struct {
	result openai.Result
	err    error
}

func (s *stubService) GenerateStructured(context.Context, string, string, string, json.RawMessage) (openai.Result, error) {
	return s.result, s.err
}

type testEnv struct {
	Engine engine.Engine
	Stub   *stubService
	Ctx    context.Context
}

// newTestEnv builds an engine over a temp database with a stub
// generation service and a clock that advances one second per call,
// so created_at ordering is deterministic.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	stub := &stubService{}
	eng := engine.New(conn, config.Default(), proposal.Generator{Service: stub, Model: "stub-model"})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	eng.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return testEnv{Engine: eng, Stub: stub, Ctx: context.Background()}
}

func validSubmission() engine.SubmitOptions {
	return engine.SubmitOptions{
		Task:      "file taxes",
		Name:      "A B",
		FirstName: "A",
		LastName:  "B",
		Email:     "a@b.com",
		Phone:     "5551234567",
		Worth:     "100",
	}
}

// conformantOutput is a stub response whose price sits inside
// [worth, total/3] for worth=100 (deliverables stack to 900).
func conformantOutput(t *testing.T, price float64) openai.Result {
	t.Helper()
	env := proposal.Envelope{
		Proposal: proposal.Output{
			Title:                      "Taxes filed by tonight",
			WhyItHelps:                 "Removes the deadline anxiety entirely.",
			StepsAgentWillDoToday:      []string{"gather documents", "draft the return", "book a review call"},
			DeliverablesToUser:         []proposal.Deliverable{{Description: "filed return", ValueUSD: 900}},
			TotalValueUSD:              900,
			SuggestedPriceUSD:          price,
			SuccessCriteria:            []string{"return submitted", "confirmation received"},
			DependenciesOrAccessNeeded: []string{},
			RiskMitigation:             []string{},
			EstTimeHoursToday:          4,
			Guarantee:                  "Refund if not filed in 24h.",
		},
		QuickNoteForAgent: "Check state filing rules first.",
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return openai.Result{
		Model: "stub-model",
		Parts: []openai.ContentPart{{Type: "output_text", Text: string(data)}},
	}
}

func TestSubmitPersistsNewTask(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.Submit(env.Ctx, validSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if task.Status != domain.StatusNew {
		t.Fatalf("status = %q, want %q", task.Status, domain.StatusNew)
	}
	if task.Worth != 100 {
		t.Fatalf("worth = %v, want 100", task.Worth)
	}
	stored, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Email != "a@b.com" || stored.Task != "file taxes" {
		t.Fatalf("stored row mismatch: %+v", stored)
	}
}

func TestSubmitMissingEmailWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	opts := validSubmission()
	opts.Email = "  "
	_, err := env.Engine.Submit(env.Ctx, opts)
	if err == nil || !strings.Contains(err.Error(), "email is required") {
		t.Fatalf("expected email validation error, got %v", err)
	}
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no rows, got %d", len(tasks))
	}
}

func TestSubmitRejectsBadWorth(t *testing.T) {
	env := newTestEnv(t)
	for _, worth := range []string{"abc", "-5", "NaN"} {
		opts := validSubmission()
		opts.Worth = worth
		if _, err := env.Engine.Submit(env.Ctx, opts); err == nil {
			t.Fatalf("worth %q accepted", worth)
		}
	}
}

func TestSubmitRejectsOverlongTask(t *testing.T) {
	env := newTestEnv(t)
	opts := validSubmission()
	opts.Task = strings.Repeat("x", 2001)
	if _, err := env.Engine.Submit(env.Ctx, opts); err == nil {
		t.Fatal("overlong task accepted")
	}
}

func TestGenerateProposalAdvancesStatus(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.Submit(env.Ctx, validSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	env.Stub.result = conformantOutput(t, 150)

	idea, out, err := env.Engine.GenerateProposal(env.Ctx, task.ID, task.Task, task.Worth)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out.Proposal.SuggestedPriceUSD < task.Worth || out.Proposal.SuggestedPriceUSD > out.Proposal.TotalValueUSD/3 {
		t.Fatalf("price %v outside bounds", out.Proposal.SuggestedPriceUSD)
	}
	if idea.Model != "stub-model" {
		t.Fatalf("model = %q", idea.Model)
	}

	stored, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Status != domain.StatusPlanned {
		t.Fatalf("status = %q, want %q", stored.Status, domain.StatusPlanned)
	}
	ideas, err := env.Engine.Repo.ListIdeasForTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("list ideas: %v", err)
	}
	if len(ideas) != 1 {
		t.Fatalf("idea rows = %d, want 1", len(ideas))
	}
	if ideas[0].QuickNoteForAgent == "" {
		t.Fatal("quick note column not extracted")
	}
	if ideas[0].SolutionCount == nil || *ideas[0].SolutionCount != 1 {
		t.Fatalf("solution count = %v, want 1", ideas[0].SolutionCount)
	}
}

func TestGenerateProposalProseLeavesTaskUntouched(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.Submit(env.Ctx, validSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	env.Stub.result = openai.Result{Parts: []openai.ContentPart{{Type: "output_text", Text: "Sorry, I can't do that today."}}}

	_, _, err = env.Engine.GenerateProposal(env.Ctx, task.ID, task.Task, task.Worth)
	if !errors.Is(err, proposal.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
	stored, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Status != domain.StatusNew {
		t.Fatalf("status = %q, want %q", stored.Status, domain.StatusNew)
	}
	ideas, err := env.Engine.Repo.ListIdeasForTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("list ideas: %v", err)
	}
	if len(ideas) != 0 {
		t.Fatalf("idea rows = %d, want 0", len(ideas))
	}
	rejections, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "proposal.rejected", "task", task.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(rejections) != 1 {
		t.Fatalf("rejection events = %d, want 1", len(rejections))
	}
}

func TestRegenerationAppendsNewRow(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.Submit(env.Ctx, validSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	env.Stub.result = conformantOutput(t, 120)
	first, _, err := env.Engine.GenerateProposal(env.Ctx, task.ID, task.Task, task.Worth)
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	env.Stub.result = conformantOutput(t, 200)
	second, _, err := env.Engine.GenerateProposal(env.Ctx, task.ID, task.Task, task.Worth)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}

	ideas, err := env.Engine.Repo.ListIdeasForTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("list ideas: %v", err)
	}
	if len(ideas) != 2 {
		t.Fatalf("idea rows = %d, want 2", len(ideas))
	}
	// Newest first, prior row untouched.
	if ideas[0].ID != second.ID || ideas[1].ID != first.ID {
		t.Fatalf("ordering wrong: got %s, %s", ideas[0].ID, ideas[1].ID)
	}
	if ideas[1].OutputJSON != first.OutputJSON {
		t.Fatal("prior idea row mutated")
	}
}

func TestMergeLatestFirstWins(t *testing.T) {
	tasks := []domain.Task{{ID: "t1"}, {ID: "t2"}}
	ideas := []domain.Idea{
		{ID: "i2", TaskID: "t1", CreatedAt: "2024-01-01T00:00:02Z", OutputJSON: "{}"},
		{ID: "i1", TaskID: "t1", CreatedAt: "2024-01-01T00:00:01Z", OutputJSON: "{}"},
	}
	rows := engine.MergeLatest(tasks, ideas)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Idea == nil || rows[0].Idea.ID != "i2" {
		t.Fatalf("t1 merged with %+v, want i2", rows[0].Idea)
	}
	if rows[1].Idea != nil {
		t.Fatalf("t2 should have nil idea, got %+v", rows[1].Idea)
	}
}

func TestMergeLatestHandlesUnsortedInput(t *testing.T) {
	tasks := []domain.Task{{ID: "t1"}}
	// Oldest first: the merge must still pick the newest.
	ideas := []domain.Idea{
		{ID: "old", TaskID: "t1", CreatedAt: "2024-01-01T00:00:01Z", OutputJSON: "{}"},
		{ID: "new", TaskID: "t1", CreatedAt: "2024-01-01T00:00:02Z", OutputJSON: "{}"},
	}
	rows := engine.MergeLatest(tasks, ideas)
	if rows[0].Idea == nil || rows[0].Idea.ID != "new" {
		t.Fatalf("merged with %+v, want new", rows[0].Idea)
	}
}

func TestMergeLatestIdempotent(t *testing.T) {
	tasks := []domain.Task{{ID: "t1"}, {ID: "t2"}}
	ideas := []domain.Idea{
		{ID: "i3", TaskID: "t2", CreatedAt: "2024-01-01T00:00:03Z", OutputJSON: "{}"},
		{ID: "i2", TaskID: "t1", CreatedAt: "2024-01-01T00:00:02Z", OutputJSON: "{}"},
		{ID: "i1", TaskID: "t1", CreatedAt: "2024-01-01T00:00:01Z", OutputJSON: "{}"},
	}
	first := engine.MergeLatest(tasks, ideas)
	second := engine.MergeLatest(tasks, ideas)
	for i := range first {
		var a, b string
		if first[i].Idea != nil {
			a = first[i].Idea.ID
		}
		if second[i].Idea != nil {
			b = second[i].Idea.ID
		}
		if a != b {
			t.Fatalf("row %d changed between runs: %q vs %q", i, a, b)
		}
	}
}

func TestAdminFeedFilter(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Submit(env.Ctx, validSubmission()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	other := validSubmission()
	other.Task = "renew passport"
	other.Email = "c@d.com"
	other.Name = "C D"
	if _, err := env.Engine.Submit(env.Ctx, other); err != nil {
		t.Fatalf("submit: %v", err)
	}

	rows, err := env.Engine.AdminFeed(env.Ctx, "passport")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(rows) != 1 || rows[0].Task.Task != "renew passport" {
		t.Fatalf("filter returned %d rows", len(rows))
	}
	all, err := env.Engine.AdminFeed(env.Ctx, "")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("unfiltered rows = %d, want 2", len(all))
	}
	// Newest submission first.
	if all[0].Task.Task != "renew passport" {
		t.Fatalf("ordering wrong: %q first", all[0].Task.Task)
	}
}

func TestSubmitEmitsEvent(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.Submit(env.Ctx, validSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "submission.received", "task", task.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
}
