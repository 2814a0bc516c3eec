package domain

// Task statuses. A task starts as New and becomes Planned once a
// proposal exists for it; no other transitions are defined.
const (
	StatusNew     = "New"
	StatusPlanned = "Planned"
)

type Task struct {
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp" format:"date-time"`
	FirstName string  `json:"firstname"`
	LastName  string  `json:"lastname"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	Task      string  `json:"task"`
	Status    string  `json:"status" enum:"New,Planned"`
	Worth     float64 `json:"worth"`
}

// Idea is one generated proposal row. A task may accumulate several;
// only the most recently created one is considered current.
type Idea struct {
	ID                string `json:"id"`
	TaskID            string `json:"task_id"`
	CreatedAt         string `json:"created_at" format:"date-time"`
	Model             string `json:"model"`
	OutputJSON        string `json:"output_json"`
	QuickNoteForAgent string `json:"quick_note_for_agent,omitempty"`
	SolutionCount     *int   `json:"solution_count,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
