package server

import (
	"offload/internal/engine"
	"offload/internal/proposal"
)

type SubmitRequest struct {
	Task      string `json:"task" example:"file my taxes"`
	Name      string `json:"name" example:"Ada Lovelace"`
	FirstName string `json:"firstname" example:"Ada"`
	LastName  string `json:"lastname" example:"Lovelace"`
	Email     string `json:"email" example:"ada@example.com"`
	Phone     string `json:"phone" example:"5551234567"`
	Worth     string `json:"worth" example:"100"`
}

type SubmitResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
}

type GenerateRequest struct {
	TaskID string  `json:"task_id"`
	Task   string  `json:"task"`
	Worth  float64 `json:"worth"`
}

type GenerateResponse struct {
	Success    bool              `json:"success"`
	ProposalID string            `json:"proposal_id"`
	Output     proposal.Envelope `json:"output"`
}

// FeedRow carries one task merged with its latest proposal. The
// proposal-side fields are null for tasks nothing has been generated
// for yet.
type FeedRow struct {
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	FirstName string  `json:"firstname"`
	LastName  string  `json:"lastname"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	Task      string  `json:"task"`
	Status    string  `json:"status"`
	Worth     float64 `json:"worth"`

	IdeaID            *string          `json:"idea_id"`
	IdeaCreatedAt     *string          `json:"idea_created_at"`
	Model             *string          `json:"model"`
	QuickNoteForAgent *string          `json:"quick_note_for_agent"`
	Proposal          *proposal.Output `json:"proposal"`
}

type FeedResponse struct {
	Rows []FeedRow `json:"rows"`
}

func feedRow(row engine.FeedRow) FeedRow {
	out := FeedRow{
		ID:        row.Task.ID,
		Timestamp: row.Task.Timestamp,
		FirstName: row.Task.FirstName,
		LastName:  row.Task.LastName,
		Name:      row.Task.Name,
		Email:     row.Task.Email,
		Phone:     row.Task.Phone,
		Task:      row.Task.Task,
		Status:    row.Task.Status,
		Worth:     row.Task.Worth,
	}
	if row.Idea != nil {
		out.IdeaID = &row.Idea.ID
		out.IdeaCreatedAt = &row.Idea.CreatedAt
		out.Model = &row.Idea.Model
		if row.Idea.QuickNoteForAgent != "" {
			out.QuickNoteForAgent = &row.Idea.QuickNoteForAgent
		}
	}
	if row.Envelope != nil {
		p := row.Envelope.Proposal
		// Readers rely on the stacked total; recompute it from the
		// deliverables when the field is missing or zero.
		p.TotalValueUSD = p.EffectiveTotal()
		out.Proposal = &p
	}
	return out
}

func mapFeedRows(rows []engine.FeedRow) []FeedRow {
	out := make([]FeedRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, feedRow(row))
	}
	return out
}
