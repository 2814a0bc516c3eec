package proposal

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"offload/internal/openai"
)

// Service is the upstream structured-generation call. The live OpenAI
// client implements it; tests substitute deterministic stubs.
type Service interface {
	GenerateStructured(ctx context.Context, system, user, schemaName string, schema json.RawMessage) (openai.Result, error)
}

// Generator applies the proposal contract over a Service: it builds
// the directive, invokes the service once, recovers the envelope via
// the decode chain, and accepts it only if it passes schema validation
// and the pricing bounds.
type Generator struct {
	Service Service
	Model   string
	Anchor  Anchor
}

// Generate produces one accepted envelope for a task. Inputs are
// normally validated upstream; a missing task or non-finite worth is
// still rejected here, before any service call, as a precondition
// failure distinct from downstream failures.
func (g Generator) Generate(ctx context.Context, task string, statedWorth float64) (Envelope, string, error) {
	var env Envelope
	if strings.TrimSpace(task) == "" {
		return env, "", fmt.Errorf("%w: empty task", ErrPrecondition)
	}
	if math.IsNaN(statedWorth) || math.IsInf(statedWorth, 0) || statedWorth < 0 {
		return env, "", fmt.Errorf("%w: stated worth must be a finite number >= 0", ErrPrecondition)
	}
	if g.Service == nil {
		return env, "", fmt.Errorf("%w: no generation service configured", ErrPrecondition)
	}

	system, user := BuildDirective(task, statedWorth, g.Anchor)
	res, err := g.Service.GenerateStructured(ctx, system, user, SchemaName, SchemaJSON())
	if err != nil {
		return env, "", &ServiceError{Err: err}
	}

	raw, err := DecodeResult(res)
	if err != nil {
		return env, "", err
	}
	if err := validateEnvelope(raw); err != nil {
		return env, "", fmt.Errorf("%w: %v", ErrContractViolation, err)
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, "", fmt.Errorf("%w: decode envelope: %v", ErrContractViolation, err)
	}
	if err := CheckPricing(statedWorth, env.Proposal); err != nil {
		return env, "", err
	}

	model := res.Model
	if model == "" {
		model = g.Model
	}
	return env, model, nil
}
