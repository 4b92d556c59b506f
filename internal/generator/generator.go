package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/lgs-platform/backend/internal/config"
	"github.com/lgs-platform/backend/internal/fingerprint"
	"github.com/lgs-platform/backend/internal/models"
)

// Generator turns one request into one candidate item. Retry policy
// lives in the pipeline; a Generator call is a single attempt.
type Generator struct {
	llm     LLMClient
	mutator LLMClient
	fp      *fingerprint.Fingerprint
	cfg     config.GeneratorConfig
}

func New(llm LLMClient, fp *fingerprint.Fingerprint, cfg config.GeneratorConfig) *Generator {
	return &Generator{llm: llm, mutator: llm, fp: fp, cfg: cfg}
}

// SetMutationClient routes mutation calls to a separate client, so
// difficulty rewrites can use a cheaper model than initial generation.
func (g *Generator) SetMutationClient(llm LLMClient) {
	g.mutator = llm
}

// GenerateItem makes one style-conditioned call to the external
// capability and strictly parses the result. Every call carries the
// configured timeout.
func (g *Generator) GenerateItem(ctx context.Context, req models.GenerationRequest) (*models.GeneratedItem, error) {
	hints := HintsFor(g.fp, req.Subject)
	userPrompt := BuildItemPrompt(req, hints)

	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	resp, err := g.llm.Generate(ctx, ItemSystemPrompt(), userPrompt)
	if err != nil {
		return nil, fmt.Errorf("generate item: %w", err)
	}

	item, err := ParseItem(resp.Content)
	if err != nil {
		return nil, err
	}
	g.stamp(item, req)
	return item, nil
}

// MutateItem re-invokes the capability with an explicit instruction to
// shift complexity toward the requested tier, reusing the stem context.
func (g *Generator) MutateItem(ctx context.Context, item *models.GeneratedItem, req models.GenerationRequest) (*models.GeneratedItem, error) {
	hints := HintsFor(g.fp, req.Subject)
	userPrompt := BuildMutationPrompt(item, req.Difficulty, hints)

	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	resp, err := g.mutator.Generate(ctx, ItemSystemPrompt(), userPrompt)
	if err != nil {
		return nil, fmt.Errorf("mutate item: %w", err)
	}

	mutated, err := ParseItem(resp.Content)
	if err != nil {
		return nil, err
	}
	g.stamp(mutated, req)
	return mutated, nil
}

func (g *Generator) stamp(item *models.GeneratedItem, req models.GenerationRequest) {
	item.Subject = req.Subject
	item.Topic = req.Topic
	item.Objective = req.Objective
	item.Difficulty = req.Difficulty
	item.Provenance = models.ProvenanceGenerated
	item.CreatedAt = time.Now()
}
