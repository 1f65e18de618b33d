package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"scriptforge/internal/jsonrepair"
	"scriptforge/internal/logging"
	"scriptforge/internal/parsestate"
	"scriptforge/internal/prompts"
	"scriptforge/internal/services"
	"scriptforge/internal/services/llm"
)

// entityStage parameterizes the shared extraction engine over characters and
// scenes. The two stages are structurally identical: per-entity sub-tasks, a
// batch-first call policy with per-entity fallback, fingerprint-keyed
// caching, and validation-with-defaults before anything is appended.
type entityStage struct {
	stage    parsestate.Stage
	taskType parsestate.SubTaskType

	// names returns the requested entity names from metadata, in source order.
	names func() []string
	// exists reports whether the entity is already in the session collection.
	exists func(name string) bool
	// batchPrompt and singlePrompt build the stage's user prompts.
	batchPrompt  func(names []string, text string) string
	singlePrompt func(name, text string) string
	// store decodes one raw payload, fills defaults, and appends the record.
	// It returns the completed record for the sub-task result.
	store func(name string, raw []byte) (any, error)
	// placeholder appends a default-filled record for an abandoned entity.
	placeholder func(name string) any
}

// runEntityStage drives one entity stage to completion. Entities already
// completed in a resumed session are skipped; the rest are extracted batched
// or individually and persisted one by one.
func (p *Pipeline) runEntityStage(ctx context.Context, es entityStage) error {
	names := es.names()
	total := len(names)
	if total == 0 {
		p.logger.Info("no entities listed in metadata, skipping stage",
			logging.String(logging.FieldStage, string(es.stage)),
			logging.String(logging.FieldEventType, "stage_skipped"))
		p.advanceStage(es.stage, 1, 1, fmt.Sprintf("no %s to extract", es.stage))
		return nil
	}

	remaining := p.remainingEntities(es, names)
	done := total - len(remaining)
	if len(remaining) == 0 {
		p.logger.Info("all entities already extracted, skipping stage",
			logging.String(logging.FieldStage, string(es.stage)),
			logging.String(logging.FieldEventType, "stage_skipped"),
			logging.Int("entities", total))
		p.advanceStage(es.stage, total, total, fmt.Sprintf("%s already extracted, skipped", es.stage))
		return nil
	}
	p.advanceStage(es.stage, done, total, fmt.Sprintf("extracting %d of %d %s", len(remaining), total, es.stage))

	if len(remaining) > 1 && len(remaining) <= p.opts.BatchThreshold {
		extracted, err := p.runBatch(ctx, es, remaining)
		if err != nil {
			return err
		}
		done += extracted
		p.advanceStage(es.stage, done, total, fmt.Sprintf("batch extracted %d %s", extracted, es.stage))
		remaining = p.remainingEntities(es, names)
	}

	if len(remaining) == 0 {
		return nil
	}
	return p.runIndividual(ctx, es, remaining, &done, total)
}

// remainingEntities filters the requested names down to those without a
// completed sub-task and record.
func (p *Pipeline) remainingEntities(es entityStage, names []string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var remaining []string
	for _, name := range names {
		task := p.state.CreateSubTask(es.taskType, name)
		if task.Status == parsestate.StatusCompleted && es.exists(name) {
			continue
		}
		remaining = append(remaining, name)
	}
	return remaining
}

// runBatch extracts all remaining entities with one call, validating results
// positionally against the requested name list. Entities the batch failed to
// produce stay pending for the individual fallback. Returns the number of
// entities completed.
func (p *Pipeline) runBatch(ctx context.Context, es entityStage, names []string) (int, error) {
	resp, err := p.generate(ctx, llm.Request{
		SystemPrompt: prompts.ExtractionSystemPrompt,
		Prompt:       es.batchPrompt(names, p.text),
		JSONOnly:     true,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		p.logger.Warn("batch extraction call failed, falling back to individual calls",
			logging.String(logging.FieldStage, string(es.stage)),
			logging.Error(err))
		return 0, nil
	}

	var items []json.RawMessage
	if _, err := jsonrepair.Decode(resp.Text, &items); err != nil {
		p.logger.Warn("batch payload unparseable, falling back to individual calls",
			logging.String(logging.FieldStage, string(es.stage)),
			logging.String("snippet", jsonrepair.Snippet(resp.Text)),
			logging.Error(err))
		return 0, nil
	}

	p.mu.Lock()
	p.state.AccumulateUsage(usageFromResponse(resp))
	p.mu.Unlock()

	extracted := 0
	for i, name := range names {
		if i >= len(items) {
			p.logger.Warn("batch response shorter than request, entity falls back",
				logging.String(logging.FieldEntity, name))
			break
		}
		if err := p.completeEntity(ctx, es, name, items[i], parsestate.Usage{Model: resp.Model}); err != nil {
			p.logger.Warn("batch item rejected, entity falls back",
				logging.String(logging.FieldEntity, name),
				logging.Error(err))
			continue
		}
		extracted++
	}
	if err := p.persist(ctx); err != nil {
		return extracted, err
	}
	return extracted, nil
}

// runIndividual extracts each remaining entity with its own call, dispatched
// concurrently under the limiter. Each entity owns a disjoint record, so
// completion order does not matter.
func (p *Pipeline) runIndividual(ctx context.Context, es entityStage, names []string, done *int, total int) error {
	var (
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)
	recordFatal := func(err error) {
		fatalMu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		fatalMu.Unlock()
	}

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			err := p.extractOne(ctx, es, name)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || services.IsFatal(err) {
					recordFatal(err)
					return
				}
				p.logger.Warn("entity extraction failed",
					logging.String(logging.FieldEntity, name),
					logging.Error(err))
			}
			p.mu.Lock()
			*done++
			current := *done
			p.mu.Unlock()
			p.advanceStage(es.stage, current, total, fmt.Sprintf("extracted %s (%d/%d)", name, current, total))
		}(name)
	}
	wg.Wait()

	if fatalErr != nil {
		return fatalErr
	}
	return p.persist(ctx)
}

// extractOne runs the attempt loop for a single entity: cache first, then
// completion calls until success or the retry ceiling. An abandoned entity
// still gets a placeholder record so the collection stays structurally
// complete.
func (p *Pipeline) extractOne(ctx context.Context, es entityStage, name string) error {
	ctx = services.WithSubTask(ctx, parsestate.SubTaskID(es.taskType, name))

	p.mu.Lock()
	task := p.state.CreateSubTask(es.taskType, name)
	if task.Status == parsestate.StatusCompleted {
		_ = p.state.ResetSubTask(task.ID)
	}
	taskID := task.ID
	retries := task.RetryCount
	p.mu.Unlock()

	if raw, ok := p.cacheLookup(ctx, es.taskType, name); ok {
		if err := p.completeEntity(ctx, es, name, []byte(raw), parsestate.Usage{}); err == nil {
			p.logger.Debug("entity served from cache", logging.String(logging.FieldEntity, name))
			return p.persist(ctx)
		}
		// A corrupt cached payload falls through to a fresh call.
	}

	var lastErr error
	for attempt := retries; attempt < p.opts.MaxRetries; attempt++ {
		p.mu.Lock()
		_ = p.state.StartSubTask(taskID)
		p.mu.Unlock()

		raw, usage, err := p.generateEntity(ctx, es, name)
		if err == nil {
			if err = p.completeEntity(ctx, es, name, raw, usage); err == nil {
				p.cacheStore(ctx, es.taskType, name, string(raw))
				return p.persist(ctx)
			}
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		p.mu.Lock()
		needsIntervention, failErr := p.state.FailSubTask(taskID, err)
		p.mu.Unlock()
		if failErr != nil {
			return failErr
		}
		if needsIntervention {
			break
		}
		p.mu.Lock()
		_ = p.state.ResetSubTask(taskID)
		p.mu.Unlock()
		p.report(es.stage, fmt.Sprintf("retrying %s", name))
		if err := p.sleep(ctx, p.opts.RetryDelay); err != nil {
			return err
		}
	}

	// Retry ceiling reached: continue the stage with a default-filled record
	// rather than halting the whole pipeline.
	p.mu.Lock()
	_ = es.placeholder(name)
	p.mu.Unlock()
	p.logger.Warn("entity abandoned after retries, default record used",
		logging.String(logging.FieldEntity, name),
		logging.Error(lastErr))
	if err := p.persist(ctx); err != nil {
		return err
	}
	return lastErr
}

// generateEntity issues the single-entity completion call and returns the
// raw payload.
func (p *Pipeline) generateEntity(ctx context.Context, es entityStage, name string) ([]byte, parsestate.Usage, error) {
	resp, err := p.generate(ctx, llm.Request{
		SystemPrompt: prompts.ExtractionSystemPrompt,
		Prompt:       es.singlePrompt(name, p.extractionText(name)),
		JSONOnly:     true,
	})
	if err != nil {
		return nil, parsestate.Usage{}, services.Wrap(services.ErrExternalService, string(es.stage), "generate", name, err)
	}
	return []byte(resp.Text), usageFromResponse(resp), nil
}

// completeEntity validates, stores, and completes the sub-task for one raw
// payload.
func (p *Pipeline) completeEntity(ctx context.Context, es entityStage, name string, raw []byte, usage parsestate.Usage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	task := p.state.CreateSubTask(es.taskType, name)
	if task.Status == parsestate.StatusCompleted {
		// Completed on a prior run but the record is gone; re-run cleanly.
		_ = p.state.ResetSubTask(task.ID)
	}
	if task.Status != parsestate.StatusProcessing {
		if err := p.state.StartSubTask(task.ID); err != nil {
			return err
		}
	}
	record, err := es.store(name, raw)
	if err != nil {
		return err
	}
	return p.state.CompleteSubTask(task.ID, record, usage)
}

// persist saves the session under the state lock.
func (p *Pipeline) persist(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Save(ctx)
}
