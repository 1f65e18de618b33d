package pipeline

import (
	"context"
	"errors"
	"fmt"

	"scriptforge/internal/jsonrepair"
	"scriptforge/internal/logging"
	"scriptforge/internal/parsestate"
	"scriptforge/internal/prompts"
	"scriptforge/internal/script"
	"scriptforge/internal/services"
	"scriptforge/internal/services/llm"
)

// runShots designs camera shots for every scene, batched across scenes when
// few enough are pending and one call per scene otherwise. A scene that
// exhausts its attempts is abandoned with a warning; the stage continues with
// the remaining scenes.
func (p *Pipeline) runShots(ctx context.Context) error {
	st := p.state.State()
	if len(st.Scenes) == 0 {
		return services.Wrap(services.ErrPrecondition, "shots", "run", "no scenes extracted", nil)
	}

	scenes := append([]script.Scene(nil), st.Scenes...)
	total := len(scenes)
	pending := make([]script.Scene, 0, total)
	for _, scene := range scenes {
		if st.HasShotsForScene(scene.Name) {
			p.logger.Info("scene already has shots, skipping",
				logging.String(logging.FieldEntity, scene.Name),
				logging.String(logging.FieldEventType, "sub_task_skipped"))
			continue
		}
		pending = append(pending, scene)
	}
	done := total - len(pending)
	if done > 0 {
		p.advanceStage(parsestate.StageShots, done, total, fmt.Sprintf("%d scenes already have shots, skipped", done))
	}

	if len(pending) > 1 && len(pending) <= p.opts.BatchThreshold {
		completed, err := p.runShotBatch(ctx, pending)
		if err != nil {
			return err
		}
		if completed > 0 {
			done += completed
			p.advanceStage(parsestate.StageShots, done, total, fmt.Sprintf("batch generated shots for %d scenes", completed))
			if err := p.persist(ctx); err != nil {
				return err
			}
			st = p.state.State()
			kept := pending[:0]
			for _, scene := range pending {
				if !st.HasShotsForScene(scene.Name) {
					kept = append(kept, scene)
				}
			}
			pending = kept
		}
	}

	for _, scene := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := p.generateSceneShots(ctx, scene); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Warn("scene abandoned without shots",
				logging.String(logging.FieldEntity, scene.Name),
				logging.Error(err))
		}
		done++
		p.advanceStage(parsestate.StageShots, done, total, fmt.Sprintf("shots for %s (%d/%d)", scene.Name, done, total))
		if err := p.persist(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runShotBatch designs shots for all pending scenes with one call, grouping
// the flat response by scene name. Scenes the batch failed to cover stay
// pending for the per-scene fallback. Returns the number of scenes completed.
func (p *Pipeline) runShotBatch(ctx context.Context, scenes []script.Scene) (int, error) {
	p.mu.Lock()
	bible := p.state.State().StoryBible
	p.mu.Unlock()

	resp, err := p.generate(ctx, llm.Request{
		SystemPrompt: prompts.ExtractionSystemPrompt,
		Prompt:       prompts.ShotsBatch(scenes, bible, p.opts.MinShotsPerScene, p.opts.MaxShotsPerScene),
		JSONOnly:     true,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		p.logger.Warn("batch shot call failed, falling back to per-scene calls",
			logging.Error(err))
		return 0, nil
	}

	var shots []script.Shot
	if _, err := jsonrepair.Decode(resp.Text, &shots); err != nil {
		p.logger.Warn("batch shot payload unparseable, falling back to per-scene calls",
			logging.String("snippet", jsonrepair.Snippet(resp.Text)),
			logging.Error(err))
		return 0, nil
	}

	p.mu.Lock()
	p.state.AccumulateUsage(usageFromResponse(resp))
	p.mu.Unlock()

	byScene := make(map[string][]script.Shot)
	for _, shot := range shots {
		byScene[shot.SceneName] = append(byScene[shot.SceneName], shot)
	}

	completed := 0
	for _, scene := range scenes {
		group := byScene[scene.Name]
		if len(group) < p.opts.MinShotsPerScene {
			p.logger.Warn("batch produced too few shots for scene, falling back",
				logging.String(logging.FieldEntity, scene.Name),
				logging.Int("shots", len(group)))
			continue
		}
		if len(group) > p.opts.MaxShotsPerScene {
			group = group[:p.opts.MaxShotsPerScene]
		}
		for i := range group {
			group[i] = script.FillShotDefaults(group[i], scene.Name, i+1)
		}

		p.mu.Lock()
		task := p.state.CreateSubTask(parsestate.TaskShot, scene.Name)
		if task.Status == parsestate.StatusCompleted {
			_ = p.state.ResetSubTask(task.ID)
		}
		err := p.state.StartSubTask(task.ID)
		if err == nil {
			p.state.AddShots(group)
			err = p.state.CompleteSubTask(task.ID, group, parsestate.Usage{Model: resp.Model})
		}
		p.mu.Unlock()
		if err != nil {
			return completed, err
		}
		completed++
		p.logger.Info("shots generated",
			logging.String(logging.FieldEntity, scene.Name),
			logging.Int("shots", len(group)))
	}
	return completed, nil
}

// generateSceneShots runs the bounded attempt loop for one scene with a
// fixed delay between attempts.
func (p *Pipeline) generateSceneShots(ctx context.Context, scene script.Scene) error {
	ctx = services.WithSubTask(ctx, parsestate.SubTaskID(parsestate.TaskShot, scene.Name))

	p.mu.Lock()
	task := p.state.CreateSubTask(parsestate.TaskShot, scene.Name)
	if task.Status == parsestate.StatusCompleted {
		_ = p.state.ResetSubTask(task.ID)
	}
	taskID := task.ID
	bible := p.state.State().StoryBible
	p.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxRetries; attempt++ {
		p.mu.Lock()
		_ = p.state.StartSubTask(taskID)
		p.mu.Unlock()
		if attempt > 1 {
			p.report(parsestate.StageShots, fmt.Sprintf("retrying shots for %s (attempt %d)", scene.Name, attempt))
		}

		shots, usage, err := p.dispatchShotCall(ctx, scene, bible)
		if err == nil {
			p.mu.Lock()
			p.state.AddShots(shots)
			err = p.state.CompleteSubTask(taskID, shots, usage)
			p.mu.Unlock()
			if err != nil {
				return err
			}
			p.logger.Info("shots generated",
				logging.String(logging.FieldEntity, scene.Name),
				logging.Int("shots", len(shots)),
				logging.Int(logging.FieldAttempt, attempt))
			return nil
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
		if err := p.sleep(ctx, p.opts.RetryDelay); err != nil {
			return err
		}
	}
	return lastErr
}

// dispatchShotCall issues one shot generation call and validates the result.
func (p *Pipeline) dispatchShotCall(ctx context.Context, scene script.Scene, bible *script.StoryBible) ([]script.Shot, parsestate.Usage, error) {
	resp, err := p.generate(ctx, llm.Request{
		SystemPrompt: prompts.ExtractionSystemPrompt,
		Prompt:       prompts.Shots(scene, bible, p.opts.MinShotsPerScene, p.opts.MaxShotsPerScene),
		JSONOnly:     true,
	})
	if err != nil {
		return nil, parsestate.Usage{}, services.Wrap(services.ErrExternalService, "shots", "generate", scene.Name, err)
	}

	var shots []script.Shot
	if _, err := jsonrepair.Decode(resp.Text, &shots); err != nil {
		return nil, parsestate.Usage{}, services.Wrap(services.ErrExternalService, "shots", "parse", jsonrepair.Snippet(resp.Text), err)
	}
	if len(shots) == 0 {
		return nil, parsestate.Usage{}, services.Wrap(services.ErrExternalService, "shots", "parse", "model produced no shots for "+scene.Name, nil)
	}
	if len(shots) > p.opts.MaxShotsPerScene {
		shots = shots[:p.opts.MaxShotsPerScene]
	}
	for i := range shots {
		shots[i] = script.FillShotDefaults(shots[i], scene.Name, i+1)
	}
	return shots, usageFromResponse(resp), nil
}
