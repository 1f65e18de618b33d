// Package pipeline drives the staged extraction of structured production
// data from raw script text. The orchestrator owns the stage state machine,
// resumes persisted sessions, and coordinates the limiter, cache, repair, and
// state manager around the text completion capability.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scriptforge/internal/cache"
	"scriptforge/internal/chunker"
	"scriptforge/internal/limiter"
	"scriptforge/internal/logging"
	"scriptforge/internal/parsestate"
	"scriptforge/internal/services"
	"scriptforge/internal/services/llm"
	"scriptforge/internal/textutil"
)

// TextCompleter is the text completion capability the pipeline consumes.
type TextCompleter interface {
	GenerateText(ctx context.Context, req llm.Request) (llm.Response, error)
}

// ProgressFunc receives a progress notification on every stage transition,
// sub-task completion, skip, and retry.
type ProgressFunc func(stage parsestate.Stage, overallPercent float64, message string)

// Options tunes pipeline behavior. Zero values fall back to defaults.
type Options struct {
	// MaxRetries bounds attempts per sub-task before it is abandoned.
	MaxRetries int
	// RetryDelay is the fixed wait between shot generation attempts.
	RetryDelay time.Duration
	// BatchThreshold is the largest remaining-entity count extracted with a
	// single batched call; above it entities are extracted individually.
	BatchThreshold int
	// MetadataPrefixChars bounds the text sent to the metadata stage.
	MetadataPrefixChars int
	// MinShotsPerScene / MaxShotsPerScene bound generated shot counts.
	MinShotsPerScene int
	MaxShotsPerScene int
	// ChunkChars bounds the text attached to per-entity extraction prompts.
	ChunkChars int
}

func (o *Options) applyDefaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
	if o.BatchThreshold <= 0 {
		o.BatchThreshold = 8
	}
	if o.MetadataPrefixChars <= 0 {
		o.MetadataPrefixChars = 6000
	}
	if o.MinShotsPerScene <= 0 {
		o.MinShotsPerScene = 3
	}
	if o.MaxShotsPerScene <= 0 {
		o.MaxShotsPerScene = 15
	}
	if o.ChunkChars <= 0 {
		o.ChunkChars = 4500
	}
}

// Pipeline is the top-level orchestrator for one parsing session.
type Pipeline struct {
	completer TextCompleter
	limiter   *limiter.Limiter
	cache     *cache.Cache
	state     *parsestate.Manager
	chunker   *chunker.Chunker
	logger    *slog.Logger
	opts      Options
	progress  ProgressFunc
	sleep     func(ctx context.Context, d time.Duration) error

	// mu guards state mutations from concurrently completing sub-tasks.
	mu sync.Mutex

	text      string
	textFP    string
	chunks    []chunker.Chunk
	scriptID  string
	projectID string
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithProgress registers the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logging.NewComponentLogger(logger, "pipeline")
		}
	}
}

// WithSleeper overrides how inter-retry delays are performed (used in tests).
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// New constructs a Pipeline around its collaborators. state must not have
// been loaded yet; Run performs the load to pick up resumable sessions.
func New(completer TextCompleter, lim *limiter.Limiter, c *cache.Cache, state *parsestate.Manager, scriptID, projectID string, opts Options, options ...Option) *Pipeline {
	opts.applyDefaults()
	p := &Pipeline{
		completer: completer,
		limiter:   lim,
		cache:     c,
		state:     state,
		chunker:   chunker.New(chunker.Options{MaxChunkChars: opts.ChunkChars}),
		logger:    logging.NewNop(),
		opts:      opts,
		scriptID:  scriptID,
		projectID: projectID,
		sleep:     sleepContext,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run executes the pipeline over text, resuming any persisted non-terminal
// session for this (scriptID, projectID) pair. A canceled run persists its
// progress and can be resumed by calling Run again.
func (p *Pipeline) Run(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return services.Wrap(services.ErrValidation, "", "run", "script text is empty", nil)
	}
	p.text = text
	p.textFP = textutil.Fingerprint(text)
	p.chunks = p.chunker.Chunk(text)

	ctx = services.WithScriptID(ctx, p.scriptID)
	ctx = services.WithProjectID(ctx, p.projectID)
	ctx = services.WithRequestID(ctx, uuid.NewString())

	resumed, err := p.state.Load(ctx)
	if err != nil {
		return err
	}
	st := p.state.State()
	if resumed {
		if st.Stage == parsestate.StageCompleted {
			p.report(parsestate.StageCompleted, "session already completed")
			return nil
		}
		p.logger.Info("resuming session",
			logging.String(logging.FieldScriptID, p.scriptID),
			logging.String(logging.FieldStage, string(st.Stage)))
		p.warmCache()
	}

	if st.Stage == parsestate.StageIdle || st.Stage == parsestate.StageError {
		p.transition(parsestate.StageMetadata)
	}

	if err := p.runStages(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Cancellation is resumable, not a session error.
			_ = p.state.Save(context.WithoutCancel(ctx))
			return err
		}
		p.state.SetError(err)
		_ = p.state.Save(context.WithoutCancel(ctx))
		p.report(parsestate.StageError, err.Error())
		return err
	}
	return nil
}

func (p *Pipeline) runStages(ctx context.Context) error {
	for {
		stage := p.state.State().Stage
		ctx := services.WithStage(ctx, string(stage))
		switch stage {
		case parsestate.StageMetadata:
			if err := p.runMetadata(ctx); err != nil {
				return err
			}
			p.transition(parsestate.StageCharacters)
		case parsestate.StageCharacters:
			if err := p.runCharacters(ctx); err != nil {
				return err
			}
			p.transition(parsestate.StageScenes)
		case parsestate.StageScenes:
			if err := p.runScenes(ctx); err != nil {
				return err
			}
			p.lockStoryBible()
			p.transition(parsestate.StageShots)
		case parsestate.StageShots:
			if err := p.runShots(ctx); err != nil {
				return err
			}
			p.transition(parsestate.StageCompleted)
			if err := p.state.Save(ctx); err != nil {
				return err
			}
			p.report(parsestate.StageCompleted, "parsing completed")
			return nil
		case parsestate.StageCompleted:
			return nil
		default:
			return services.Wrap(services.ErrPrecondition, string(stage), "run", "unexpected stage", nil)
		}
		if err := p.state.Save(ctx); err != nil {
			return err
		}
	}
}

// transition moves the session to the next stage and reports it.
func (p *Pipeline) transition(stage parsestate.Stage) {
	p.mu.Lock()
	p.state.UpdateStage(stage)
	p.mu.Unlock()
	p.report(stage, fmt.Sprintf("entering %s stage", stage))
}

// report invokes the progress callback with the state manager's weighted
// overall percentage.
func (p *Pipeline) report(stage parsestate.Stage, message string) {
	if p.progress == nil {
		return
	}
	p.mu.Lock()
	overall := p.state.State().Progress.OverallPercent
	p.mu.Unlock()
	if stage == parsestate.StageCompleted {
		overall = 100
	}
	p.progress(stage, overall, message)
}

// advanceStage updates in-stage progress after done of total sub-tasks
// finished and notifies the callback.
func (p *Pipeline) advanceStage(stage parsestate.Stage, done, total int, message string) {
	percent := 100.0
	if total > 0 {
		percent = float64(done) / float64(total) * 100
	}
	p.mu.Lock()
	p.state.UpdateStageProgress(percent)
	p.mu.Unlock()
	p.report(stage, message)
}

// lockStoryBible freezes character and scene identity before shot design.
func (p *Pipeline) lockStoryBible() {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.state.State()
	if st.StoryBible != nil {
		return
	}
	style := "cinematic"
	if st.Metadata != nil {
		style = strings.TrimSpace(st.Metadata.Genre + ", " + st.Metadata.Tone + " tone")
	}
	p.state.LockStoryBible(style)
}

// warmCache reloads the memory tier from results persisted in a resumed
// session so repeated extractions short-circuit without store reads.
func (p *Pipeline) warmCache() {
	if p.cache == nil {
		return
	}
	var entries []cache.WarmupEntry
	for _, task := range p.state.State().SubTasks {
		if task.Status != parsestate.StatusCompleted || len(task.Result) == 0 {
			continue
		}
		entries = append(entries, cache.WarmupEntry{
			Key:   p.cacheKey(task.Type, task.EntityName),
			Value: string(task.Result),
		})
	}
	if len(entries) > 0 {
		p.cache.Warmup(entries)
		p.logger.Debug("cache warmed from persisted session", logging.Int("entries", len(entries)))
	}
}

func (p *Pipeline) cacheKey(taskType parsestate.SubTaskType, entityName string) string {
	return cache.Key(string(taskType), map[string]any{
		"script_id":   p.scriptID,
		"project_id":  p.projectID,
		"entity":      entityName,
		"fingerprint": p.textFP,
	})
}

// cacheLookup returns a cached raw payload for the entity, if any.
func (p *Pipeline) cacheLookup(ctx context.Context, taskType parsestate.SubTaskType, entityName string) (string, bool) {
	if p.cache == nil {
		return "", false
	}
	return p.cache.Get(ctx, p.cacheKey(taskType, entityName))
}

func (p *Pipeline) cacheStore(ctx context.Context, taskType parsestate.SubTaskType, entityName, payload string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, p.cacheKey(taskType, entityName), payload, cache.SetOptions{}); err != nil {
		p.logger.Warn("cache write failed",
			logging.String(logging.FieldEntity, entityName),
			logging.Error(err))
	}
}

// generate runs one completion call under the concurrency limiter.
func (p *Pipeline) generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	var resp llm.Response
	err := p.limiter.Run(ctx, func() error {
		var genErr error
		resp, genErr = p.completer.GenerateText(ctx, req)
		return genErr
	})
	return resp, err
}

// extractionText returns the prompt text for one entity: the full script when
// it fits the chunk budget, otherwise the chunks mentioning the entity.
func (p *Pipeline) extractionText(entityName string) string {
	if len(p.chunks) <= 1 {
		return p.text
	}
	var b strings.Builder
	matched := 0
	for _, chunk := range p.chunks {
		if !strings.Contains(chunk.Text, entityName) {
			continue
		}
		if matched == 0 && chunk.Context != "" {
			b.WriteString(chunk.Context)
			b.WriteString("\n")
		}
		b.WriteString(chunk.Text)
		b.WriteString("\n")
		matched++
		if matched >= 2 {
			break
		}
	}
	if matched == 0 {
		return p.chunks[0].Text
	}
	return b.String()
}

// usageFromResponse converts a completion response into state-manager usage.
func usageFromResponse(resp llm.Response) parsestate.Usage {
	return parsestate.Usage{
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
}
