package pipeline

import (
	"context"

	"scriptforge/internal/jsonrepair"
	"scriptforge/internal/logging"
	"scriptforge/internal/parsestate"
	"scriptforge/internal/prompts"
	"scriptforge/internal/script"
	"scriptforge/internal/services"
	"scriptforge/internal/services/llm"
	"scriptforge/internal/textutil"
)

// runMetadata extracts the script-wide metadata in a single atomic call.
func (p *Pipeline) runMetadata(ctx context.Context) error {
	if p.state.State().Metadata != nil {
		p.logger.Info("metadata already extracted, skipping stage",
			logging.String(logging.FieldEventType, "stage_skipped"))
		p.advanceStage(parsestate.StageMetadata, 1, 1, "metadata already extracted, skipped")
		return nil
	}

	prefix := textutil.TruncateRunes(p.text, p.opts.MetadataPrefixChars)
	resp, err := p.generate(ctx, llm.Request{
		SystemPrompt: prompts.ExtractionSystemPrompt,
		Prompt:       prompts.Metadata(prefix),
		JSONOnly:     true,
	})
	if err != nil {
		return services.Wrap(services.ErrExternalService, "metadata", "generate", "", err)
	}

	var meta script.Metadata
	attempts, err := jsonrepair.Decode(resp.Text, &meta)
	if err != nil {
		return services.Wrap(services.ErrExternalService, "metadata", "parse", jsonrepair.Snippet(resp.Text), err)
	}
	if len(attempts) > 0 {
		p.logger.Debug("metadata payload repaired", logging.Int("attempts", len(attempts)))
	}

	meta = script.FillMetadataDefaults(meta, p.text)

	p.mu.Lock()
	p.state.SetMetadata(meta)
	p.state.AccumulateUsage(usageFromResponse(resp))
	p.mu.Unlock()

	p.logger.Info("metadata extracted",
		logging.String("title", meta.Title),
		logging.Int("characters", len(meta.CharacterNames)),
		logging.Int("scenes", len(meta.SceneNames)))
	p.advanceStage(parsestate.StageMetadata, 1, 1, "metadata extracted")
	return nil
}
