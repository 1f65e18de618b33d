package pipeline

import (
	"context"

	"scriptforge/internal/jsonrepair"
	"scriptforge/internal/parsestate"
	"scriptforge/internal/prompts"
	"scriptforge/internal/script"
	"scriptforge/internal/services"
)

// runScenes extracts one ScriptScene per name listed in metadata.
func (p *Pipeline) runScenes(ctx context.Context) error {
	st := p.state.State()
	if st.Metadata == nil {
		return services.Wrap(services.ErrPrecondition, "scenes", "run", "metadata not extracted", nil)
	}
	return p.runEntityStage(ctx, entityStage{
		stage:        parsestate.StageScenes,
		taskType:     parsestate.TaskScene,
		names:        func() []string { return st.Metadata.SceneNames },
		exists:       st.HasScene,
		batchPrompt:  prompts.SceneBatch,
		singlePrompt: prompts.SceneSingle,
		store: func(name string, raw []byte) (any, error) {
			var s script.Scene
			if _, err := jsonrepair.Decode(string(raw), &s); err != nil {
				return nil, err
			}
			s = script.FillSceneDefaults(s, name)
			if err := p.state.AddScene(s); err != nil {
				return nil, err
			}
			return s, nil
		},
		placeholder: func(name string) any {
			s := script.FillSceneDefaults(script.Scene{}, name)
			_ = p.state.AddScene(s)
			return s
		},
	})
}
