package pipeline

import (
	"context"

	"scriptforge/internal/jsonrepair"
	"scriptforge/internal/parsestate"
	"scriptforge/internal/prompts"
	"scriptforge/internal/script"
	"scriptforge/internal/services"
)

// runCharacters extracts one ScriptCharacter per name listed in metadata.
func (p *Pipeline) runCharacters(ctx context.Context) error {
	st := p.state.State()
	if st.Metadata == nil {
		return services.Wrap(services.ErrPrecondition, "characters", "run", "metadata not extracted", nil)
	}
	return p.runEntityStage(ctx, entityStage{
		stage:        parsestate.StageCharacters,
		taskType:     parsestate.TaskCharacter,
		names:        func() []string { return st.Metadata.CharacterNames },
		exists:       st.HasCharacter,
		batchPrompt:  prompts.CharacterBatch,
		singlePrompt: prompts.CharacterSingle,
		store: func(name string, raw []byte) (any, error) {
			var c script.Character
			if _, err := jsonrepair.Decode(string(raw), &c); err != nil {
				return nil, err
			}
			c = script.FillCharacterDefaults(c, name)
			if err := p.state.AddCharacter(c); err != nil {
				return nil, err
			}
			return c, nil
		},
		placeholder: func(name string) any {
			c := script.FillCharacterDefaults(script.Character{}, name)
			_ = p.state.AddCharacter(c)
			return c
		},
	})
}
