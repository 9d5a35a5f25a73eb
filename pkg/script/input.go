package script

import (
	"context"
	"fmt"
)

// InputHandler is the function an input-handler script defines.
const InputHandler = "parse_input"

// ParseInput calls parse_input(lines) and returns its entries. Each entry
// becomes one custom target.
func (p *Program) ParseInput(ctx context.Context, env *Env, lines []string) ([]any, error) {
	res, err := p.Call(ctx, env, InputHandler, lines)
	if err != nil {
		return nil, err
	}
	switch v := res.(type) {
	case []any:
		return v, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s: %s returned %T, want an array", ErrRuntime, p.Path, InputHandler, res)
}
