package browser

import (
	"context"
	"fmt"
)

const (
	EngineChrome  = "chrome"
	EngineFirefox = "firefox"
)

// Open starts the configured engine.
func Open(ctx context.Context, engine string, o Options) (Browser, error) {
	switch engine {
	case "", EngineChrome:
		return NewChrome(ctx, o)
	case EngineFirefox:
		return NewFirefox(o)
	default:
		return nil, fmt.Errorf("unknown browser engine %q", engine)
	}
}
