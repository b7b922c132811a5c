package watch

import (
	"context"
	"errors"

	"github.com/hupe1980/panmk/internal/converter"
)

// CompileFunc returns a BuildFunc that compiles t with inv. When the
// converter exits unsuccessfully its diagnostics are returned with the error.
func CompileFunc(inv *converter.Invoker, t converter.Target, extraArgs []string) BuildFunc {
	return func(ctx context.Context) (*BuildResult, error) {
		res, err := inv.Compile(ctx, t, extraArgs)
		if err != nil {
			var exitErr *converter.ExitError
			if errors.As(err, &exitErr) {
				return &BuildResult{Diagnostics: exitErr.Diagnostics}, err
			}

			return nil, err
		}

		return &BuildResult{
			OutputPath:  res.OutputPath,
			Diagnostics: res.Diagnostics,
			Duration:    res.Duration,
		}, nil
	}
}
