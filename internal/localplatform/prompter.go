package localplatform

import (
	"context"

	"github.com/naveenspark/grimora-push/pkg/domain"
)

// Prompter asks the user whether to allow notifications. Returning
// PermissionDefault means the prompt was dismissed without an answer.
type Prompter interface {
	Prompt(ctx context.Context) (domain.PermissionState, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context) (domain.PermissionState, error)

func (f PrompterFunc) Prompt(ctx context.Context) (domain.PermissionState, error) {
	return f(ctx)
}

// Answer returns a Prompter that always gives the same answer.
func Answer(p domain.PermissionState) Prompter {
	return PrompterFunc(func(ctx context.Context) (domain.PermissionState, error) {
		if err := ctx.Err(); err != nil {
			return domain.PermissionDefault, err
		}
		return p, nil
	})
}
