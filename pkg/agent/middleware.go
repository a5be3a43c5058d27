package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/germanamz/tabletalk/pkg/chats/message"
)

// Request is the input of one run.
type Request struct {
	SessionID string
	// Input is the user's message. Unused when Resume is set.
	Input string
	// Resume continues Transcript instead of starting a new turn.
	Resume     bool
	Transcript []message.Message
}

// Runner executes one run.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, req Request) (Result, error)

// Run calls f(ctx, req).
func (f RunnerFunc) Run(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Middleware wraps a Runner. The first middleware in a list is outermost.
type Middleware func(next Runner) Runner

func chain(r Runner, mws []Middleware) Runner {
	for i := len(mws) - 1; i >= 0; i-- {
		r = mws[i](r)
	}
	return r
}

// Timeout bounds a run with a deadline.
func Timeout(d time.Duration) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context, req Request) (Result, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			return next.Run(ctx, req)
		})
	}
}

// Recovery turns a panic inside the run into an error.
func Recovery() Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context, req Request) (res Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("agent panicked: %v", r)
				}
			}()

			return next.Run(ctx, req)
		})
	}
}

// Logger logs the start, duration and outcome of every run.
func Logger(log *slog.Logger, name string) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context, req Request) (Result, error) {
			log.InfoContext(ctx, "agent started", "agent", name, "session", req.SessionID, "resume", req.Resume)

			start := time.Now()
			res, err := next.Run(ctx, req)
			duration := time.Since(start)

			if err != nil {
				log.ErrorContext(ctx, "agent finished with error",
					"agent", name,
					"session", req.SessionID,
					"duration", duration,
					"error", err,
				)
				return res, err
			}

			log.InfoContext(ctx, "agent finished",
				"agent", name,
				"session", req.SessionID,
				"duration", duration,
				"tool_calls", res.ToolCalls,
			)
			return res, nil
		})
	}
}
