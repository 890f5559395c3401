package processor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prasenjit/go-mockserver/internal/models"
)

// Runner executes the pre and post stages of the pipeline
type Runner struct {
	executor Executor
	logger   zerolog.Logger
}

// NewRunner creates a new runner
func NewRunner(executor Executor, logger zerolog.Logger) *Runner {
	return &Runner{executor: executor, logger: logger}
}

// PreOutcome is the result of the pre stage
type PreOutcome struct {
	// Terminated is set when a processor returned a truthy value; Body holds it
	Terminated bool
	Body       any
	// Err is set when a processor failed; the request must end with 500
	Err    error
	Record *models.Processor
}

// RunPre runs enabled pre processors in order. The first truthy return value
// ends the stage, and so does the first error.
func (r *Runner) RunPre(ctx context.Context, records []*models.Processor, req RequestView, db DB, console *Console) PreOutcome {
	for _, rec := range filter(records, models.ProcessorPre) {
		result, err := r.executor.Execute(ctx, rec.Code, Bindings{
			Request:  req,
			Response: map[string]any{},
			Console:  console,
			DB:       db,
		})
		if err != nil {
			r.logger.Error().Err(err).Int64("processor", rec.ID).Msg("Pre processor failed")
			return PreOutcome{Err: err, Record: rec}
		}
		if Truthy(result.Value) {
			return PreOutcome{Terminated: true, Body: result.Value, Record: rec}
		}
	}
	return PreOutcome{}
}

// RunPost runs enabled post processors in order over body and returns the final body.
// A truthy return value replaces the body; otherwise changes made to res are kept.
// Failures are logged to console and skipped.
func (r *Runner) RunPost(ctx context.Context, records []*models.Processor, req RequestView, body any, db DB, console *Console) any {
	for _, rec := range filter(records, models.ProcessorPost) {
		result, err := r.executor.Execute(ctx, rec.Code, Bindings{
			Request:  req,
			Response: body,
			Console:  console,
			DB:       db,
		})
		if err != nil {
			r.logger.Warn().Err(err).Int64("processor", rec.ID).Msg("Post processor failed")
			if console != nil {
				console.Log("Post error: " + err.Error())
			}
			continue
		}
		if Truthy(result.Value) {
			body = result.Value
		} else {
			body = result.Response
		}
	}
	return body
}

func filter(records []*models.Processor, typ models.ProcessorType) []*models.Processor {
	var out []*models.Processor
	for _, rec := range records {
		if rec != nil && rec.Enabled && rec.Type == typ {
			out = append(out, rec)
		}
	}
	return out
}
