package compiler

import (
	"context"
	"time"

	"github.com/conduit-lang/assetforge/internal/handle"
)

// Result describes a finished compile job
type Result struct {
	JobID        string        `json:"job_id"`
	Handle       handle.Handle `json:"handle"`
	RelativePath string        `json:"relative_path"`
	Success      bool          `json:"success"`
	Skipped      bool          `json:"skipped,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Err          error         `json:"-"`
	Compiler     string        `json:"compiler,omitempty"`
	Blocks       int           `json:"blocks"`
	Children     []string      `json:"children,omitempty"`
	Reused       []string      `json:"reused,omitempty"`
	References   []string      `json:"references,omitempty"`
	Unresolved   []string      `json:"unresolved,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Job is a queued or running compile. Requests for an asset that is
// already in flight share its Job.
type Job struct {
	ID        string
	Handle    handle.Handle
	Full      bool
	Reason    string
	Submitted time.Time

	done   chan struct{}
	result *Result
}

func newJob(id string, h handle.Handle, full bool, reason string) *Job {
	return &Job{
		ID:        id,
		Handle:    h,
		Full:      full,
		Reason:    reason,
		Submitted: time.Now(),
		done:      make(chan struct{}),
	}
}

// Done is closed once the job finishes
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result returns the result of a finished job, or nil while it runs
func (j *Job) Result() *Result {
	select {
	case <-j.done:
		return j.result
	default:
		return nil
	}
}

// Wait blocks until the job finishes or ctx ends. A failed compile returns
// its result together with the *CompileError.
func (j *Job) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-j.done:
		return j.result, j.result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (j *Job) finish(r *Result) {
	j.result = r
	close(j.done)
}
