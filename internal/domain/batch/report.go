package batch

import "github.com/gridtech/portfolio/internal/domain/record"

// Failure is the outcome of one record that could not be embedded or persisted.
type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
	err    error
}

// NewFailure creates a failure entry for record id.
func NewFailure(id string, err error) Failure {
	return Failure{ID: id, Reason: err.Error(), err: err}
}

// Err returns the underlying error, if known.
func (f Failure) Err() error { return f.err }

// Report summarizes one batch run over a record kind.
type Report struct {
	Kind      record.Kind `json:"kind"`
	Attempted int         `json:"attempted"`
	Succeeded int         `json:"succeeded"`
	Failures  []Failure   `json:"failures,omitempty"`
}

// Add records the outcome of one attempted record. A nil err counts as success.
func (r *Report) Add(id string, err error) {
	r.Attempted++
	if err != nil {
		r.Failures = append(r.Failures, NewFailure(id, err))
		return
	}
	r.Succeeded++
}

// OK reports whether every attempted record succeeded.
func (r Report) OK() bool { return r.Attempted == r.Succeeded }
