package engine

import (
	"github.com/paulmach/orb"

	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/geo"
)

// Effect is an instruction for the host: the controller never performs IO
// or animation itself.
type Effect interface {
	effect()
}

// FetchEffect asks the host to run a fetch plan and report the batch back
// through Controller.CommitBatch.
type FetchEffect struct {
	Plan casedata.Plan
}

// CancelFetchEffect asks the host to cancel the batch with this generation.
type CancelFetchEffect struct {
	Gen uint64
}

// DetailEffect asks the host to fetch popup data and report it back through
// Controller.DetailLoaded.
type DetailEffect struct {
	Request casedata.DetailRequest
}

// FitEffect asks the host to fit the viewport to a bound.
type FitEffect struct {
	Bound   orb.Bound
	Options geo.FitOptions
}

// FlyToEffect asks the host to move the viewport.
type FlyToEffect struct {
	Viewport geo.Viewport
}

// NoticeEffect is a transient message for the user. Err is set for
// failures (ErrNotFound, partial fetch failures).
type NoticeEffect struct {
	Text string
	Err  error
}

func (FetchEffect) effect()       {}
func (CancelFetchEffect) effect() {}
func (DetailEffect) effect()      {}
func (FitEffect) effect()         {}
func (FlyToEffect) effect()       {}
func (NoticeEffect) effect()      {}
