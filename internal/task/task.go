package task

import (
	"fmt"
	"time"
)

// 状态机：init → listing_fetched → diffing → processing → merged → persisted → exported → done，任一步失败进入 aborted
type State string

const (
	StateInit           State = "init"
	StateListingFetched State = "listing_fetched"
	StateDiffing        State = "diffing"
	StateProcessing     State = "processing"
	StateMerged         State = "merged"
	StatePersisted      State = "persisted"
	StateExported       State = "exported"
	StateDone           State = "done"
	StateAborted        State = "aborted"
)

var transitions = map[State][]State{
	StateInit:           {StateListingFetched, StateAborted},
	StateListingFetched: {StateDiffing, StateAborted},
	StateDiffing:        {StateProcessing, StateMerged},
	StateProcessing:     {StateMerged},
	StateMerged:         {StatePersisted, StateExported, StateAborted},
	StatePersisted:      {StateExported, StateAborted},
	StateExported:       {StateDone},
}

type Run struct {
	Year       int
	State      State
	Seen       int // rows in the listing
	Known      int // rows skipped as already stored
	Added      int
	Failed     int // rows dropped after a processing error
	ReportPath string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

func NewRun(year int) *Run {
	return &Run{Year: year, State: StateInit, StartedAt: time.Now()}
}

func (r *Run) Advance(next State) error {
	for _, s := range transitions[r.State] {
		if s == next {
			r.State = next
			if next == StateDone || next == StateAborted {
				r.FinishedAt = time.Now()
			}
			return nil
		}
	}
	return fmt.Errorf("invalid run transition %s -> %s", r.State, next)
}

// 已结束的 run 不再改写
func (r *Run) Abort(err error) {
	if r.Finished() {
		return
	}
	r.Err = err
	r.State = StateAborted
	r.FinishedAt = time.Now()
}

func (r *Run) Finished() bool { return r.State == StateDone || r.State == StateAborted }

func (r *Run) String() string {
	return fmt.Sprintf("year=%d state=%s seen=%d known=%d added=%d failed=%d", r.Year, r.State, r.Seen, r.Known, r.Added, r.Failed)
}
