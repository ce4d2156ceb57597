package domain

const (
	EventNameSpinStarted     = "spin.started"
	EventNameSpinSettled     = "spin.settled"
	EventNameRouletteChanged = "roulette.changed"
	EventNameLedgerReset     = "ledger.reset"
)

type EventSpinStarted struct {
	Spin Spin
}

func (EventSpinStarted) Name() string { return EventNameSpinStarted }

// EventSpinSettled is published once the animation settle time elapsed and the ledger was updated.
type EventSpinSettled struct {
	Spin Spin
	// AssignedIdentity is the winner identity given to the segment, if any.
	AssignedIdentity string
}

func (EventSpinSettled) Name() string { return EventNameSpinSettled }

type RouletteChange string

const (
	RouletteCreated RouletteChange = "created"
	RouletteUpdated RouletteChange = "updated"
	RouletteDeleted RouletteChange = "deleted"
)

type EventRouletteChanged struct {
	Number int
	Change RouletteChange
}

func (EventRouletteChanged) Name() string { return EventNameRouletteChanged }

type EventLedgerReset struct {
	SessionID      string
	RouletteNumber int
}

func (EventLedgerReset) Name() string { return EventNameLedgerReset }
