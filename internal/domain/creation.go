package domain

import "time"

// CreationStatus is the progress of one market-creation run. Values only move
// forward; a failed run keeps the last status it reached.
type CreationStatus string

const (
	StatusCreatingMarket       CreationStatus = "Creating Market"
	StatusInitialisingOutcomes CreationStatus = "Initialising Outcomes"
	StatusAddingPrices         CreationStatus = "Adding Prices"
	StatusOpeningMarket        CreationStatus = "Opening Market"
	StatusMakingMarket         CreationStatus = "Making Market" // reserved, never emitted
	StatusSuccess              CreationStatus = "Success"
)

var statusOrder = map[CreationStatus]int{
	StatusCreatingMarket:       0,
	StatusInitialisingOutcomes: 1,
	StatusAddingPrices:         2,
	StatusOpeningMarket:        3,
	StatusMakingMarket:         4,
	StatusSuccess:              5,
}

// Before reports whether s comes strictly before other in the creation
// sequence. Unknown statuses never come before anything.
func (s CreationStatus) Before(other CreationStatus) bool {
	a, ok1 := statusOrder[s]
	b, ok2 := statusOrder[other]
	return ok1 && ok2 && a < b
}

// Terminal reports whether no further status can follow s.
func (s CreationStatus) Terminal() bool { return s == StatusSuccess }

// MarketCreationRequest is the validated user input for one market. It is
// consumed exactly once by the orchestrator.
type MarketCreationRequest struct {
	Title            string    `json:"title" validate:"required,max=160"`
	Category         string    `json:"category" validate:"required"`
	LockTimestamp    time.Time `json:"lockTimestamp" validate:"required,future"`
	Description      string    `json:"description" validate:"required,max=2000"`
	ResolutionSource string    `json:"resolutionSource"`
	ResolutionValue  string    `json:"resolutionValue"`
	OracleSymbol     string    `json:"oracleSymbol"`
	Ticker           string    `json:"ticker"`
	Tag              string    `json:"tag"`
}

// CreationRun is the observable state of a submitted creation request.
type CreationRun struct {
	ID        string         `json:"runId"`
	Operator  string         `json:"operator"`
	Status    CreationStatus `json:"status"`
	MarketPK  string         `json:"marketPk,omitempty"`
	Error     string         `json:"error,omitempty"`
	Done      bool           `json:"done"`
	StartedAt time.Time      `json:"startedAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// StatusEvent is published once per status transition of a run.
type StatusEvent struct {
	RunID     string         `json:"runId"`
	Status    CreationStatus `json:"status"`
	MarketPK  string         `json:"marketPk,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
