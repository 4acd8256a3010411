package strategy

// State is the previous-bar memory a strategy needs for cross-over detection.
// It belongs to exactly one session (one backtest run or one real-time
// caller) and must not be shared.
type State struct {
	PrevRSI float64 `json:"prev_rsi"`
	HasRSI  bool    `json:"has_rsi"`

	PrevMACD       float64 `json:"prev_macd"`
	PrevMACDSignal float64 `json:"prev_macd_signal"`
	HasMACD        bool    `json:"has_macd"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{}
}

// Reset forgets all previous-bar values.
func (s *State) Reset() {
	*s = State{}
}

func orFresh(st *State) *State {
	if st == nil {
		return NewState()
	}
	return st
}
