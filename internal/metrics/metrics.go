package metrics

// Recorder is what the core components record against.
type Recorder interface {
	IncPayment(status string)
	IncSearch(status string)
	ObservePollAttempts(attempts int)
	SetWalletBalance(balance float64)
}

// Noop satisfies Recorder for tests and for components wired without metrics.
type Noop struct{}

func (Noop) IncPayment(string)       {}
func (Noop) IncSearch(string)        {}
func (Noop) ObservePollAttempts(int) {}
func (Noop) SetWalletBalance(float64) {}
