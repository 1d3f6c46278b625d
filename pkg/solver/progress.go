package solver

// ProgressFunc receives a completion percentage in [0, 100] and a short message.
// It is called synchronously on the solving goroutine.
type ProgressFunc func(percent int, message string)

// Observer receives solver instrumentation events.
type Observer interface {
	ObserveLookup(cached bool)
	ObserveSolve(kind string, converged bool, evaluations int, seconds float64)
}

type nopObserver struct{}

func (nopObserver) ObserveLookup(bool) {}
func (nopObserver) ObserveSolve(string, bool, int, float64) {}

func (s *Solver) report(percent int, message string) {
	if s.progress == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	s.progress(percent, message)
}

// scaled maps step i of n onto the percentage band [from, to].
func scaled(from, to, i, n int) int {
	if n <= 0 {
		return to
	}
	return from + (to-from)*i/n
}
