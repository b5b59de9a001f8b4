package engine

import "fmt"

// Strategy decides which transaction a component's pass runs in.
type Strategy string

const (
	// PerComponent opens, commits and releases a transaction for every
	// pass. This is the default.
	PerComponent Strategy = "per-component"

	// PerSolution joins the standing transaction of a Solution; the
	// Solution commits once after every component has run.
	PerSolution Strategy = "per-solution"
)

// ParseStrategy validates s. Empty means PerComponent.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return PerComponent, nil
	case PerComponent, PerSolution:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("invalid strategy %q: must be %s or %s", s, PerComponent, PerSolution)
	}
}
