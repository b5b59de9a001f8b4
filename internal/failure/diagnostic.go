package failure

import (
	"fmt"
	"strings"

	"github.com/roach88/recon/internal/value"
)

// Level is a diagnostic level, the host's view of a message.
type Level int

const (
	LevelRemark Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "remark"
	}
}

// LevelFor maps a record severity to a diagnostic level. Corruption has no
// level of its own and reports as a remark.
func LevelFor(s Severity) Level {
	switch s {
	case SeverityWarning:
		return LevelWarning
	case SeverityError:
		return LevelError
	default:
		return LevelRemark
	}
}

// Resolution marks whether a diagnostic describes a resolved failure.
type Resolution int

const (
	Unmarked Resolution = iota
	Resolved
	Unresolved
)

// Diagnostic is one message surfaced to the caller.
type Diagnostic struct {
	Level      Level
	Message    string
	Kind       string
	Entities   []value.EntityID
	Resolution Resolution
}

// Text renders the diagnostic.
//
// Failures above warning severity carry a "✔ " or "❌ " mark. A record with an
// empty description is rendered as its level and kind. Entity ids follow as
// " {1, 2} ".
func (d Diagnostic) Text() string {
	var b strings.Builder
	b.WriteString(d.Message)
	for i, id := range d.Entities {
		if i == 0 {
			fmt.Fprintf(&b, " {%d", id)
		} else {
			fmt.Fprintf(&b, ", %d", id)
		}
	}
	if len(d.Entities) > 0 {
		b.WriteString("} ")
	}
	return b.String()
}

// FromRecord builds the diagnostic for a failure record.
func FromRecord(r *Record, res Resolution) Diagnostic {
	level := LevelFor(r.Severity)

	mark := ""
	if r.Severity > SeverityWarning {
		switch res {
		case Resolved:
			mark = "✔ "
		case Unresolved:
			mark = "❌ "
		}
	}

	msg := r.Description
	if msg == "" {
		msg = fmt.Sprintf("%s {%s}", capitalize(level.String()), r.Kind)
	}

	return Diagnostic{
		Level:      level,
		Message:    mark + msg,
		Kind:       r.Kind,
		Entities:   append([]value.EntityID(nil), r.Entities...),
		Resolution: res,
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
