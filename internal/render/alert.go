// Package render holds the operator-facing projection of workflow state.
package render

// Level is the severity of an alert box.
type Level string

const (
	Info    Level = "info"
	Success Level = "success"
	Danger  Level = "danger"
)

// Alert is one status box: a level and its lines of text.
// The zero Alert renders nothing.
type Alert struct {
	Level Level    `json:"level,omitempty"`
	Lines []string `json:"lines,omitempty"`
}

// Empty reports whether there is nothing to show.
func (a Alert) Empty() bool {
	return len(a.Lines) == 0
}

// New builds an alert.
func New(level Level, lines ...string) Alert {
	return Alert{Level: level, Lines: lines}
}
