package finding

import "strings"

// Severity is a normalized risk level. Findings keep the risk text scripts
// gave them; Severity is only used for display and metrics.
type Severity string

const (
	Critical Severity = "critical"
	High     Severity = "high"
	Medium   Severity = "medium"
	Low      Severity = "low"
	Info     Severity = "info"
	Unknown  Severity = "unknown"
)

// ParseSeverity maps free-form risk text to a Severity.
func ParseSeverity(risk string) Severity {
	switch strings.ToLower(strings.TrimSpace(risk)) {
	case "critical", "crit":
		return Critical
	case "high":
		return High
	case "medium", "med", "moderate":
		return Medium
	case "low":
		return Low
	case "info", "informational", "information", "none":
		return Info
	default:
		return Unknown
	}
}

// Score orders severities: Critical=5 down to Info=1, Unknown=0.
func (s Severity) Score() int {
	switch s {
	case Critical:
		return 5
	case High:
		return 4
	case Medium:
		return 3
	case Low:
		return 2
	case Info:
		return 1
	default:
		return 0
	}
}

func (s Severity) String() string { return string(s) }
