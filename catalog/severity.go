package catalog

import (
	"fmt"
	"strings"
)

// Severity represents the severity level assigned to a catalog query.
type Severity string

const (
	// SeverityCritical indicates a direct path to domain compromise.
	// Examples: DCSync rights for non-admins, unconstrained delegation on users
	SeverityCritical Severity = "critical"

	// SeverityHigh indicates a likely privilege escalation.
	// Examples: Kerberoastable privileged accounts, AS-REP roastable users
	SeverityHigh Severity = "high"

	// SeverityMedium indicates a weakness that widens the attack surface.
	SeverityMedium Severity = "medium"

	// SeverityLow indicates a hygiene issue.
	SeverityLow Severity = "low"

	// SeverityInfo indicates an informational check.
	SeverityInfo Severity = "info"
)

var severityWeights = map[Severity]int{
	SeverityCritical: 5,
	SeverityHigh:     4,
	SeverityMedium:   3,
	SeverityLow:      2,
	SeverityInfo:     1,
}

// IsValid returns true if the severity level is valid. The empty severity is
// valid and means "unrated".
func (s Severity) IsValid() bool {
	if s == "" {
		return true
	}
	_, ok := severityWeights[s]
	return ok
}

// Weight returns the numeric weight of the severity, 0 for unrated.
func (s Severity) Weight() int {
	return severityWeights[s]
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// ParseSeverity parses a case-insensitive severity name.
func ParseSeverity(s string) (Severity, error) {
	severity := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !severity.IsValid() {
		return "", fmt.Errorf("invalid severity: %s", s)
	}
	return severity, nil
}
