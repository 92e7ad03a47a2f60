package domain

import (
	"fmt"
	"time"
)

type VersionStatus string

const (
	VersionStatusPending VersionStatus = "PENDING_REGISTRATION"
	VersionStatusReady   VersionStatus = "READY"
	VersionStatusFailed  VersionStatus = "FAILED_REGISTRATION"
)

// IsTerminal reports whether the registry has finished processing the version.
func (s VersionStatus) IsTerminal() bool {
	return s == VersionStatusReady || s == VersionStatusFailed
}

// RegistryEntry is a model version created by the registry. Version numbers are
// assigned by the registry, monotonically per name.
type RegistryEntry struct {
	Name      string        `json:"name"`
	Version   int64         `json:"version"`
	Source    string        `json:"source"`
	RunID     string        `json:"run_id"`
	Status    VersionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// ID returns the "<name>:<version>" reference of the entry.
func (e *RegistryEntry) ID() string {
	return fmt.Sprintf("%s:%d", e.Name, e.Version)
}
