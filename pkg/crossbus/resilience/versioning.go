package resilience

import (
	"fmt"

	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

// Migrator performs one single-step migration of a payload from one
// version to the next.
type Migrator func(payload interface{}) (interface{}, error)

// VersionRegistry stamps outbound payloads with a per-message-type version
// and migrates inbound payloads from their received version to the
// current one via a registered chain of one-step migrators.
type VersionRegistry struct {
	current    map[string]int
	migrations map[string]map[int]Migrator // messageType -> fromVersion -> migrator to fromVersion+1
}

func NewVersionRegistry() *VersionRegistry {
	return &VersionRegistry{
		current:    make(map[string]int),
		migrations: make(map[string]map[int]Migrator),
	}
}

// SetCurrent declares the current version for messageType. Defaults to 1
// if never set.
func (v *VersionRegistry) SetCurrent(messageType string, version int) {
	v.current[messageType] = version
}

// CurrentVersion returns the declared current version for messageType.
func (v *VersionRegistry) CurrentVersion(messageType string) int {
	if ver, ok := v.current[messageType]; ok {
		return ver
	}
	return 1
}

// RegisterMigration adds a one-step migrator taking messageType from
// fromVersion to fromVersion+1.
func (v *VersionRegistry) RegisterMigration(messageType string, fromVersion int, m Migrator) {
	if v.migrations[messageType] == nil {
		v.migrations[messageType] = make(map[int]Migrator)
	}
	v.migrations[messageType][fromVersion] = m
}

// Stamp returns (payload, version) for an outbound message of the given
// type.
func (v *VersionRegistry) Stamp(messageType string, payload interface{}) (interface{}, int) {
	return payload, v.CurrentVersion(messageType)
}

// Migrate walks payload from receivedVersion up to the current version one
// step at a time. A missing step or a failing migrator is returned as a
// CodeVersionMismatch error.
func (v *VersionRegistry) Migrate(messageType string, receivedVersion int, payload interface{}) (interface{}, error) {
	target := v.CurrentVersion(messageType)
	current := payload
	for ver := receivedVersion; ver < target; ver++ {
		chain, ok := v.migrations[messageType]
		if !ok {
			return nil, xerrors.From(xerrors.CodeVersionMismatch, map[string]interface{}{
				"messageType": messageType, "from": receivedVersion, "to": target,
			})
		}
		step, ok := chain[ver]
		if !ok {
			return nil, xerrors.From(xerrors.CodeVersionMismatch, map[string]interface{}{
				"messageType": messageType, "missingStep": fmt.Sprintf("%d->%d", ver, ver+1),
			})
		}
		next, err := step(current)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeVersionMismatch, err, map[string]interface{}{
				"messageType": messageType, "step": fmt.Sprintf("%d->%d", ver, ver+1),
			})
		}
		current = next
	}
	return current, nil
}
