// Package keys builds the composite Redis keys used by the tracker.
//
// Every key lives under a namespace prefix and joins its fields with
// core.Separator, in this order:
//
//	ns:experiments                              set of experiment names
//	ns:counter_keys                             set of every counter key
//	ns:experiment:counter_keys                  set of one experiment's counter keys
//	ns:counters:experiment:event:variant        integer counter
//
// Dedup markers are not namespaced: they are the hex SHA1 of
// "counterKey eventID".
package keys

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"lamed/internal/core"
)

// Namespace is a tenant partition of the keyspace.
type Namespace string

// CounterKey identifies one (namespace, experiment, event, variant) counter.
type CounterKey string

func join(parts ...string) string {
	return strings.Join(parts, core.Separator)
}

// Experiments is the set of experiment names registered in ns.
func (ns Namespace) Experiments() string {
	return join(string(ns), "experiments")
}

// CounterKeys is the set of all counter keys in ns.
func (ns Namespace) CounterKeys() string {
	return join(string(ns), "counter_keys")
}

// ExperimentCounterKeys is the set of counter keys belonging to experiment.
func (ns Namespace) ExperimentCounterKeys(experiment string) string {
	return join(string(ns), experiment, "counter_keys")
}

// Counter returns the counter key for an event type and variant of experiment.
func (ns Namespace) Counter(experiment, event, variant string) CounterKey {
	return CounterKey(join(string(ns), "counters", experiment, event, variant))
}

// ParseCounter splits a counter key registered under experiment back into its
// event type and variant. A key that does not have that exact shape means the
// index is corrupt.
func (ns Namespace) ParseCounter(experiment string, key CounterKey) (event, variant string, err error) {
	prefix := join(string(ns), "counters", experiment) + core.Separator
	rest, ok := strings.CutPrefix(string(key), prefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not under %q", core.ErrCorruptCounterKey, key, prefix)
	}
	event, variant, ok = strings.Cut(rest, core.Separator)
	if !ok || event == "" || variant == "" || strings.Contains(variant, core.Separator) {
		return "", "", fmt.Errorf("%w: %q", core.ErrCorruptCounterKey, key)
	}
	return event, variant, nil
}

// Marker returns the dedup marker key for an event id counted against key.
func Marker(key CounterKey, eventID string) string {
	sum := sha1.Sum([]byte(string(key) + " " + eventID))
	return hex.EncodeToString(sum[:])
}
