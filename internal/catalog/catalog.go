package catalog

import (
	"fmt"
	"sort"
)

// Entry is a single device in the catalog.
type Entry struct {
	DeviceType   string `json:"device_type"`
	ControlPoint string `json:"control_point"`
}

// Catalog is an immutable device/state vocabulary.
//
// Thread Safety: read-only after New returns; safe for concurrent use.
type Catalog struct {
	devices  map[string]string
	states   map[string]struct{}
	activate string
}

// New builds a Catalog from a device map, the permitted states and the
// token that means "activate". The inputs are copied.
func New(devices map[string]string, states []string, activate string) (*Catalog, error) {
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	if len(states) == 0 {
		return nil, ErrNoStates
	}

	c := &Catalog{
		devices:  make(map[string]string, len(devices)),
		states:   make(map[string]struct{}, len(states)),
		activate: activate,
	}

	for name, code := range devices {
		if name == "" || code == "" {
			return nil, fmt.Errorf("%w: %q -> %q", ErrInvalidEntry, name, code)
		}
		c.devices[name] = code
	}

	for _, s := range states {
		if s == "" {
			return nil, fmt.Errorf("%w: empty token", ErrInvalidState)
		}
		c.states[s] = struct{}{}
	}

	if _, ok := c.states[activate]; !ok {
		return nil, fmt.Errorf("%w: activate token %q is not permitted", ErrInvalidState, activate)
	}

	return c, nil
}

// LookupControlPoint returns the control-point code for a device type.
// The boolean is false when the device is not in the catalog.
func (c *Catalog) LookupControlPoint(deviceType string) (string, bool) {
	code, ok := c.devices[deviceType]
	return code, ok
}

// IsPermittedState reports whether token is in the permitted state set.
func (c *Catalog) IsPermittedState(token string) bool {
	_, ok := c.states[token]
	return ok
}

// ActivateState returns the token that maps to a true command value.
func (c *Catalog) ActivateState() string {
	return c.activate
}

// Entries returns every device sorted by device type.
func (c *Catalog) Entries() []Entry {
	entries := make([]Entry, 0, len(c.devices))
	for name, code := range c.devices {
		entries = append(entries, Entry{DeviceType: name, ControlPoint: code})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DeviceType < entries[j].DeviceType
	})
	return entries
}

// States returns the permitted state tokens in sorted order.
func (c *Catalog) States() []string {
	states := make([]string, 0, len(c.states))
	for s := range c.states {
		states = append(states, s)
	}
	sort.Strings(states)
	return states
}

// Len returns the number of devices.
func (c *Catalog) Len() int {
	return len(c.devices)
}
