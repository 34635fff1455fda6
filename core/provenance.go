// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package core

// Provenance is the set of endpoints a message has already been forwarded
// through. It is immutable: Extend returns a new set and never touches the
// receiver, so a set may be shared across hops without copying.
//
// The zero value is the empty set.
type Provenance struct {
	ids []EndpointID
}

// NewProvenance builds a provenance set from the given endpoint IDs.
func NewProvenance(ids ...EndpointID) Provenance {
	p := Provenance{}
	for _, id := range ids {
		p = p.Extend(id)
	}
	return p
}

// Contains reports whether id is in the set.
func (p Provenance) Contains(id EndpointID) bool {
	for _, have := range p.ids {
		if have == id {
			return true
		}
	}
	return false
}

// Extend returns a new set containing all IDs of p plus id. Adding an ID
// already present returns an equivalent set.
func (p Provenance) Extend(id EndpointID) Provenance {
	if p.Contains(id) {
		return p
	}
	ids := make([]EndpointID, len(p.ids), len(p.ids)+1)
	copy(ids, p.ids)
	return Provenance{ids: append(ids, id)}
}

// Len returns the number of endpoints in the set.
func (p Provenance) Len() int {
	return len(p.ids)
}

// IDs returns a copy of the set contents.
func (p Provenance) IDs() []EndpointID {
	out := make([]EndpointID, len(p.ids))
	copy(out, p.ids)
	return out
}
