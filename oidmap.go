// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// OidMap maps symbolic names to numeric OIDs and answers the reverse,
// longest-prefix lookup used to label results. It never affects what goes
// on the wire.
type OidMap struct {
	mu     sync.RWMutex
	byName map[string]OID
	byOID  map[string]string
}

// NewOidMap returns an empty map.
func NewOidMap() *OidMap {
	return &OidMap{
		byName: make(map[string]OID),
		byOID:  make(map[string]string),
	}
}

// Insert registers name for dotted. Re-inserting a name replaces its OID.
func (m *OidMap) Insert(name, dotted string) error {
	if name == "" {
		return fmt.Errorf("%w: empty OID name", ErrBadInput)
	}
	oid, err := ParseOID(dotted)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byName[name]; ok {
		if m.byOID[old.String()] == name {
			delete(m.byOID, old.String())
		}
	}
	m.byName[name] = oid
	m.byOID[oid.String()] = name
	return nil
}

// Lookup returns the OID registered for name.
func (m *OidMap) Lookup(name string) (OID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	oid, ok := m.byName[name]
	return oid.Copy(), ok
}

// Len returns the number of registered names.
func (m *OidMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byName)
}

// NameFor labels oid with the longest registered prefix, followed by the
// remaining arcs: 1.3.6.1.2.1.1.1.0 becomes system.1.0 when system is
// registered as 1.3.6.1.2.1.1. Without a match the dotted form is returned.
func (m *OidMap) NameFor(oid OID) string {
	if m == nil {
		return oid.String()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(oid); i > 0; i-- {
		name, ok := m.byOID[oid[:i].String()]
		if !ok {
			continue
		}
		if i == len(oid) {
			return name
		}
		return name + "." + oid[i:].String()
	}
	return oid.String()
}

type oidMapEntry struct {
	OID  string `json:"oid"`
	Name string `json:"name"`
}

type oidMapFile struct {
	OIDs []oidMapEntry `json:"oids"`
}

// LoadOidMap reads a map in the form {"oids":[{"oid":"1.3.6.1.2.1.1","name":"system"}]}.
func LoadOidMap(r io.Reader) (*OidMap, error) {
	var f oidMapFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decode oid map: %v", ErrBadInput, err)
	}
	m := NewOidMap()
	for _, e := range f.OIDs {
		if err := m.Insert(e.Name, e.OID); err != nil {
			return nil, err
		}
	}
	return m, nil
}
