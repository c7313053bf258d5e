// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"context"
	"encoding/json"
	"strings"
)

// WalkFlags reports why a walk ended early without failing.
type WalkFlags uint8

const (
	// WalkRegressed is set when the agent returned an OID that did not
	// advance past the previous one.
	WalkRegressed WalkFlags = 1 << iota
	// WalkTruncated is set when the walk hit Client.MaxWalkBindings.
	WalkTruncated
)

func (f WalkFlags) String() string {
	var parts []string
	if f&WalkRegressed != 0 {
		parts = append(parts, "WalkRegressed")
	}
	if f&WalkTruncated != 0 {
		parts = append(parts, "WalkTruncated")
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "|")
}

// MarshalJSON writes the flags by name.
func (f WalkFlags) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// walk issues GetNext requests from root until the agent leaves the subtree.
// The bindings gathered so far are returned even when err is non-nil.
func (s *session) walk(ctx context.Context, root OID, maxBindings int) ([]VarBind, WalkFlags, error) {
	var out []VarBind
	var flags WalkFlags
	cursor := root

	for {
		pdu, err := s.exchange(ctx, GetNextRequest, []OID{cursor})
		if err != nil {
			return out, flags, err
		}
		if len(pdu.Variables) == 0 {
			s.logger.Print("walk: empty response, stopping")
			return out, flags, nil
		}

		vb := pdu.Variables[0]
		switch {
		case vb.Value.Type == EndOfMibView:
			s.logger.Printf("walk: end of MIB view after %s", cursor)
			return out, flags, nil
		case vb.Name.Compare(cursor) <= 0:
			s.logger.Printf("walk: agent regressed from %s to %s", cursor, vb.Name)
			return out, flags | WalkRegressed, nil
		case !root.IsStrictPrefixOf(vb.Name):
			s.logger.Printf("walk: %s is outside %s", vb.Name, root)
			return out, flags, nil
		}

		out = append(out, vb)
		cursor = vb.Name
		if len(out) >= maxBindings {
			s.logger.Printf("walk: truncated at %d bindings", len(out))
			return out, flags | WalkTruncated, nil
		}
	}
}
