// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// OID is a numeric object identifier such as 1.3.6.1.2.1.1.1.0.
type OID []uint32

// ParseOID parses a dotted decimal OID. A single leading dot is accepted.
func ParseOID(dotted string) (OID, error) {
	s := strings.TrimPrefix(strings.TrimSpace(dotted), ".")
	if s == "" {
		return nil, fmt.Errorf("%w: empty OID", ErrBadInput)
	}

	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: OID %q needs at least two arcs", ErrBadInput, dotted)
	}
	oid := make(OID, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid OID %q", ErrBadInput, dotted)
		}
		oid = append(oid, uint32(v))
	}
	if oid[0] > 2 || (oid[0] < 2 && oid[1] >= 40) {
		return nil, fmt.Errorf("%w: invalid leading arcs in OID %q", ErrBadInput, dotted)
	}
	return oid, nil
}

// MustParseOID is like ParseOID but panics on error. Intended for constants.
func MustParseOID(dotted string) OID {
	oid, err := ParseOID(dotted)
	if err != nil {
		panic(err)
	}
	return oid
}

// String returns the dotted decimal form without a leading dot.
func (o OID) String() string {
	var b strings.Builder
	for i, arc := range o {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(arc), 10))
	}
	return b.String()
}

// Compare orders OIDs lexicographically, returning -1, 0 or +1.
func (o OID) Compare(other OID) int {
	return slices.Compare(o, other)
}

// Equal reports whether both OIDs have identical arcs.
func (o OID) Equal(other OID) bool {
	return slices.Equal(o, other)
}

// HasPrefix reports whether prefix matches the first len(prefix) arcs of o.
func (o OID) HasPrefix(prefix OID) bool {
	return len(prefix) <= len(o) && slices.Equal(o[:len(prefix)], prefix)
}

// IsStrictPrefixOf reports whether o is a proper prefix of other, ie other
// lies inside the subtree rooted at o.
func (o OID) IsStrictPrefixOf(other OID) bool {
	return len(o) < len(other) && other.HasPrefix(o)
}

// Copy returns an OID that shares no memory with o.
func (o OID) Copy() OID {
	return slices.Clone(o)
}

// MarshalText renders the OID in dotted form, so OIDs serialise as JSON strings.
func (o OID) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses a dotted OID.
func (o *OID) UnmarshalText(text []byte) error {
	oid, err := ParseOID(string(text))
	if err != nil {
		return err
	}
	*o = oid
	return nil
}
