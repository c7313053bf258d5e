// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOID(t *testing.T) {
	tests := []struct {
		in   string
		want OID
		err  bool
	}{
		{in: "1.3.6.1.2.1.1.1.0", want: OID{1, 3, 6, 1, 2, 1, 1, 1, 0}},
		{in: ".1.3.6.1.2.1.1.1.0", want: OID{1, 3, 6, 1, 2, 1, 1, 1, 0}},
		{in: " 1.3.6 ", want: OID{1, 3, 6}},
		{in: "0.0", want: OID{0, 0}},
		{in: "2.100.3", want: OID{2, 100, 3}},
		{in: "1.3.6.1.4.1.4294967295", want: OID{1, 3, 6, 1, 4, 1, 4294967295}},
		{in: "", err: true},
		{in: ".", err: true},
		{in: "1", err: true},
		{in: "1..3", err: true},
		{in: "1.3.", err: true},
		{in: "1.3.-6", err: true},
		{in: "1.3.6.1.4.1.4294967296", err: true},
		{in: "iso.3.6", err: true},
		{in: "3.1", err: true},
		{in: "1.40", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOID(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrBadInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMustParseOIDPanics(t *testing.T) {
	assert.Panics(t, func() { MustParseOID("not.an.oid") })
}

func TestOIDOrdering(t *testing.T) {
	a := MustParseOID("1.3.6.1.2.1.1")
	b := MustParseOID("1.3.6.1.2.1.1.1.0")
	c := MustParseOID("1.3.6.1.2.1.2")

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, -1, b.Compare(c))
	assert.Equal(t, 1, c.Compare(a))
	assert.Equal(t, 0, a.Compare(a.Copy()))

	// 1.3.6.1.2.1.10 sorts after 1.3.6.1.2.1.9 numerically, not textually
	assert.Equal(t, 1, MustParseOID("1.3.6.1.2.1.10").Compare(MustParseOID("1.3.6.1.2.1.9")))

	assert.True(t, a.IsStrictPrefixOf(b))
	assert.False(t, a.IsStrictPrefixOf(a))
	assert.False(t, a.IsStrictPrefixOf(c))
	assert.False(t, b.IsStrictPrefixOf(a))
	assert.True(t, b.HasPrefix(a))
	assert.True(t, a.HasPrefix(a))
	assert.False(t, a.HasPrefix(b))
}

func TestOIDCopyIsIndependent(t *testing.T) {
	a := MustParseOID("1.3.6.1")
	b := a.Copy()
	b[3] = 9
	assert.Equal(t, "1.3.6.1", a.String())
	assert.Equal(t, "1.3.6.9", b.String())
}

func TestOIDText(t *testing.T) {
	var got struct {
		Root OID `json:"root"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"root":".1.3.6.1.2.1.1"}`), &got))
	assert.Equal(t, "1.3.6.1.2.1.1", got.Root.String())

	out, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"root":"1.3.6.1.2.1.1"}`, string(out))

	err = json.Unmarshal([]byte(`{"root":"1.3.x"}`), &got)
	assert.ErrorIs(t, err, ErrBadInput)
}

func FuzzParseOID(f *testing.F) {
	for _, seed := range []string{"1.3.6.1.2.1.1.1.0", ".1.3", "2.999", "1.3.6.1.4.1.4294967295"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, s string) {
		oid, err := ParseOID(s)
		if err != nil {
			return
		}
		again, err := ParseOID(oid.String())
		if err != nil {
			t.Fatalf("reparse %q: %v", oid.String(), err)
		}
		if !oid.Equal(again) {
			t.Fatalf("reparse of %q gave %q", oid, again)
		}
		if strings.HasPrefix(oid.String(), ".") {
			t.Fatalf("leading dot in %q", oid)
		}
		if _, err := marshalObjectIdentifier(oid); err != nil {
			t.Fatalf("marshal %q: %v", oid, err)
		}
	})
}
