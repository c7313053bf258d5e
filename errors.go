// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"errors"
	"fmt"
)

var (
	ErrAuthFailure      = errors.New("authentication failure")
	ErrBadInput         = errors.New("bad input")
	ErrDecryptFailure   = errors.New("decryption failure")
	ErrDiscoveryFailure = errors.New("engine discovery failure")
	ErrMalformed        = errors.New("malformed message")
	ErrNotInTimeWindow  = errors.New("not in time window")
	ErrRemoteReport     = errors.New("remote report")
	ErrSnmpError        = errors.New("snmp error")
	ErrTimeout          = errors.New("request timeout")
	ErrTransport        = errors.New("transport error")
)

// SNMPv3: User-based Security Model Report PDUs and
// error types as per https://tools.ietf.org/html/rfc3414
var (
	usmStatsUnsupportedSecLevels = MustParseOID("1.3.6.1.6.3.15.1.1.1.0")
	usmStatsNotInTimeWindows     = MustParseOID("1.3.6.1.6.3.15.1.1.2.0")
	usmStatsUnknownUserNames     = MustParseOID("1.3.6.1.6.3.15.1.1.3.0")
	usmStatsUnknownEngineIDs     = MustParseOID("1.3.6.1.6.3.15.1.1.4.0")
	usmStatsWrongDigests         = MustParseOID("1.3.6.1.6.3.15.1.1.5.0")
	usmStatsDecryptionErrors     = MustParseOID("1.3.6.1.6.3.15.1.1.6.0")
)

var reportNames = []struct {
	oid  OID
	name string
}{
	{usmStatsUnsupportedSecLevels, "usmStatsUnsupportedSecLevels"},
	{usmStatsNotInTimeWindows, "usmStatsNotInTimeWindows"},
	{usmStatsUnknownUserNames, "usmStatsUnknownUserNames"},
	{usmStatsUnknownEngineIDs, "usmStatsUnknownEngineIDs"},
	{usmStatsWrongDigests, "usmStatsWrongDigests"},
	{usmStatsDecryptionErrors, "usmStatsDecryptionErrors"},
}

// ReportError is returned when the agent answers with a Report PDU that the
// engine cannot recover from.
type ReportError struct {
	OID   OID
	Value SnmpValue
}

func (e *ReportError) Error() string {
	name := e.OID.String()
	for _, r := range reportNames {
		if r.oid.Equal(e.OID) {
			name = r.name
			break
		}
	}
	return fmt.Sprintf("remote report %s = %s", name, e.Value)
}

// Is matches ErrRemoteReport for every report, plus the specific failure a
// usmStats counter stands for.
func (e *ReportError) Is(target error) bool {
	switch target {
	case ErrRemoteReport:
		return true
	case ErrAuthFailure:
		return e.OID.Equal(usmStatsWrongDigests)
	case ErrDecryptFailure:
		return e.OID.Equal(usmStatsDecryptionErrors)
	case ErrNotInTimeWindow:
		return e.OID.Equal(usmStatsNotInTimeWindows)
	}
	return false
}

// ResponseError carries a non-zero error-status from a Response PDU.
type ResponseError struct {
	Status SNMPError
	Index  int
	// VarBind is the binding errorIndex points at, nil when the index is 0
	// or out of range.
	VarBind *VarBind
}

func (e *ResponseError) Error() string {
	if e.VarBind != nil {
		return fmt.Sprintf("snmp error %s at index %d (%s)", e.Status, e.Index, e.VarBind.Name)
	}
	return fmt.Sprintf("snmp error %s at index %d", e.Status, e.Index)
}

func (e *ResponseError) Is(target error) bool {
	return target == ErrSnmpError
}
