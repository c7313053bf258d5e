// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"bytes"
	"fmt"
)

// PDUType describes which SNMP Protocol Data Unit is being sent.
type PDUType byte

// The PDU types this client sends or accepts.
const (
	Sequence       PDUType = 0x30
	GetRequest     PDUType = 0xa0
	GetNextRequest PDUType = 0xa1
	GetResponse    PDUType = 0xa2
	Report         PDUType = 0xa8 // v3
)

func (p PDUType) String() string {
	switch p {
	case Sequence:
		return "Sequence"
	case GetRequest:
		return "GetRequest"
	case GetNextRequest:
		return "GetNextRequest"
	case GetResponse:
		return "GetResponse"
	case Report:
		return "Report"
	default:
		return fmt.Sprintf("PDUType(%#x)", byte(p))
	}
}

// SNMPError is the type for the error-status field of a PDU.
type SNMPError uint8

// SNMP Errors
const (
	NoError             SNMPError = iota // No error occurred. This code is also used in all request PDUs, since they have no error status to report.
	TooBig                               // The size of the Response-PDU would be too large to transport.
	NoSuchName                           // The name of a requested object was not found.
	BadValue                             // A value in the request didn't match the structure that the recipient of the request had for the object.
	ReadOnly                             // An attempt was made to set a variable that has an Access value indicating that it is read-only.
	GenErr                               // An error occurred other than one indicated by a more specific error code in this table.
	NoAccess                             // Access was denied to the object for security reasons.
	WrongType                            // The object type in a variable binding is incorrect for the object.
	WrongLength                          // A variable binding specifies a length incorrect for the object.
	WrongEncoding                        // A variable binding specifies an encoding incorrect for the object.
	WrongValue                           // The value given in a variable binding is not possible for the object.
	NoCreation                           // A specified variable does not exist and cannot be created.
	InconsistentValue                    // A variable binding specifies a value that could be held by the variable but cannot be assigned to it at this time.
	ResourceUnavailable                  // An attempt to set a variable required a resource that is not available.
	CommitFailed                         // An attempt to set a particular variable failed.
	UndoFailed                           // An attempt to set a particular variable as part of a group of variables failed, and the attempt to then undo the setting of other variables was not successful.
	AuthorizationError                   // A problem occurred in authorization.
	NotWritable                          // The variable cannot be written or created.
	InconsistentName                     // The name in a variable binding specifies a variable that does not exist.
)

var snmpErrorNames = [...]string{
	"NoError", "TooBig", "NoSuchName", "BadValue", "ReadOnly", "GenErr",
	"NoAccess", "WrongType", "WrongLength", "WrongEncoding", "WrongValue",
	"NoCreation", "InconsistentValue", "ResourceUnavailable", "CommitFailed",
	"UndoFailed", "AuthorizationError", "NotWritable", "InconsistentName",
}

func (e SNMPError) String() string {
	if int(e) < len(snmpErrorNames) {
		return snmpErrorNames[e]
	}
	return fmt.Sprintf("SNMPError(%d)", uint8(e))
}

// maxRequestID bounds request-id and msgID to [1, 2^31-1].
const maxRequestID = 0x7FFFFFFF

// VarBind struct represents an SNMP Varbind.
type VarBind struct {
	Name  OID
	Value SnmpValue
}

// PDU is a Get, GetNext, Response or Report PDU.
type PDU struct {
	Type       PDUType
	RequestID  uint32
	Error      SNMPError
	ErrorIndex int
	Variables  []VarBind
}

// newRequestPDU builds a GetRequest or GetNextRequest asking for oids.
func newRequestPDU(pduType PDUType, requestID uint32, oids []OID) (*PDU, error) {
	if pduType != GetRequest && pduType != GetNextRequest {
		return nil, fmt.Errorf("%w: unsupported request type %s", ErrBadInput, pduType)
	}
	if len(oids) == 0 {
		return nil, fmt.Errorf("%w: empty OID list", ErrBadInput)
	}
	if requestID == 0 || requestID > maxRequestID {
		return nil, fmt.Errorf("%w: request id %d out of range", ErrBadInput, requestID)
	}
	pdu := &PDU{Type: pduType, RequestID: requestID, Variables: make([]VarBind, 0, len(oids))}
	for _, oid := range oids {
		pdu.Variables = append(pdu.Variables, VarBind{Name: oid, Value: NewUnspecified()})
	}
	return pdu, nil
}

// newProbePDU builds the empty GetRequest used during engine discovery.
func newProbePDU(requestID uint32) *PDU {
	return &PDU{Type: GetRequest, RequestID: requestID}
}

// FailedVarBind returns the binding flagged by ErrorIndex, or nil when the
// index is zero or outside the binding list.
func (p *PDU) FailedVarBind() *VarBind {
	if p.Error == NoError || p.ErrorIndex < 1 || p.ErrorIndex > len(p.Variables) {
		return nil
	}
	return &p.Variables[p.ErrorIndex-1]
}

// marshal a PDU
func (p *PDU) marshal() ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := marshalTLV(buf, byte(Integer), marshalInt64(int64(p.RequestID))); err != nil {
		return nil, err
	}
	if err := marshalTLV(buf, byte(Integer), marshalInt64(int64(p.Error))); err != nil {
		return nil, err
	}
	if err := marshalTLV(buf, byte(Integer), marshalInt64(int64(p.ErrorIndex))); err != nil {
		return nil, err
	}

	vbl, err := marshalVBL(p.Variables)
	if err != nil {
		return nil, fmt.Errorf("marshalPDU: unable to marshal varbind list: %w", err)
	}
	buf.Write(vbl)

	pdu := new(bytes.Buffer)
	if err = marshalTLV(pdu, byte(p.Type), buf.Bytes()); err != nil {
		return nil, fmt.Errorf("marshalPDU: unable to marshal pdu: %w", err)
	}
	return pdu.Bytes(), nil
}

// marshal a varbind list
func marshalVBL(vbs []VarBind) ([]byte, error) {
	vblBuf := new(bytes.Buffer)
	for _, vb := range vbs {
		enc, err := marshalVarbind(vb)
		if err != nil {
			return nil, err
		}
		vblBuf.Write(enc)
	}

	out := new(bytes.Buffer)
	if err := marshalTLV(out, byte(Sequence), vblBuf.Bytes()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// marshalVarbind encodes an SNMP variable binding (varbind) as BER.
// Returns a Sequence TLV containing the OID and its associated value:
//
//	Sequence {
//	  ObjectIdentifier (vb.Name)
//	  <Value TLV>      (vb.Value)
//	}
func marshalVarbind(vb VarBind) ([]byte, error) {
	oid, err := marshalObjectIdentifier(vb.Name)
	if err != nil {
		return nil, err
	}
	tmpBuf := new(bytes.Buffer)
	if err = marshalTLV(tmpBuf, byte(ObjectIdentifier), oid); err != nil {
		return nil, err
	}
	if err = marshalValue(tmpBuf, vb.Value); err != nil {
		return nil, err
	}

	vbBuf := new(bytes.Buffer)
	if err = marshalTLV(vbBuf, byte(Sequence), tmpBuf.Bytes()); err != nil {
		return nil, err
	}
	return vbBuf.Bytes(), nil
}

// unmarshalPDU decodes a complete PDU TLV.
func unmarshalPDU(logger Logger, packet []byte) (*PDU, error) {
	if len(packet) == 0 {
		return nil, fmt.Errorf("%w: empty PDU", ErrMalformed)
	}
	pduType := PDUType(packet[0])
	switch pduType {
	case GetRequest, GetNextRequest, GetResponse, Report:
	default:
		return nil, fmt.Errorf("%w: unknown PDUType %#x", ErrMalformed, packet[0])
	}
	logger.Printf("unmarshalPDU: meet PDUType %s", pduType)

	body, length, err := parseSequence(packet, packet[0], "pdu")
	if err != nil {
		return nil, err
	}
	if length != len(packet) {
		return nil, fmt.Errorf("%w: trailing bytes after PDU: got %d expected %d", ErrMalformed, len(packet), length)
	}

	pdu := &PDU{Type: pduType}
	cursor := 0

	rawRequestID, count, err := parseRawField(logger, body[cursor:], "request id")
	if err != nil {
		return nil, fmt.Errorf("error parsing SNMP packet request ID: %w", err)
	}
	cursor += count
	requestID, ok := rawRequestID.(int64)
	if !ok || requestID < 0 || requestID > maxRequestID {
		return nil, fmt.Errorf("%w: bad request id %v", ErrMalformed, rawRequestID)
	}
	pdu.RequestID = uint32(requestID)

	if cursor >= len(body) {
		return nil, fmt.Errorf("%w: truncated PDU after request id", ErrMalformed)
	}
	rawError, count, err := parseRawField(logger, body[cursor:], "error-status")
	if err != nil {
		return nil, fmt.Errorf("error parsing SNMP packet error: %w", err)
	}
	cursor += count
	errorStatus, ok := rawError.(int64)
	if !ok || errorStatus < 0 || errorStatus > 255 {
		return nil, fmt.Errorf("%w: bad error-status %v", ErrMalformed, rawError)
	}
	pdu.Error = SNMPError(errorStatus)

	if cursor >= len(body) {
		return nil, fmt.Errorf("%w: truncated PDU after error-status", ErrMalformed)
	}
	rawErrorIndex, count, err := parseRawField(logger, body[cursor:], "error index")
	if err != nil {
		return nil, fmt.Errorf("error parsing SNMP packet error index: %w", err)
	}
	cursor += count
	errorIndex, ok := rawErrorIndex.(int64)
	if !ok || errorIndex < 0 || errorIndex > maxRequestID {
		return nil, fmt.Errorf("%w: bad error-index %v", ErrMalformed, rawErrorIndex)
	}
	pdu.ErrorIndex = int(errorIndex)

	if pdu.Variables, err = unmarshalVBL(logger, body[cursor:]); err != nil {
		return nil, err
	}
	return pdu, nil
}

// unmarshal a Varbind list
func unmarshalVBL(logger Logger, packet []byte) ([]VarBind, error) {
	body, length, err := parseSequence(packet, byte(Sequence), "varbind list")
	if err != nil {
		return nil, err
	}
	if length != len(packet) {
		return nil, fmt.Errorf("%w: error verifying: packet length %d vbl length %d", ErrMalformed, len(packet), length)
	}
	logger.Printf("vblLength: %d", length)

	var vbs []VarBind
	for cursor := 0; cursor < len(body); {
		vb, vbLength, err := parseSequence(body[cursor:], byte(Sequence), "varbind")
		if err != nil {
			return nil, err
		}
		cursor += vbLength

		rawOid, oidLength, err := parseRawField(logger, vb, "OID")
		if err != nil {
			return nil, fmt.Errorf("error parsing OID Value: %w", err)
		}
		oid, ok := rawOid.(OID)
		if !ok {
			return nil, fmt.Errorf("%w: varbind name is not an OID", ErrMalformed)
		}
		logger.Printf("OID: %s", oid)

		if oidLength >= len(vb) {
			return nil, fmt.Errorf("%w: varbind %s has no value", ErrMalformed, oid)
		}
		value, valueLength, err := decodeValue(logger, vb[oidLength:])
		if err != nil {
			return nil, fmt.Errorf("error decoding value: %w", err)
		}
		if oidLength+valueLength != len(vb) {
			return nil, fmt.Errorf("%w: trailing bytes in varbind %s", ErrMalformed, oid)
		}

		vbs = append(vbs, VarBind{Name: oid, Value: value})
	}
	return vbs, nil
}

// ScopedPDU is a PDU plus its context addressing (RFC 3412 section 6).
type ScopedPDU struct {
	ContextEngineID []byte
	ContextName     string
	PDU             *PDU
}

func (s *ScopedPDU) marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := marshalTLV(buf, byte(OctetString), s.ContextEngineID); err != nil {
		return nil, err
	}
	if err := marshalTLV(buf, byte(OctetString), []byte(s.ContextName)); err != nil {
		return nil, err
	}
	pdu, err := s.PDU.marshal()
	if err != nil {
		return nil, err
	}
	buf.Write(pdu)

	out := new(bytes.Buffer)
	if err = marshalTLV(out, byte(Sequence), buf.Bytes()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// unmarshalScopedPDU decodes a plaintext scopedPDU. Bytes after the SEQUENCE
// are ignored so DES padding can be left in place.
func unmarshalScopedPDU(logger Logger, data []byte) (*ScopedPDU, error) {
	body, _, err := parseSequence(data, byte(Sequence), "scopedPDU")
	if err != nil {
		return nil, err
	}

	s := &ScopedPDU{}
	cursor := 0
	rawEngineID, count, err := parseRawField(logger, body, "contextEngineID")
	if err != nil {
		return nil, err
	}
	cursor += count
	engineID, ok := rawEngineID.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: contextEngineID is not an OCTET STRING", ErrMalformed)
	}
	s.ContextEngineID = bytes.Clone(engineID)

	if cursor >= len(body) {
		return nil, fmt.Errorf("%w: truncated scopedPDU", ErrMalformed)
	}
	rawName, count, err := parseRawField(logger, body[cursor:], "contextName")
	if err != nil {
		return nil, err
	}
	cursor += count
	name, ok := rawName.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: contextName is not an OCTET STRING", ErrMalformed)
	}
	s.ContextName = string(name)

	if cursor >= len(body) {
		return nil, fmt.Errorf("%w: scopedPDU has no PDU", ErrMalformed)
	}
	if s.PDU, err = unmarshalPDU(logger, body[cursor:]); err != nil {
		return nil, err
	}
	return s, nil
}
