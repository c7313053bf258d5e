// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"bytes"
	"fmt"
	"strings"
)

//
// SNMPv3 message framing (RFC 3412 section 6).
//

// Version3 is the only msgVersion this package speaks.
const Version3 = 0x3

// SnmpV3MsgFlags contains various message flags to describe Authentication,
// Privacy, and whether a report PDU must be sent.
type SnmpV3MsgFlags uint8

// Possible values of SnmpV3MsgFlags
const (
	NoAuthNoPriv SnmpV3MsgFlags = 0x0 // No authentication, and no privacy
	AuthNoPriv   SnmpV3MsgFlags = 0x1 // Authentication and no privacy
	AuthPriv     SnmpV3MsgFlags = 0x3 // Authentication and privacy
	Reportable   SnmpV3MsgFlags = 0x4 // Report PDU must be sent.
)

func (f SnmpV3MsgFlags) String() string {
	var parts []string
	switch f & AuthPriv {
	case NoAuthNoPriv:
		parts = append(parts, "NoAuthNoPriv")
	case AuthNoPriv:
		parts = append(parts, "AuthNoPriv")
	case AuthPriv:
		parts = append(parts, "AuthPriv")
	default:
		parts = append(parts, fmt.Sprintf("Invalid(%d)", f&AuthPriv))
	}
	if f&Reportable != 0 {
		parts = append(parts, "Reportable")
	}
	return strings.Join(parts, "|")
}

// SnmpV3SecurityModel describes the security model used by a SnmpV3 connection
type SnmpV3SecurityModel uint8

// UserSecurityModel is the only SnmpV3SecurityModel currently implemented.
const UserSecurityModel SnmpV3SecurityModel = 3

func (m SnmpV3SecurityModel) String() string {
	if m == UserSecurityModel {
		return "UserSecurityModel"
	}
	return fmt.Sprintf("SnmpV3SecurityModel(%d)", uint8(m))
}

// SnmpV3Message is a whole SNMPv3 message. Exactly one of ScopedPDU and
// EncryptedPDU is meaningful: EncryptedPDU when MsgFlags carries privacy.
type SnmpV3Message struct {
	MsgID              uint32
	MsgMaxSize         uint32
	MsgFlags           SnmpV3MsgFlags
	SecurityModel      SnmpV3SecurityModel
	SecurityParameters *UsmSecurityParameters
	ScopedPDU          *ScopedPDU
	EncryptedPDU       []byte
}

func (m *SnmpV3Message) encrypted() bool {
	return m.MsgFlags&AuthPriv == AuthPriv
}

func (m *SnmpV3Message) authenticated() bool {
	return m.MsgFlags&AuthNoPriv != 0
}

// SafeString returns a loggable description of the message.
func (m *SnmpV3Message) SafeString() string {
	sp := ""
	if m.SecurityParameters != nil {
		sp = m.SecurityParameters.SafeString()
	}
	pdu := "encrypted"
	if m.ScopedPDU != nil && m.ScopedPDU.PDU != nil {
		p := m.ScopedPDU.PDU
		pdu = fmt.Sprintf("PDUType:%s, RequestID:%d, Error:%s, ErrorIndex:%d, Variables:%d",
			p.Type, p.RequestID, p.Error, p.ErrorIndex, len(p.Variables))
	}
	return fmt.Sprintf("MsgID:%d, MsgMaxSize:%d, MsgFlags:%s, SecurityModel:%s, SecurityParameters:{%s}, %s",
		m.MsgID,
		m.MsgMaxSize,
		m.MsgFlags,
		m.SecurityModel,
		sp,
		pdu,
	)
}

// -- Marshalling Logic --------------------------------------------------------

// marshalMsg serializes the message. When the flags ask for authentication,
// the returned offset locates the zeroed 12 byte authentication placeholder
// which authenticate must then patch.
func (m *SnmpV3Message) marshalMsg() ([]byte, int, error) {
	if m.SecurityParameters == nil {
		return nil, 0, fmt.Errorf("%w: missing security parameters", ErrBadInput)
	}
	buf := new(bytes.Buffer)

	// version
	buf.Write([]byte{2, 1, byte(Version3)})

	// msgGlobalData
	header := new(bytes.Buffer)
	if err := marshalTLV(header, byte(Integer), marshalInt64(int64(m.MsgID))); err != nil {
		return nil, 0, err
	}
	if err := marshalTLV(header, byte(Integer), marshalInt64(int64(m.MsgMaxSize))); err != nil {
		return nil, 0, err
	}
	if err := marshalTLV(header, byte(OctetString), []byte{byte(m.MsgFlags)}); err != nil {
		return nil, 0, err
	}
	if err := marshalTLV(header, byte(Integer), marshalInt64(int64(m.SecurityModel))); err != nil {
		return nil, 0, err
	}
	if err := marshalTLV(buf, byte(Sequence), header.Bytes()); err != nil {
		return nil, 0, err
	}

	// msgSecurityParameters, an OCTET STRING wrapping the USM sequence
	sp, spAuthOffset, err := m.SecurityParameters.marshal(m.MsgFlags)
	if err != nil {
		return nil, 0, err
	}
	spLength, err := marshalLength(len(sp))
	if err != nil {
		return nil, 0, err
	}
	buf.WriteByte(byte(OctetString))
	buf.Write(spLength)
	authParamStart := buf.Len() + spAuthOffset
	buf.Write(sp)

	// msgData
	if m.encrypted() {
		if err = marshalTLV(buf, byte(OctetString), m.EncryptedPDU); err != nil {
			return nil, 0, err
		}
	} else {
		if m.ScopedPDU == nil {
			return nil, 0, fmt.Errorf("%w: missing scopedPDU", ErrBadInput)
		}
		scoped, err := m.ScopedPDU.marshal()
		if err != nil {
			return nil, 0, err
		}
		buf.Write(scoped)
	}

	// build up resulting msg - sequence, length then the tail (buf)
	msg := new(bytes.Buffer)
	msg.WriteByte(byte(Sequence))
	bufLengthBytes, err := marshalLength(buf.Len())
	if err != nil {
		return nil, 0, err
	}
	msg.Write(bufLengthBytes)
	authParamStart += msg.Len()
	if _, err = buf.WriteTo(msg); err != nil {
		return nil, 0, err
	}

	if m.MsgMaxSize > 0 && msg.Len() > int(m.MsgMaxSize) {
		return nil, 0, fmt.Errorf("%w: message of %d bytes exceeds msgMaxSize %d", ErrBadInput, msg.Len(), m.MsgMaxSize)
	}
	return msg.Bytes(), authParamStart, nil
}

// -- Unmarshalling Logic ------------------------------------------------------

// unmarshalMsgHeader parses everything up to msgData: version, msgGlobalData
// and the USM parameters. The returned cursor points at msgData.
func unmarshalMsgHeader(logger Logger, packet []byte) (*SnmpV3Message, int, error) {
	if len(packet) < 2 {
		return nil, 0, fmt.Errorf("%w: cannot unmarshal empty packet", ErrMalformed)
	}

	// First bytes should be 0x30
	if PDUType(packet[0]) != Sequence {
		return nil, 0, fmt.Errorf("%w: invalid packet header", ErrMalformed)
	}
	length, cursor, err := parseLength(packet)
	if err != nil {
		return nil, 0, err
	}
	if len(packet) != length {
		return nil, 0, fmt.Errorf("%w: error verifying packet sanity: Got %d Expected: %d", ErrMalformed, len(packet), length)
	}
	logger.Printf("Packet sanity verified, we got all the bytes (%d)", length)

	// Parse SNMP Version
	rawVersion, count, err := parseRawField(logger, packet[cursor:], "version")
	if err != nil {
		return nil, 0, fmt.Errorf("error parsing SNMP packet version: %w", err)
	}
	cursor += count
	if version, ok := rawVersion.(int64); !ok || version != Version3 {
		return nil, 0, fmt.Errorf("%w: unsupported SNMP version %v", ErrMalformed, rawVersion)
	}

	// msgGlobalData
	if cursor >= len(packet) {
		return nil, 0, fmt.Errorf("%w: truncated after version", ErrMalformed)
	}
	global, count, err := parseSequence(packet[cursor:], byte(Sequence), "msgGlobalData")
	if err != nil {
		return nil, 0, err
	}
	cursor += count

	msg := &SnmpV3Message{}
	fields := make([]any, 0, 4)
	for gc := 0; gc < len(global); {
		raw, n, err := parseRawField(logger, global[gc:], "msgGlobalData field")
		if err != nil {
			return nil, 0, fmt.Errorf("error parsing SNMPV3 message header: %w", err)
		}
		fields = append(fields, raw)
		gc += n
	}
	if len(fields) != 4 {
		return nil, 0, fmt.Errorf("%w: msgGlobalData has %d fields", ErrMalformed, len(fields))
	}

	msgID, ok := fields[0].(int64)
	if !ok || msgID < 0 || msgID > maxRequestID {
		return nil, 0, fmt.Errorf("%w: bad msgID %v", ErrMalformed, fields[0])
	}
	msg.MsgID = uint32(msgID)
	logger.Printf("Parsed message ID %d", msgID)

	maxSize, ok := fields[1].(int64)
	if !ok || maxSize < 0 || maxSize > maxRequestID {
		return nil, 0, fmt.Errorf("%w: bad msgMaxSize %v", ErrMalformed, fields[1])
	}
	msg.MsgMaxSize = uint32(maxSize)

	flags, ok := fields[2].([]byte)
	if !ok || len(flags) != 1 {
		return nil, 0, fmt.Errorf("%w: bad msgFlags %v", ErrMalformed, fields[2])
	}
	msg.MsgFlags = SnmpV3MsgFlags(flags[0])
	if msg.MsgFlags&AuthPriv == 0x2 {
		return nil, 0, fmt.Errorf("%w: privacy without authentication", ErrMalformed)
	}
	logger.Printf("parsed msg flags %s", msg.MsgFlags)

	secModel, ok := fields[3].(int64)
	if !ok || secModel != int64(UserSecurityModel) {
		return nil, 0, fmt.Errorf("%w: unsupported security model %v", ErrMalformed, fields[3])
	}
	msg.SecurityModel = UserSecurityModel

	// msgSecurityParameters
	if cursor >= len(packet) || Asn1BER(packet[cursor]) != OctetString {
		return nil, 0, fmt.Errorf("%w: missing msgSecurityParameters", ErrMalformed)
	}
	spLength, spCursor, err := parseLength(packet[cursor:])
	if err != nil {
		return nil, 0, err
	}
	msg.SecurityParameters = &UsmSecurityParameters{}
	err = msg.SecurityParameters.unmarshal(logger, packet[cursor+spCursor:cursor+spLength], cursor+spCursor)
	if err != nil {
		return nil, 0, err
	}
	cursor += spLength

	if cursor >= len(packet) {
		return nil, 0, fmt.Errorf("%w: missing msgData", ErrMalformed)
	}
	return msg, cursor, nil
}

// unmarshalData parses msgData at cursor: the ciphertext when the message is
// encrypted, otherwise the plaintext scopedPDU.
func (m *SnmpV3Message) unmarshalData(logger Logger, packet []byte, cursor int) error {
	if cursor >= len(packet) {
		return fmt.Errorf("%w: cannot unmarshal payload, packet length %d cursor %d", ErrMalformed, len(packet), cursor)
	}
	data := packet[cursor:]
	if m.encrypted() {
		raw, count, err := parseRawField(logger, data, "encryptedPDU")
		if err != nil {
			return err
		}
		ciphertext, ok := raw.([]byte)
		if !ok || count != len(data) {
			return fmt.Errorf("%w: bad encryptedPDU", ErrMalformed)
		}
		m.EncryptedPDU = bytes.Clone(ciphertext)
		return nil
	}

	_, length, err := parseSequence(data, byte(Sequence), "scopedPDU")
	if err != nil {
		return err
	}
	if length != len(data) {
		return fmt.Errorf("%w: trailing bytes after scopedPDU", ErrMalformed)
	}
	m.ScopedPDU, err = unmarshalScopedPDU(logger, data)
	return err
}

// unmarshalMsg parses a full message without decrypting it.
func unmarshalMsg(logger Logger, packet []byte) (*SnmpV3Message, error) {
	msg, cursor, err := unmarshalMsgHeader(logger, packet)
	if err != nil {
		return nil, err
	}
	if err = msg.unmarshalData(logger, packet, cursor); err != nil {
		return nil, err
	}
	return msg, nil
}
