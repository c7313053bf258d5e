// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"bytes"
	"fmt"
)

// UsmSecurityParameters is the msgSecurityParameters field of the User
// Security Model (RFC 3414 section 2.4).
type UsmSecurityParameters struct {
	AuthoritativeEngineID    []byte
	AuthoritativeEngineBoots uint32
	AuthoritativeEngineTime  uint32
	UserName                 string
	AuthenticationParameters []byte
	PrivacyParameters        []byte

	// authParamOffset is the offset of the authentication parameter contents,
	// relative to the start of the encoded parameters when marshalling and to
	// the start of the whole message after unmarshalling.
	authParamOffset int
}

// Copy returns a deep copy of sp.
func (sp *UsmSecurityParameters) Copy() *UsmSecurityParameters {
	return &UsmSecurityParameters{
		AuthoritativeEngineID:    bytes.Clone(sp.AuthoritativeEngineID),
		AuthoritativeEngineBoots: sp.AuthoritativeEngineBoots,
		AuthoritativeEngineTime:  sp.AuthoritativeEngineTime,
		UserName:                 sp.UserName,
		AuthenticationParameters: bytes.Clone(sp.AuthenticationParameters),
		PrivacyParameters:        bytes.Clone(sp.PrivacyParameters),
		authParamOffset:          sp.authParamOffset,
	}
}

// SafeString returns a loggable form of sp. The localized keys never live in
// this struct, so nothing sensitive can leak through it.
func (sp *UsmSecurityParameters) SafeString() string {
	return fmt.Sprintf("AuthoritativeEngineID:%x, AuthoritativeEngineBoots:%d, AuthoritativeEngineTime:%d, UserName:%s, AuthenticationParameters:%x, PrivacyParameters:%x",
		sp.AuthoritativeEngineID,
		sp.AuthoritativeEngineBoots,
		sp.AuthoritativeEngineTime,
		sp.UserName,
		sp.AuthenticationParameters,
		sp.PrivacyParameters,
	)
}

// marshal a snmp version 3 security parameters field for the User Security
// Model. The authentication parameters are written as a zeroed placeholder
// when flags ask for authentication; the returned offset points at it.
func (sp *UsmSecurityParameters) marshal(flags SnmpV3MsgFlags) ([]byte, int, error) {
	var buf bytes.Buffer

	// msgAuthoritativeEngineID
	if err := marshalTLV(&buf, byte(OctetString), sp.AuthoritativeEngineID); err != nil {
		return nil, 0, err
	}
	// msgAuthoritativeEngineBoots
	if err := marshalTLV(&buf, byte(Integer), marshalInt64(int64(sp.AuthoritativeEngineBoots))); err != nil {
		return nil, 0, err
	}
	// msgAuthoritativeEngineTime
	if err := marshalTLV(&buf, byte(Integer), marshalInt64(int64(sp.AuthoritativeEngineTime))); err != nil {
		return nil, 0, err
	}
	// msgUserName
	if err := marshalTLV(&buf, byte(OctetString), []byte(sp.UserName)); err != nil {
		return nil, 0, err
	}

	authParamStart := buf.Len() + 2 // +2 indicates tag + length
	// msgAuthenticationParameters
	if flags&AuthNoPriv > 0 {
		buf.Write([]byte{byte(OctetString), usmAuthParamLen})
		buf.Write(make([]byte, usmAuthParamLen))
	} else {
		buf.Write([]byte{byte(OctetString), 0})
	}
	// msgPrivacyParameters
	var privParams []byte
	if flags&AuthPriv == AuthPriv {
		privParams = sp.PrivacyParameters
	}
	if err := marshalTLV(&buf, byte(OctetString), privParams); err != nil {
		return nil, 0, err
	}

	// wrap security parameters in a sequence
	out := new(bytes.Buffer)
	if err := marshalTLV(out, byte(Sequence), buf.Bytes()); err != nil {
		return nil, 0, err
	}
	authParamStart += out.Len() - buf.Len()
	return out.Bytes(), authParamStart, nil
}

// unmarshal decodes the USM SEQUENCE in data. base is the offset of data
// inside the whole message and is used to record authParamOffset.
func (sp *UsmSecurityParameters) unmarshal(logger Logger, data []byte, base int) error {
	body, length, err := parseSequence(data, byte(Sequence), "usm security parameters")
	if err != nil {
		return fmt.Errorf("error parsing SNMPV3 User Security Model parameters: %w", err)
	}
	if length != len(data) {
		return fmt.Errorf("%w: trailing bytes after usm security parameters", ErrMalformed)
	}
	headerLen := len(data) - len(body)
	cursor := 0

	next := func(name string) (any, error) {
		if cursor >= len(body) {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformed, name)
		}
		raw, count, err := parseRawField(logger, body[cursor:], name)
		if err != nil {
			return nil, fmt.Errorf("error parsing SNMPV3 User Security Model %s: %w", name, err)
		}
		cursor += count
		return raw, nil
	}

	raw, err := next("msgAuthoritativeEngineID")
	if err != nil {
		return err
	}
	engineID, ok := raw.([]byte)
	if !ok {
		return fmt.Errorf("%w: msgAuthoritativeEngineID is not an OCTET STRING", ErrMalformed)
	}
	sp.AuthoritativeEngineID = bytes.Clone(engineID)
	logger.Printf("Parsed authoritativeEngineID %x", engineID)

	if raw, err = next("msgAuthoritativeEngineBoots"); err != nil {
		return err
	}
	boots, ok := raw.(int64)
	if !ok || boots < 0 || boots > maxRequestID {
		return fmt.Errorf("%w: bad msgAuthoritativeEngineBoots %v", ErrMalformed, raw)
	}
	sp.AuthoritativeEngineBoots = uint32(boots)
	logger.Printf("Parsed authoritativeEngineBoots %d", boots)

	if raw, err = next("msgAuthoritativeEngineTime"); err != nil {
		return err
	}
	engineTime, ok := raw.(int64)
	if !ok || engineTime < 0 || engineTime > maxRequestID {
		return fmt.Errorf("%w: bad msgAuthoritativeEngineTime %v", ErrMalformed, raw)
	}
	sp.AuthoritativeEngineTime = uint32(engineTime)
	logger.Printf("Parsed authoritativeEngineTime %d", engineTime)

	if raw, err = next("msgUserName"); err != nil {
		return err
	}
	userName, ok := raw.([]byte)
	if !ok {
		return fmt.Errorf("%w: msgUserName is not an OCTET STRING", ErrMalformed)
	}
	sp.UserName = string(userName)
	logger.Printf("Parsed userName %s", userName)

	if raw, err = next("msgAuthenticationParameters"); err != nil {
		return err
	}
	authParams, ok := raw.([]byte)
	if !ok {
		return fmt.Errorf("%w: msgAuthenticationParameters is not an OCTET STRING", ErrMalformed)
	}
	sp.AuthenticationParameters = bytes.Clone(authParams)
	// contents start after the tag and the length octets
	sp.authParamOffset = base + headerLen + cursor - len(authParams)

	if raw, err = next("msgPrivacyParameters"); err != nil {
		return err
	}
	privParams, ok := raw.([]byte)
	if !ok {
		return fmt.Errorf("%w: msgPrivacyParameters is not an OCTET STRING", ErrMalformed)
	}
	sp.PrivacyParameters = bytes.Clone(privParams)
	logger.Printf("Parsed privacyParameters %x", privParams)

	if cursor != len(body) {
		return fmt.Errorf("%w: trailing bytes in usm security parameters", ErrMalformed)
	}
	return nil
}

// usmEncrypt encrypts a serialized scopedPDU. salt becomes the privacy
// parameters; AES also mixes sp's boots and time into the IV.
func usmEncrypt(proto SnmpV3PrivProtocol, privKey []byte, sp *UsmSecurityParameters, salt, plaintext []byte) ([]byte, error) {
	switch proto {
	case DES:
		return desEncrypt(plaintext, privKey, salt)
	case AES:
		return aesEncrypt(plaintext, privKey, sp.AuthoritativeEngineBoots, sp.AuthoritativeEngineTime, salt)
	}
	return nil, fmt.Errorf("%w: unsupported privacy protocol %s", ErrBadInput, proto)
}

// usmDecrypt reverses usmEncrypt using the privacy parameters, boots and
// time carried in the received message.
func usmDecrypt(proto SnmpV3PrivProtocol, privKey []byte, sp *UsmSecurityParameters, ciphertext []byte) ([]byte, error) {
	switch proto {
	case DES:
		return desDecrypt(ciphertext, privKey, sp.PrivacyParameters)
	case AES:
		return aesDecrypt(ciphertext, privKey, sp.AuthoritativeEngineBoots, sp.AuthoritativeEngineTime, sp.PrivacyParameters)
	}
	return nil, fmt.Errorf("%w: unsupported privacy protocol %s", ErrDecryptFailure, proto)
}
