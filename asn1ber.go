// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Asn1BER is the type of the SNMP PDU
type Asn1BER byte

// Asn1BER's - http://www.ietf.org/rfc/rfc1442.txt
const (
	EndOfContents    Asn1BER = 0x00
	UnknownType      Asn1BER = 0x00
	Integer          Asn1BER = 0x02
	OctetString      Asn1BER = 0x04
	Null             Asn1BER = 0x05
	ObjectIdentifier Asn1BER = 0x06
	IPAddress        Asn1BER = 0x40
	Counter32        Asn1BER = 0x41
	Gauge32          Asn1BER = 0x42
	TimeTicks        Asn1BER = 0x43
	Opaque           Asn1BER = 0x44
	Counter64        Asn1BER = 0x46
	NoSuchObject     Asn1BER = 0x80
	NoSuchInstance   Asn1BER = 0x81
	EndOfMibView     Asn1BER = 0x82
)

// Unsigned32 shares the Gauge32 tag (RFC 2578 section 7.1.11).
const Unsigned32 = Gauge32

func (a Asn1BER) String() string {
	switch a {
	case Integer:
		return "Integer"
	case OctetString:
		return "OctetString"
	case Null:
		return "Null"
	case ObjectIdentifier:
		return "ObjectIdentifier"
	case IPAddress:
		return "IPAddress"
	case Counter32:
		return "Counter32"
	case Gauge32:
		return "Gauge32"
	case TimeTicks:
		return "TimeTicks"
	case Opaque:
		return "Opaque"
	case Counter64:
		return "Counter64"
	case NoSuchObject:
		return "NoSuchObject"
	case NoSuchInstance:
		return "NoSuchInstance"
	case EndOfMibView:
		return "EndOfMibView"
	default:
		return fmt.Sprintf("Asn1BER(%#x)", byte(a))
	}
}

// maxLengthOctets caps long-form lengths; nothing larger fits a UDP datagram.
const maxLengthOctets = 4

// marshalLength builds a byte representation of length
//
// http://luca.ntop.org/Teaching/Appunti/asn1.html
//
// Length octets. There are two forms: short (for lengths between 0 and 127),
// and long definite (for lengths between 0 and 2^1008 -1).
//
//   - Short form. One octet. Bit 8 has value "0" and bits 7-1 give the length.
//   - Long form. Two to 127 octets. Bit 8 of first octet has value "1" and bits
//     7-1 give the number of additional length octets. Second and following
//     octets give the length, base 256, most significant digit first.
func marshalLength(length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("length must be greater than zero")
	} else if length < 128 {
		return []byte{byte(length)}, nil
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(length))
	buf = bytes.TrimLeft(buf, "\x00")

	header := []byte{byte(0x80 | len(buf))}
	return append(header, buf...), nil
}

// parseLength parses the header of the TLV at the start of data. length is
// the size of the whole TLV (header included) and cursor the size of the
// header alone.
func parseLength(data []byte) (length int, cursor int, err error) {
	if len(data) < 2 {
		return 0, 0, fmt.Errorf("%w: truncated TLV header (%d bytes)", ErrMalformed, len(data))
	}

	switch {
	case data[1] == 0x80:
		// RFC 3417 section 8: only the definite form is used
		return 0, 0, fmt.Errorf("%w: indefinite length not supported", ErrMalformed)
	case data[1] < 0x80:
		length = int(data[1])
		cursor = 2
	default:
		numOctets := int(data[1]) & 0x7f
		if numOctets > maxLengthOctets {
			return 0, 0, fmt.Errorf("%w: length uses %d octets", ErrMalformed, numOctets)
		}
		if len(data) < 2+numOctets {
			return 0, 0, fmt.Errorf("%w: truncated length octets", ErrMalformed)
		}
		for i := 0; i < numOctets; i++ {
			length <<= 8
			length += int(data[2+i])
		}
		cursor = 2 + numOctets
	}

	length += cursor
	if length > len(data) {
		return 0, 0, fmt.Errorf("%w: TLV length %d exceeds buffer %d", ErrMalformed, length, len(data))
	}
	return length, cursor, nil
}

// marshalTLV writes a Tag-Length-Value triplet to buf using BER encoding.
func marshalTLV(buf *bytes.Buffer, tag byte, value []byte) error {
	length, err := marshalLength(len(value))
	if err != nil {
		return err
	}
	buf.WriteByte(tag)
	buf.Write(length)
	buf.Write(value)
	return nil
}

// marshalInt64 builds the minimal two's complement form of value.
func marshalInt64(value int64) []byte {
	rs := make([]byte, 8)
	binary.BigEndian.PutUint64(rs, uint64(value))

	i := 0
	for ; i < 7; i++ {
		// a leading octet is redundant when it only repeats the sign of the next
		if rs[i] == 0x00 && rs[i+1]&0x80 == 0 {
			continue
		}
		if rs[i] == 0xff && rs[i+1]&0x80 != 0 {
			continue
		}
		break
	}
	return rs[i:]
}

/*
	snmp Integer32 and INTEGER:
	-2^31 and 2^31-1 inclusive (-2147483648 to 2147483647 decimal)

	versus:

	snmp Counter32, Gauge32, TimeTicks, Unsigned32: (below)
	non-negative integer, maximum value of 2^32-1 (4294967295 decimal)
*/

// marshalInt32 builds a big-endian representation of a signed 32 bit int.
func marshalInt32(value int32) []byte {
	return marshalInt64(int64(value))
}

// marshalUint64 builds the minimal encoding of an unsigned value, prefixing
// 0x00 when the high bit would otherwise read as a sign.
func marshalUint64(value uint64) []byte {
	bs := make([]byte, 9)
	binary.BigEndian.PutUint64(bs[1:], value)
	i := 0
	for ; i < 8; i++ {
		if bs[i] != 0 || bs[i+1]&0x80 != 0 {
			break
		}
	}
	return bs[i:]
}

// Counter32, Gauge32, TimeTicks, Unsigned32
func marshalUint32(value uint32) []byte {
	return marshalUint64(uint64(value))
}

// marshalBase128Int writes n as a base-128 sub-identifier.
func marshalBase128Int(out *bytes.Buffer, n uint64) {
	if n == 0 {
		out.WriteByte(0)
		return
	}

	l := 0
	for i := n; i > 0; i >>= 7 {
		l++
	}

	for i := l - 1; i >= 0; i-- {
		o := byte(n >> uint(i*7))
		o &= 0x7f
		if i != 0 {
			o |= 0x80
		}
		out.WriteByte(o)
	}
}

// marshalObjectIdentifier packs the first two arcs as 40*a+b and the rest
// base-128.
func marshalObjectIdentifier(oid OID) ([]byte, error) {
	if len(oid) < 2 {
		return nil, fmt.Errorf("%w: OID %q needs at least two arcs", ErrBadInput, oid.String())
	}
	if oid[0] > 2 || (oid[0] < 2 && oid[1] >= 40) {
		return nil, fmt.Errorf("%w: invalid leading arcs in OID %q", ErrBadInput, oid.String())
	}

	out := new(bytes.Buffer)
	marshalBase128Int(out, uint64(oid[0])*40+uint64(oid[1]))
	for _, arc := range oid[2:] {
		marshalBase128Int(out, uint64(arc))
	}
	return out.Bytes(), nil
}

// parseBase128Int parses a base-128 encoded int from the given offset in the
// given byte slice. It returns the value and the new offset.
func parseBase128Int(data []byte, initOffset int) (ret uint64, offset int, err error) {
	offset = initOffset
	if offset < len(data) && data[offset] == 0x80 {
		return 0, 0, fmt.Errorf("%w: overlong base 128 integer", ErrMalformed)
	}
	for shifted := 0; offset < len(data); shifted++ {
		// 5 octets carry 35 bits; anything longer overflows a 32 bit arc
		if shifted > 4 {
			return 0, 0, fmt.Errorf("%w: base 128 integer too large", ErrMalformed)
		}
		ret <<= 7
		b := data[offset]
		ret |= uint64(b & 0x7f)
		offset++
		if b&0x80 == 0 {
			return ret, offset, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: truncated base 128 integer", ErrMalformed)
}

// parseObjectIdentifier parses the contents octets of an OBJECT IDENTIFIER.
func parseObjectIdentifier(src []byte) (OID, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: empty OID", ErrMalformed)
	}

	first, offset, err := parseBase128Int(src, 0)
	if err != nil {
		return nil, err
	}
	var oid OID
	switch {
	case first < 40:
		oid = OID{0, uint32(first)}
	case first < 80:
		oid = OID{1, uint32(first - 40)}
	default:
		if first-80 > math.MaxUint32 {
			return nil, fmt.Errorf("%w: OID arc out of range", ErrMalformed)
		}
		oid = OID{2, uint32(first - 80)}
	}

	for offset < len(src) {
		var v uint64
		v, offset, err = parseBase128Int(src, offset)
		if err != nil {
			return nil, err
		}
		if v > math.MaxUint32 {
			return nil, fmt.Errorf("%w: OID arc %d out of range", ErrMalformed, v)
		}
		oid = append(oid, uint32(v))
	}
	return oid, nil
}

// parseInt64 treats the given bytes as a big-endian, signed integer and
// returns the result.
func parseInt64(data []byte) (int64, error) {
	switch {
	case len(data) == 0:
		return 0, fmt.Errorf("%w: empty integer", ErrMalformed)
	case len(data) > 8:
		return 0, fmt.Errorf("%w: integer too large", ErrMalformed)
	case len(data) > 1 && ((data[0] == 0x00 && data[1]&0x80 == 0) || (data[0] == 0xff && data[1]&0x80 != 0)):
		return 0, fmt.Errorf("%w: integer not minimally encoded", ErrMalformed)
	}

	var ret int64
	for _, b := range data {
		ret <<= 8
		ret |= int64(b)
	}

	// Shift up and down in order to sign extend the result.
	ret <<= 64 - uint8(len(data))*8
	ret >>= 64 - uint8(len(data))*8
	return ret, nil
}

func parseInt32(data []byte) (int32, error) {
	ret, err := parseInt64(data)
	if err != nil {
		return 0, err
	}
	if ret < math.MinInt32 || ret > math.MaxInt32 {
		return 0, fmt.Errorf("%w: integer %d overflows int32", ErrMalformed, ret)
	}
	return int32(ret), nil
}

// parseUint64 treats the given bytes as a big-endian, unsigned integer and
// returns the result.
func parseUint64(data []byte) (uint64, error) {
	switch {
	case len(data) == 0:
		return 0, fmt.Errorf("%w: empty integer", ErrMalformed)
	case len(data) > 9 || (len(data) == 9 && data[0] != 0x00):
		return 0, fmt.Errorf("%w: integer too large", ErrMalformed)
	case len(data) > 1 && data[0] == 0x00 && data[1]&0x80 == 0:
		return 0, fmt.Errorf("%w: integer not minimally encoded", ErrMalformed)
	}

	var ret uint64
	for _, b := range data {
		ret <<= 8
		ret |= uint64(b)
	}
	return ret, nil
}

func parseUint32(data []byte) (uint32, error) {
	ret, err := parseUint64(data)
	if err != nil {
		return 0, err
	}
	if ret > math.MaxUint32 {
		return 0, fmt.Errorf("%w: integer %d overflows uint32", ErrMalformed, ret)
	}
	return uint32(ret), nil
}

// parseRawField decodes one INTEGER, OCTET STRING, OBJECT IDENTIFIER or NULL
// and returns it together with the number of bytes consumed.
func parseRawField(logger Logger, data []byte, msg string) (any, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("%w: empty data passed to parseRawField", ErrMalformed)
	}
	logger.Printf("parseRawField: %s", msg)

	length, cursor, err := parseLength(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", msg, err)
	}

	switch Asn1BER(data[0]) {
	case Integer:
		i, err := parseInt64(data[cursor:length])
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", msg, err)
		}
		return i, length, nil
	case OctetString:
		return data[cursor:length], length, nil
	case ObjectIdentifier:
		oid, err := parseObjectIdentifier(data[cursor:length])
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", msg, err)
		}
		return oid, length, nil
	case Null:
		return nil, length, nil
	}

	return nil, 0, fmt.Errorf("%w: %s: unknown field type %#x", ErrMalformed, msg, data[0])
}

// parseSequence checks data starts with the given constructed tag and returns
// its contents plus the total TLV length.
func parseSequence(data []byte, tag byte, msg string) ([]byte, int, error) {
	if len(data) == 0 || data[0] != tag {
		return nil, 0, fmt.Errorf("%w: %s: expected tag %#x", ErrMalformed, msg, tag)
	}
	length, cursor, err := parseLength(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", msg, err)
	}
	return data[cursor:length], length, nil
}
