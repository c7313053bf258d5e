// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
)

// SnmpValue is a tagged SNMP value. Type selects which Go type Value holds:
//
//	Integer                         int32
//	OctetString, Opaque             []byte
//	ObjectIdentifier                OID
//	IPAddress                       net.IP (4 bytes)
//	Counter32, Gauge32, TimeTicks   uint32
//	Counter64                       uint64
//	Null, NoSuchObject,
//	NoSuchInstance, EndOfMibView    nil
//
// Values built by the constructors below, or decoded from the wire, always
// respect that table.
type SnmpValue struct {
	Type  Asn1BER
	Value any
}

// NewInteger returns an Integer.
func NewInteger(v int32) SnmpValue { return SnmpValue{Type: Integer, Value: v} }

// NewOctetString returns an OctetString holding v.
func NewOctetString(v []byte) SnmpValue { return SnmpValue{Type: OctetString, Value: v} }

// NewObjectID returns an ObjectIdentifier.
func NewObjectID(v OID) SnmpValue { return SnmpValue{Type: ObjectIdentifier, Value: v} }

// NewCounter32 returns a Counter32.
func NewCounter32(v uint32) SnmpValue { return SnmpValue{Type: Counter32, Value: v} }

// NewGauge32 returns a Gauge32, also used for Unsigned32.
func NewGauge32(v uint32) SnmpValue { return SnmpValue{Type: Gauge32, Value: v} }

// NewTimeTicks returns a TimeTicks in hundredths of a second.
func NewTimeTicks(v uint32) SnmpValue { return SnmpValue{Type: TimeTicks, Value: v} }

// NewOpaque returns an Opaque holding v.
func NewOpaque(v []byte) SnmpValue { return SnmpValue{Type: Opaque, Value: v} }

// NewCounter64 returns a Counter64.
func NewCounter64(v uint64) SnmpValue { return SnmpValue{Type: Counter64, Value: v} }

// NewException returns one of NoSuchObject, NoSuchInstance or EndOfMibView.
func NewException(t Asn1BER) SnmpValue { return SnmpValue{Type: t} }

// NewUnspecified returns the Null placed in request bindings.
func NewUnspecified() SnmpValue { return SnmpValue{Type: Null} }

// NewIPAddress returns an IPAddress; ip must be an IPv4 address.
func NewIPAddress(ip net.IP) SnmpValue { return SnmpValue{Type: IPAddress, Value: ip.To4()} }

// IsException reports whether v is one of the response-only markers.
func (v SnmpValue) IsException() bool {
	return v.Type == NoSuchObject || v.Type == NoSuchInstance || v.Type == EndOfMibView
}

// Int returns the payload of an Integer.
func (v SnmpValue) Int() (int32, bool) {
	i, ok := v.Value.(int32)
	return i, ok && v.Type == Integer
}

// Bytes returns the payload of an OctetString or Opaque.
func (v SnmpValue) Bytes() ([]byte, bool) {
	b, ok := v.Value.([]byte)
	return b, ok && (v.Type == OctetString || v.Type == Opaque)
}

// Uint32 returns the payload of a Counter32, Gauge32 or TimeTicks.
func (v SnmpValue) Uint32() (uint32, bool) {
	u, ok := v.Value.(uint32)
	return u, ok && (v.Type == Counter32 || v.Type == Gauge32 || v.Type == TimeTicks)
}

// Uint64 returns the payload of a Counter64.
func (v SnmpValue) Uint64() (uint64, bool) {
	u, ok := v.Value.(uint64)
	return u, ok && v.Type == Counter64
}

// ObjectID returns the payload of an ObjectIdentifier.
func (v SnmpValue) ObjectID() (OID, bool) {
	o, ok := v.Value.(OID)
	return o, ok && v.Type == ObjectIdentifier
}

// IP returns the payload of an IPAddress.
func (v SnmpValue) IP() (net.IP, bool) {
	ip, ok := v.Value.(net.IP)
	return ip, ok && v.Type == IPAddress
}

// Equal compares tag and payload.
func (v SnmpValue) Equal(other SnmpValue) bool {
	if v.Type != other.Type {
		return false
	}
	switch a := v.Value.(type) {
	case []byte:
		b, ok := other.Value.([]byte)
		return ok && bytes.Equal(a, b)
	case OID:
		b, ok := other.Value.(OID)
		return ok && a.Equal(b)
	case net.IP:
		b, ok := other.Value.(net.IP)
		return ok && a.Equal(b)
	default:
		return v.Value == other.Value
	}
}

const (
	secondsInMinute = 60
	secondsInHour   = 60 * secondsInMinute
	secondsInDay    = 24 * secondsInHour
)

func (v SnmpValue) String() string {
	switch v.Type {
	case OctetString:
		b, _ := v.Value.([]byte)
		return string(b)
	case Opaque:
		b, _ := v.Value.([]byte)
		return fmt.Sprintf("% X", b)
	case ObjectIdentifier:
		o, _ := v.Value.(OID)
		return o.String()
	case IPAddress:
		ip, _ := v.Value.(net.IP)
		return ip.String()
	case TimeTicks:
		x, _ := v.Value.(uint32)
		hundredths := x % 100
		secs := x / 100
		days := secs / secondsInDay
		secs %= secondsInDay
		hours := secs / secondsInHour
		secs %= secondsInHour
		return fmt.Sprintf("(%d) %d day(s) %d:%02d:%02d.%02d", x, days, hours, secs/secondsInMinute, secs%secondsInMinute, hundredths)
	case Null:
		return "Unspecified"
	case NoSuchObject:
		return "No such object"
	case NoSuchInstance:
		return "No such instance"
	case EndOfMibView:
		return "End of MIB view"
	default:
		return fmt.Sprintf("%v", v.Value)
	}
}

type jsonValue struct {
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
}

// MarshalJSON writes the tag name and a JSON friendly payload.
func (v SnmpValue) MarshalJSON() ([]byte, error) {
	out := jsonValue{Type: v.Type.String()}
	switch v.Type {
	case OctetString, ObjectIdentifier, IPAddress:
		out.Value = v.String()
	case Null, NoSuchObject, NoSuchInstance, EndOfMibView:
	default:
		out.Value = v.Value
	}
	return json.Marshal(out)
}

// marshalValue appends the TLV for v to buf.
func marshalValue(buf *bytes.Buffer, v SnmpValue) error {
	switch v.Type {
	case Null, NoSuchObject, NoSuchInstance, EndOfMibView:
		buf.WriteByte(byte(v.Type))
		buf.WriteByte(byte(EndOfContents))
		return nil
	case Integer:
		i, ok := v.Int()
		if !ok {
			return fmt.Errorf("%w: Integer payload is %T", ErrBadInput, v.Value)
		}
		return marshalTLV(buf, byte(Integer), marshalInt32(i))
	case OctetString, Opaque:
		b, ok := v.Bytes()
		if !ok {
			return fmt.Errorf("%w: %s payload is %T", ErrBadInput, v.Type, v.Value)
		}
		return marshalTLV(buf, byte(v.Type), b)
	case ObjectIdentifier:
		o, ok := v.ObjectID()
		if !ok {
			return fmt.Errorf("%w: ObjectIdentifier payload is %T", ErrBadInput, v.Value)
		}
		enc, err := marshalObjectIdentifier(o)
		if err != nil {
			return err
		}
		return marshalTLV(buf, byte(ObjectIdentifier), enc)
	case IPAddress:
		ip, ok := v.IP()
		if !ok || len(ip.To4()) != net.IPv4len {
			return fmt.Errorf("%w: IPAddress payload must be 4 bytes", ErrBadInput)
		}
		return marshalTLV(buf, byte(IPAddress), ip.To4())
	case Counter32, Gauge32, TimeTicks:
		u, ok := v.Uint32()
		if !ok {
			return fmt.Errorf("%w: %s payload is %T", ErrBadInput, v.Type, v.Value)
		}
		return marshalTLV(buf, byte(v.Type), marshalUint32(u))
	case Counter64:
		u, ok := v.Uint64()
		if !ok {
			return fmt.Errorf("%w: Counter64 payload is %T", ErrBadInput, v.Value)
		}
		return marshalTLV(buf, byte(Counter64), marshalUint64(u))
	}
	return fmt.Errorf("%w: unable to marshal value type %s", ErrBadInput, v.Type)
}

// decodeValue decodes the value TLV at the start of data. It returns the
// value and the number of bytes it occupied.
func decodeValue(logger Logger, data []byte) (SnmpValue, int, error) {
	length, cursor, err := parseLength(data)
	if err != nil {
		return SnmpValue{}, 0, err
	}
	content := data[cursor:length]

	var retVal SnmpValue
	switch Asn1BER(data[0]) {
	case Integer:
		// 0x02. signed
		logger.Print("decodeValue: type is Integer")
		i, err := parseInt32(content)
		if err != nil {
			return SnmpValue{}, 0, err
		}
		retVal = NewInteger(i)
	case OctetString:
		// 0x04
		logger.Print("decodeValue: type is OctetString")
		retVal = NewOctetString(bytes.Clone(content))
	case Null:
		// 0x05
		logger.Print("decodeValue: type is Null")
		retVal = NewUnspecified()
	case ObjectIdentifier:
		// 0x06
		logger.Print("decodeValue: type is ObjectIdentifier")
		o, err := parseObjectIdentifier(content)
		if err != nil {
			return SnmpValue{}, 0, err
		}
		retVal = NewObjectID(o)
	case IPAddress:
		// 0x40
		logger.Print("decodeValue: type is IPAddress")
		if len(content) != net.IPv4len {
			return SnmpValue{}, 0, fmt.Errorf("%w: got ipaddress len %d, expected 4", ErrMalformed, len(content))
		}
		retVal = NewIPAddress(net.IPv4(content[0], content[1], content[2], content[3]))
	case Counter32, Gauge32, TimeTicks:
		// 0x41, 0x42, 0x43. unsigned
		logger.Printf("decodeValue: type is %s", Asn1BER(data[0]))
		u, err := parseUint32(content)
		if err != nil {
			return SnmpValue{}, 0, err
		}
		retVal = SnmpValue{Type: Asn1BER(data[0]), Value: u}
	case Opaque:
		// 0x44
		logger.Print("decodeValue: type is Opaque")
		retVal = NewOpaque(bytes.Clone(content))
	case Counter64:
		// 0x46
		logger.Print("decodeValue: type is Counter64")
		u, err := parseUint64(content)
		if err != nil {
			return SnmpValue{}, 0, err
		}
		retVal = NewCounter64(u)
	case NoSuchObject, NoSuchInstance, EndOfMibView:
		// 0x80, 0x81, 0x82
		logger.Printf("decodeValue: type is %s", Asn1BER(data[0]))
		if len(content) != 0 {
			return SnmpValue{}, 0, fmt.Errorf("%w: %s carries a payload", ErrMalformed, Asn1BER(data[0]))
		}
		retVal = NewException(Asn1BER(data[0]))
	default:
		logger.Printf("decodeValue: type %x isn't implemented", data[0])
		return SnmpValue{}, 0, fmt.Errorf("%w: unsupported value type %#x", ErrMalformed, data[0])
	}
	if logger.Enabled() {
		logger.Printf("decodeValue: value is %s", retVal)
	}
	return retVal, length, nil
}
