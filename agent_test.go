// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"bytes"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// agentUser is a USM user as the authoritative side stores it.
type agentUser struct {
	name           string
	authProto      SnmpV3AuthProtocol
	authPassphrase string
	privProto      SnmpV3PrivProtocol
	privPassphrase string
	authKey        []byte
	privKey        []byte
}

func newAgentUser(engineID []byte, name string, authProto SnmpV3AuthProtocol, authPass string,
	privProto SnmpV3PrivProtocol, privPass string) (*agentUser, error) {
	authKey, err := genLocalizedKey(authProto, authPass, engineID)
	if err != nil {
		return nil, err
	}
	privKey, err := genLocalizedKey(authProto, privPass, engineID)
	if err != nil {
		return nil, err
	}
	return &agentUser{
		name:           name,
		authProto:      authProto,
		authPassphrase: authPass,
		privProto:      privProto,
		privPassphrase: privPass,
		authKey:        authKey,
		privKey:        privKey,
	}, nil
}

// agentMessage is a message sent by the authoritative engine.
type agentMessage struct {
	engineID   []byte
	boots      uint32
	engineTime uint32
	msgID      uint32
	flags      SnmpV3MsgFlags
	userName   string
	// user signs and encrypts; unused for noAuthNoPriv
	user *agentUser
	salt uint64
	pdu  *PDU
}

func (m agentMessage) encode() ([]byte, error) {
	usp := &UsmSecurityParameters{
		AuthoritativeEngineID:    m.engineID,
		AuthoritativeEngineBoots: m.boots,
		AuthoritativeEngineTime:  m.engineTime,
		UserName:                 m.userName,
	}
	msg := &SnmpV3Message{
		MsgID:              m.msgID,
		MsgMaxSize:         defaultMaxMsgSize,
		MsgFlags:           m.flags,
		SecurityModel:      UserSecurityModel,
		SecurityParameters: usp,
		ScopedPDU:          &ScopedPDU{ContextEngineID: m.engineID, PDU: m.pdu},
	}
	if msg.encrypted() {
		plaintext, err := msg.ScopedPDU.marshal()
		if err != nil {
			return nil, err
		}
		if m.user.privProto == DES {
			usp.PrivacyParameters = desSalt(m.boots, uint32(m.salt))
		} else {
			usp.PrivacyParameters = aesSalt(m.salt)
		}
		if msg.EncryptedPDU, err = usmEncrypt(m.user.privProto, m.user.privKey, usp, usp.PrivacyParameters, plaintext); err != nil {
			return nil, err
		}
	}
	out, offset, err := msg.marshalMsg()
	if err != nil {
		return nil, err
	}
	if msg.authenticated() {
		if err = authenticate(m.user.authProto, m.user.authKey, out, offset); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// decodeAgentRequest parses a request and, when it is encrypted, decrypts it
// with user's keys.
func decodeAgentRequest(packet []byte, user *agentUser) (*SnmpV3Message, *PDU, error) {
	msg, err := unmarshalMsg(Logger{}, packet)
	if err != nil {
		return nil, nil, err
	}
	if !msg.encrypted() {
		return msg, msg.ScopedPDU.PDU, nil
	}
	plaintext, err := usmDecrypt(user.privProto, user.privKey, msg.SecurityParameters, msg.EncryptedPDU)
	if err != nil {
		return nil, nil, err
	}
	scoped, err := unmarshalScopedPDU(Logger{}, plaintext)
	if err != nil {
		return nil, nil, err
	}
	msg.ScopedPDU = scoped
	return msg, scoped.PDU, nil
}

// testAgent is an in-process authoritative USM engine answering Get and
// GetNext over UDP on the loopback interface.
type testAgent struct {
	conn *net.UDPConn
	done chan struct{}

	// silent drops every request unanswered.
	silent atomic.Bool

	mu       sync.Mutex
	engineID []byte
	boots    uint32
	start    time.Time
	timeBase uint32
	users    map[string]*agentUser
	mib      map[string]SnmpValue
	order    []OID
	salt     uint64
	counters map[string]uint32

	// getNext replaces the MIB lookup for GetNext when set.
	getNext func(OID) VarBind
	// forceNotInTimeWindow answers that many requests carrying bindings with
	// a notInTimeWindow report.
	forceNotInTimeWindow int
	// responseSkew is added to the engine time of responses only.
	responseSkew uint32
	// noSuchName answers a Get for an unknown OID with errorStatus noSuchName
	// instead of a noSuchObject binding.
	noSuchName bool

	requests   int
	msgIDs     []uint32
	requestIDs []uint32
}

func newTestAgent(t *testing.T) *testAgent {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	a := &testAgent{
		conn:     conn,
		done:     make(chan struct{}),
		engineID: bytes.Clone(testEngineID),
		boots:    7,
		start:    time.Now(),
		timeBase: 86400,
		users:    make(map[string]*agentUser),
		mib:      make(map[string]SnmpValue),
		salt:     0x1122334455667788,
		counters: make(map[string]uint32),
	}
	go a.serve()
	t.Cleanup(func() {
		_ = conn.Close()
		<-a.done
	})
	return a
}

func (a *testAgent) addr() string {
	return a.conn.LocalAddr().String()
}

func (a *testAgent) addUser(t *testing.T, name string, authProto SnmpV3AuthProtocol, authPass string,
	privProto SnmpV3PrivProtocol, privPass string) {
	t.Helper()
	u, err := newAgentUser(a.engineID, name, authProto, authPass, privProto, privPass)
	require.NoError(t, err)
	a.mu.Lock()
	a.users[name] = u
	a.mu.Unlock()
}

func (a *testAgent) set(dotted string, v SnmpValue) {
	oid := MustParseOID(dotted)
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.mib[oid.String()]; !ok {
		a.order = append(a.order, oid)
		slices.SortFunc(a.order, OID.Compare)
	}
	a.mib[oid.String()] = v
}

// params builds a request for a registered user with that user's secrets.
func (a *testAgent) params(userName string, cmd CommandType, oids ...string) RequestParams {
	a.mu.Lock()
	u := a.users[userName]
	a.mu.Unlock()
	return RequestParams{
		Host:           a.addr(),
		User:           u.name,
		AuthProtocol:   u.authProto,
		AuthPassphrase: u.authPassphrase,
		PrivProtocol:   u.privProto,
		PrivPassphrase: u.privPassphrase,
		Command:        Command{Type: cmd, OIDs: oids},
	}
}

func (a *testAgent) requestCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests
}

func (a *testAgent) serve() {
	defer close(a.done)
	buf := make([]byte, rxBufSize)
	for {
		n, from, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		out := a.handle(bytes.Clone(buf[:n]))
		if out == nil || a.silent.Load() {
			continue
		}
		_, _ = a.conn.WriteToUDP(out, from)
	}
}

func (a *testAgent) engineTime() uint32 {
	return a.timeBase + uint32(time.Since(a.start)/time.Second)
}

// handle processes one request following RFC 3414 section 3.2 and returns the
// reply, nil when the request is dropped.
func (a *testAgent) handle(packet []byte) []byte {
	msg, err := unmarshalMsg(Logger{}, packet)
	if err != nil {
		return nil
	}
	usp := msg.SecurityParameters

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.silent.Load() {
		return nil
	}
	a.requests++
	a.msgIDs = append(a.msgIDs, msg.MsgID)

	var reqID uint32
	if msg.ScopedPDU != nil {
		reqID = msg.ScopedPDU.PDU.RequestID
	}

	if !bytes.Equal(usp.AuthoritativeEngineID, a.engineID) {
		return a.report(msg, nil, reqID, usmStatsUnknownEngineIDs)
	}
	user, ok := a.users[usp.UserName]
	if !ok {
		return a.report(msg, nil, reqID, usmStatsUnknownUserNames)
	}
	if !msg.authenticated() {
		return a.report(msg, nil, reqID, usmStatsUnsupportedSecLevels)
	}
	if verifyAuthentication(user.authProto, user.authKey, packet, usp.authParamOffset) != nil {
		return a.report(msg, nil, reqID, usmStatsWrongDigests)
	}
	if !a.inTimeWindow(usp) {
		return a.report(msg, user, reqID, usmStatsNotInTimeWindows)
	}

	_, pdu, err := decodeAgentRequest(packet, user)
	if err != nil {
		return a.report(msg, nil, 0, usmStatsDecryptionErrors)
	}
	a.requestIDs = append(a.requestIDs, pdu.RequestID)

	if len(pdu.Variables) > 0 && a.forceNotInTimeWindow > 0 {
		a.forceNotInTimeWindow--
		return a.report(msg, user, pdu.RequestID, usmStatsNotInTimeWindows)
	}

	flags := AuthNoPriv
	if msg.encrypted() {
		flags = AuthPriv
	}
	a.salt++
	out, err := agentMessage{
		engineID:   a.engineID,
		boots:      a.boots,
		engineTime: a.engineTime() + a.responseSkew,
		msgID:      msg.MsgID,
		flags:      flags,
		userName:   user.name,
		user:       user,
		salt:       a.salt,
		pdu:        a.respond(pdu),
	}.encode()
	if err != nil {
		return nil
	}
	return out
}

func (a *testAgent) inTimeWindow(usp *UsmSecurityParameters) bool {
	if usp.AuthoritativeEngineBoots != a.boots {
		return false
	}
	diff := int64(usp.AuthoritativeEngineTime) - int64(a.engineTime())
	return diff >= -150 && diff <= 150
}

// report builds a Report naming counter. notInTimeWindow reports are
// authenticated with user's key, all others go out as noAuthNoPriv.
func (a *testAgent) report(req *SnmpV3Message, user *agentUser, reqID uint32, counter OID) []byte {
	a.counters[counter.String()]++
	flags := NoAuthNoPriv
	userName := ""
	if user != nil {
		flags = AuthNoPriv
		userName = user.name
	}
	out, err := agentMessage{
		engineID:   a.engineID,
		boots:      a.boots,
		engineTime: a.engineTime(),
		msgID:      req.MsgID,
		flags:      flags,
		userName:   userName,
		user:       user,
		pdu: &PDU{
			Type:      Report,
			RequestID: reqID,
			Variables: []VarBind{{Name: counter, Value: NewCounter32(a.counters[counter.String()])}},
		},
	}.encode()
	if err != nil {
		return nil
	}
	return out
}

func (a *testAgent) respond(req *PDU) *PDU {
	resp := &PDU{Type: GetResponse, RequestID: req.RequestID}
	for i, vb := range req.Variables {
		switch req.Type {
		case GetRequest:
			v, ok := a.mib[vb.Name.String()]
			if !ok {
				if a.noSuchName {
					resp.Error = NoSuchName
					resp.ErrorIndex = i + 1
					resp.Variables = req.Variables
					return resp
				}
				v = NewException(NoSuchObject)
			}
			resp.Variables = append(resp.Variables, VarBind{Name: vb.Name, Value: v})
		case GetNextRequest:
			if a.getNext != nil {
				resp.Variables = append(resp.Variables, a.getNext(vb.Name))
				continue
			}
			resp.Variables = append(resp.Variables, a.next(vb.Name))
		}
	}
	return resp
}

func (a *testAgent) next(oid OID) VarBind {
	for _, o := range a.order {
		if o.Compare(oid) > 0 {
			return VarBind{Name: o, Value: a.mib[o.String()]}
		}
	}
	return VarBind{Name: oid, Value: NewException(EndOfMibView)}
}

func (a *testAgent) counter(oid OID) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters[oid.String()]
}
