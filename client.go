// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package snmpv3 is an SNMPv3 client speaking the User-based Security Model
// with authentication and privacy.
//
// A request names a host, a user, the MD5 or SHA1 authentication secret, the
// DES or AES128 privacy secret and a Get, GetNext or Walk command:
//
//	res, err := snmpv3.Run(ctx, oids, snmpv3.RequestParams{
//		Host:           "192.0.2.1",
//		User:           "monitor",
//		AuthProtocol:   snmpv3.SHA,
//		AuthPassphrase: "authsecret",
//		PrivProtocol:   snmpv3.AES,
//		PrivPassphrase: "privsecret",
//		Command:        snmpv3.Command{Type: snmpv3.WalkCommand, OIDs: []string{"1.3.6.1.2.1.1"}},
//	})
//
// Engine discovery happens on first contact and the discovered engine state
// is cached per host and user.
package snmpv3

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultPort            = 161
	defaultTimeout         = 5 * time.Second
	defaultRetries         = 3
	defaultMaxWalkBindings = 10000
	defaultTimeWindow      = 150 * time.Second
	// defaultMaxMsgSize is the largest UDP payload over IPv4.
	defaultMaxMsgSize = 65507
)

// Client holds the connection settings shared by every request.
type Client struct {
	// Port is appended to hosts given without one.
	Port uint16

	// Timeout is the timeout for one request attempt.
	Timeout time.Duration

	// Retries is the number of retries to attempt after a timeout.
	Retries int

	// Double timeout in each retry
	ExponentialTimeout bool

	// MaxWalkBindings bounds the number of bindings a Walk collects.
	MaxWalkBindings int

	// TimeWindow is the accepted drift between the agent clock and its
	// local estimate.
	TimeWindow time.Duration

	// MaxMsgSize is advertised in msgMaxSize and bounds outgoing messages.
	MaxMsgSize uint32

	// Logger is the logger to use for debugging. Leave it unset to disable
	// debug logging.
	Logger Logger

	// Sessions caches discovered engines. nil uses a process-wide cache.
	Sessions *SessionCache

	// Dial opens the transport to addr, a host:port. nil dials UDP.
	Dial func(ctx context.Context, addr string) (Transport, error)

	// OnSent is called when a packet is sent.
	OnSent func(*Client)

	// OnRecv is called when a packet is received.
	OnRecv func(*Client)

	// OnRetry is called when a retry attempt is done.
	OnRetry func(*Client)

	// OnFinish is called when the request completed.
	OnFinish func(*Client)
}

// Default connection settings
var Default = &Client{
	Port:            defaultPort,
	Timeout:         defaultTimeout,
	Retries:         defaultRetries,
	MaxWalkBindings: defaultMaxWalkBindings,
	TimeWindow:      defaultTimeWindow,
	MaxMsgSize:      defaultMaxMsgSize,
}

// CommandType selects the operation of a request.
type CommandType uint8

const (
	GetCommand CommandType = iota
	GetNextCommand
	WalkCommand
)

func (c CommandType) String() string {
	switch c {
	case GetCommand:
		return "Get"
	case GetNextCommand:
		return "GetNext"
	case WalkCommand:
		return "Walk"
	}
	return fmt.Sprintf("CommandType(%d)", uint8(c))
}

// Command is the operation of a request. Get and GetNext accept one or more
// OIDs; Walk takes exactly one root.
type Command struct {
	Type CommandType
	OIDs []string
}

// RequestParams is one request against one host.
type RequestParams struct {
	Host           string
	User           string
	AuthProtocol   SnmpV3AuthProtocol
	AuthPassphrase string
	PrivProtocol   SnmpV3PrivProtocol
	PrivPassphrase string
	Command        Command
}

// SafeString returns a loggable form of p without the passphrases.
func (p RequestParams) SafeString() string {
	return fmt.Sprintf("Host:%s, User:%s, AuthProtocol:%s, PrivProtocol:%s, Command:%s %v",
		p.Host, p.User, p.AuthProtocol, p.PrivProtocol, p.Command.Type, p.Command.OIDs)
}

// validate checks p and returns the parsed OIDs.
func (p RequestParams) validate() ([]OID, error) {
	if p.Host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrBadInput)
	}
	if p.User == "" {
		return nil, fmt.Errorf("%w: empty user", ErrBadInput)
	}

	switch p.AuthProtocol {
	case MD5, SHA:
	case NoAuth:
		return nil, fmt.Errorf("%w: NoAuth unsupported", ErrBadInput)
	default:
		return nil, fmt.Errorf("%w: unknown auth protocol %s", ErrBadInput, p.AuthProtocol)
	}
	switch p.PrivProtocol {
	case DES, AES:
	case NoPriv:
		return nil, fmt.Errorf("%w: NoPriv unsupported", ErrBadInput)
	default:
		return nil, fmt.Errorf("%w: unknown privacy protocol %s", ErrBadInput, p.PrivProtocol)
	}
	if p.AuthPassphrase == "" {
		return nil, fmt.Errorf("%w: empty authentication passphrase", ErrBadInput)
	}
	if p.PrivPassphrase == "" {
		return nil, fmt.Errorf("%w: empty privacy passphrase", ErrBadInput)
	}

	switch p.Command.Type {
	case GetCommand, GetNextCommand:
	case WalkCommand:
		if len(p.Command.OIDs) > 1 {
			return nil, fmt.Errorf("%w: walk takes one OID, got %d", ErrBadInput, len(p.Command.OIDs))
		}
	default:
		return nil, fmt.Errorf("%w: unknown command %s", ErrBadInput, p.Command.Type)
	}
	if len(p.Command.OIDs) == 0 {
		return nil, fmt.Errorf("%w: empty OID list", ErrBadInput)
	}

	oids := make([]OID, 0, len(p.Command.OIDs))
	for _, s := range p.Command.OIDs {
		oid, err := ParseOID(s)
		if err != nil {
			return nil, err
		}
		oids = append(oids, oid)
	}
	return oids, nil
}

// SnmpResult is one variable binding of a result, labelled from the OID map.
type SnmpResult struct {
	Host  string    `json:"host"`
	OID   string    `json:"oid"`
	Name  string    `json:"name"`
	Value SnmpValue `json:"value"`
}

func (r SnmpResult) String() string {
	return fmt.Sprintf("OID: %s\nValue: %s\n", r.Name, r.Value)
}

// Results is the outcome of a request.
type Results struct {
	Results []SnmpResult `json:"results"`
	Flags   WalkFlags    `json:"flags"`
}

// Run executes params with the Default client.
func Run(ctx context.Context, oidMap *OidMap, params RequestParams) (*Results, error) {
	return Default.Run(ctx, oidMap, params)
}

// Run executes one request. Discovery runs first when the engine is not
// cached. For a Walk, the bindings collected before a failure are returned
// together with the error.
func (x *Client) Run(ctx context.Context, oidMap *OidMap, params RequestParams) (*Results, error) {
	oids, err := params.validate()
	if err != nil {
		return nil, err
	}
	port := x.Port
	if port == 0 {
		port = defaultPort
	}
	addr, err := targetAddress(params.Host, port)
	if err != nil {
		return nil, err
	}
	x.Logger.Printf("SEND INIT %s", params.SafeString())
	if err = ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	s, err := x.openSession(ctx, addr, params)
	if err != nil {
		return nil, err
	}
	defer s.close()

	if err = s.ensureDiscovered(ctx); err != nil {
		x.Logger.Printf("SEND Error: %s", err)
		return nil, err
	}

	results := &Results{}
	var vbs []VarBind
	switch params.Command.Type {
	case GetCommand, GetNextCommand:
		pduType := GetRequest
		if params.Command.Type == GetNextCommand {
			pduType = GetNextRequest
		}
		pdu, err := s.exchange(ctx, pduType, oids)
		if err != nil {
			x.Logger.Printf("SEND Error: %s", err)
			return nil, err
		}
		vbs = pdu.Variables
	case WalkCommand:
		maxBindings := x.MaxWalkBindings
		if maxBindings <= 0 {
			maxBindings = defaultMaxWalkBindings
		}
		vbs, results.Flags, err = s.walk(ctx, oids[0], maxBindings)
	}

	results.Results = make([]SnmpResult, 0, len(vbs))
	for _, vb := range vbs {
		results.Results = append(results.Results, SnmpResult{
			Host:  addr,
			OID:   vb.Name.String(),
			Name:  oidMap.NameFor(vb.Name),
			Value: vb.Value,
		})
	}
	if err != nil {
		x.Logger.Printf("SEND Error: %s", err)
		return results, err
	}
	return results, nil
}

// openSession locks the cache slot for (addr, user) and dials addr.
func (x *Client) openSession(ctx context.Context, addr string, params RequestParams) (*session, error) {
	s := &session{
		client: x,
		logger: x.Logger,
		key:    sessionKey{host: addr, user: params.User},
		creds: credentials{
			authProto:      params.AuthProtocol,
			authPassphrase: params.AuthPassphrase,
			privProto:      params.PrivProtocol,
			privPassphrase: params.PrivPassphrase,
		},
		rxBuf:      make([]byte, rxBufSize),
		timeout:    x.Timeout,
		retries:    x.Retries,
		timeWindow: x.TimeWindow,
		maxMsgSize: x.MaxMsgSize,
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.retries < 0 {
		s.retries = 0
	}
	if s.timeWindow <= 0 {
		s.timeWindow = defaultTimeWindow
	}
	if s.maxMsgSize == 0 {
		s.maxMsgSize = defaultMaxMsgSize
	}

	dial := x.Dial
	if dial == nil {
		dial = dialUDP
	}
	conn, err := dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	s.conn = conn

	sessions := x.Sessions
	if sessions == nil {
		sessions = defaultSessions
	}
	s.slot = sessions.acquire(s.key)
	return s, nil
}

func (s *session) close() {
	s.slot.mu.Unlock()
	if err := s.conn.Close(); err != nil {
		s.logger.Printf("close: %v", err)
	}
}
