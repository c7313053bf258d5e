// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Config is the serializable form of the Client options.
type Config struct {
	TimeoutMs         int    `json:"timeout_ms"`
	Retries           int    `json:"retries"`
	WalkMaxBindings   int    `json:"walk_max_bindings"`
	TimeWindowSeconds int    `json:"time_window_seconds"`
	Port              uint16 `json:"port"`
}

// DefaultConfig returns the defaults used by Default.
func DefaultConfig() Config {
	return Config{
		TimeoutMs:         int(defaultTimeout / time.Millisecond),
		Retries:           defaultRetries,
		WalkMaxBindings:   defaultMaxWalkBindings,
		TimeWindowSeconds: int(defaultTimeWindow / time.Second),
		Port:              defaultPort,
	}
}

// LoadConfig reads a JSON Config. Omitted fields keep their defaults and
// unknown fields are rejected.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode config: %v", ErrBadInput, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the option ranges.
func (c Config) Validate() error {
	switch {
	case c.TimeoutMs <= 0:
		return fmt.Errorf("%w: timeout_ms must be positive, got %d", ErrBadInput, c.TimeoutMs)
	case c.Retries < 0:
		return fmt.Errorf("%w: retries must not be negative, got %d", ErrBadInput, c.Retries)
	case c.WalkMaxBindings <= 0:
		return fmt.Errorf("%w: walk_max_bindings must be positive, got %d", ErrBadInput, c.WalkMaxBindings)
	case c.TimeWindowSeconds <= 0:
		return fmt.Errorf("%w: time_window_seconds must be positive, got %d", ErrBadInput, c.TimeWindowSeconds)
	case c.Port == 0:
		return fmt.Errorf("%w: port must not be 0", ErrBadInput)
	}
	return nil
}

// NewClient builds a Client from c. Hooks, Logger and Sessions are left for
// the caller to set.
func (c Config) NewClient() (*Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		Port:            c.Port,
		Timeout:         time.Duration(c.TimeoutMs) * time.Millisecond,
		Retries:         c.Retries,
		MaxWalkBindings: c.WalkMaxBindings,
		TimeWindow:      time.Duration(c.TimeWindowSeconds) * time.Second,
		MaxMsgSize:      defaultMaxMsgSize,
	}, nil
}

type requestFile struct {
	Requests []requestEntry `json:"requests"`
}

type requestEntry struct {
	Host           string   `json:"host"`
	User           string   `json:"user"`
	AuthProtocol   string   `json:"auth_protocol"`
	AuthPassphrase string   `json:"auth_passphrase"`
	PrivProtocol   string   `json:"priv_protocol"`
	PrivPassphrase string   `json:"priv_passphrase"`
	Command        string   `json:"command"`
	OIDs           []string `json:"oids"`
}

// ParseCommandType maps "get", "getnext" and "walk", in any case, to a
// CommandType.
func ParseCommandType(s string) (CommandType, error) {
	switch strings.ToUpper(s) {
	case "GET":
		return GetCommand, nil
	case "GETNEXT":
		return GetNextCommand, nil
	case "WALK":
		return WalkCommand, nil
	}
	return 0, fmt.Errorf("%w: unknown command %q", ErrBadInput, s)
}

// LoadRequests reads a JSON request list:
//
//	{"requests":[{"host":"192.0.2.1","user":"monitor",
//	  "auth_protocol":"SHA1","auth_passphrase":"...",
//	  "priv_protocol":"AES128","priv_passphrase":"...",
//	  "command":"walk","oids":["1.3.6.1.2.1.1"]}]}
//
// Each entry is validated as Run would validate it.
func LoadRequests(r io.Reader) ([]RequestParams, error) {
	var f requestFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decode requests: %v", ErrBadInput, err)
	}

	out := make([]RequestParams, 0, len(f.Requests))
	for i, e := range f.Requests {
		authProto, err := ParseAuthProtocol(e.AuthProtocol)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		privProto, err := ParsePrivProtocol(e.PrivProtocol)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		cmd, err := ParseCommandType(e.Command)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		p := RequestParams{
			Host:           e.Host,
			User:           e.User,
			AuthProtocol:   authProto,
			AuthPassphrase: e.AuthPassphrase,
			PrivProtocol:   privProto,
			PrivPassphrase: e.PrivPassphrase,
			Command:        Command{Type: cmd, OIDs: e.OIDs},
		}
		if _, err = p.validate(); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}
