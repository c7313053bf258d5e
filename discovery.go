// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
)

// ensureDiscovered makes s.entry usable for authenticated requests, running
// engine discovery when the cache has nothing for s.key.
func (s *session) ensureDiscovered(ctx context.Context) error {
	if e := s.slot.entry.Load(); e != nil {
		s.entry = e
		if e.fingerprint == s.creds.fingerprint() {
			return nil
		}
		// new credentials for a known engine: relocalize only
		s.logger.Printf("credentials changed for %s@%s, relocalizing keys", s.key.user, s.key.host)
		if err := e.localize(s.creds); err != nil {
			return err
		}
		return nil
	}

	s.logger.Print("SEND INIT NEGOTIATE SECURITY PARAMS")
	e, err := s.discover(ctx)
	if err != nil {
		return err
	}
	s.entry = e
	s.slot.entry.Store(e)
	s.logger.Print("SEND END NEGOTIATE SECURITY PARAMS")
	return nil
}

// discover runs the RFC 3414 section 4 handshake: an unauthenticated probe
// reveals the engine ID, then an authenticated probe with zero boots and time
// reveals the engine clock.
func (s *session) discover(ctx context.Context) (*sessionEntry, error) {
	s.entry = newSessionEntry(time.Now())

	res, err := s.sendOneRequest(ctx, &request{
		pduType: GetRequest,
		flags:   Reportable,
		probe:   true,
	})
	if err != nil {
		return nil, discoveryError("engine id probe", err)
	}
	if err = expectReport(res, usmStatsUnknownEngineIDs); err != nil {
		return nil, err
	}
	engineID := res.msg.SecurityParameters.AuthoritativeEngineID
	if len(engineID) == 0 {
		return nil, fmt.Errorf("%w: report carried an empty engine id", ErrDiscoveryFailure)
	}
	s.logger.Printf("discovered authoritative engine id %x", engineID)

	s.entry.engineID = bytes.Clone(engineID)
	if err = s.entry.localize(s.creds); err != nil {
		return nil, err
	}

	res, err = s.sendOneRequest(ctx, &request{
		pduType:  GetRequest,
		flags:    AuthNoPriv | Reportable,
		userName: s.key.user,
		probe:    true,
	})
	if err != nil {
		return nil, discoveryError("time probe", err)
	}
	if err = expectReport(res, usmStatsNotInTimeWindows); err != nil {
		return nil, err
	}
	if !res.msg.authenticated() {
		return nil, fmt.Errorf("%w: %w: unauthenticated time report", ErrDiscoveryFailure, ErrAuthFailure)
	}
	usp := res.msg.SecurityParameters
	if !bytes.Equal(usp.AuthoritativeEngineID, s.entry.engineID) {
		return nil, fmt.Errorf("%w: engine id changed from %x to %x during discovery",
			ErrDiscoveryFailure, s.entry.engineID, usp.AuthoritativeEngineID)
	}
	s.entry.synchronize(usp.AuthoritativeEngineBoots, usp.AuthoritativeEngineTime, time.Now())
	s.logger.Printf("synchronized with engine: boots %d time %d", s.entry.boots, s.entry.time)
	return s.entry, nil
}

// expectReport checks that res is the Report discovery asked for.
func expectReport(res *response, want OID) error {
	if len(res.pdu.Variables) < 1 {
		return fmt.Errorf("%w: report without variables", ErrDiscoveryFailure)
	}
	vb := res.pdu.Variables[0]
	if vb.Name.Equal(want) {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrDiscoveryFailure, &ReportError{OID: vb.Name, Value: vb.Value})
}

func discoveryError(step string, err error) error {
	if errors.Is(err, ErrDiscoveryFailure) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrDiscoveryFailure, step, err)
}
