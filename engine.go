// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// session is the working state of one Run: the connection, the request's
// credentials and the locked cache slot for (host, user).
type session struct {
	client *Client
	logger Logger
	conn   Transport
	key    sessionKey
	creds  credentials
	slot   *sessionSlot
	entry  *sessionEntry
	rxBuf  []byte

	timeout    time.Duration
	retries    int
	timeWindow time.Duration
	maxMsgSize uint32
}

// request describes the message sent on every attempt of one exchange.
type request struct {
	pduType  PDUType
	oids     []OID
	flags    SnmpV3MsgFlags
	userName string
	// probe marks discovery messages: the Report they provoke is the answer.
	probe bool
}

// response is an accepted reply.
type response struct {
	msg *SnmpV3Message
	pdu *PDU
}

// exchangeIDs are the identifiers sent so far in one exchange.
type exchangeIDs struct {
	msgIDs []uint32
	reqIDs []uint32
}

// SNMPv3 Request Flow
//
// Requests go through: exchange() -> sendOneRequest() -> doRequestAttempt()
//
// There are two levels of retry:
//
//  1. sendOneRequest() handles the outer retry loop (timeouts, up to Retries attempts)
//  2. doRequestAttempt() handles inline resend for clock sync (notInTimeWindows REPORT)
//
// Every attempt and every inline resend carries a fresh msgID. A reply is
// accepted when its msgID and requestID were sent earlier in the same
// exchange, so a late answer to a previous attempt still completes it.

// responseOutcome indicates how to proceed after processing a received packet.
type responseOutcome int

const (
	outcomeSuccess      responseOutcome = iota // Return result to caller
	outcomeResend                              // Recoverable REPORT, resend once
	outcomeContinueWait                        // Wrong msgID or request ID, keep waiting
	outcomeRetry                               // Start new attempt (timeout, etc.)
	outcomeFatal                               // Stop waiting in this attempt
)

// exchange performs one authenticated, encrypted request and returns the
// response PDU.
func (s *session) exchange(ctx context.Context, pduType PDUType, oids []OID) (*PDU, error) {
	res, err := s.sendOneRequest(ctx, &request{
		pduType:  pduType,
		oids:     oids,
		flags:    AuthPriv | Reportable,
		userName: s.key.user,
	})
	if err != nil {
		return nil, err
	}
	return res.pdu, nil
}

// sendOneRequest sends/receives one SNMP request, handling retries.
func (s *session) sendOneRequest(ctx context.Context, req *request) (*response, error) {
	x := s.client
	ids := &exchangeIDs{
		msgIDs: make([]uint32, 0, s.retries+2),
		reqIDs: make([]uint32, 0, s.retries+1),
	}
	timeout := s.timeout
	withContextDeadline := false
	var lastErr error

	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			if x.OnRetry != nil {
				x.OnRetry(x)
			}
			s.logger.Printf("Retry number %d. Last error was: %v", attempt, lastErr)
			if withContextDeadline && isTimeoutError(lastErr) {
				return nil, fmt.Errorf("%w: %w", ErrTimeout, context.DeadlineExceeded)
			}
			if x.ExponentialTimeout {
				timeout *= 2
			}
			withContextDeadline = false
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}

		reqDeadline := time.Now().Add(timeout)
		if contextDeadline, ok := ctx.Deadline(); ok {
			if contextDeadline.Before(reqDeadline) {
				reqDeadline = contextDeadline
				withContextDeadline = true
			}
		}

		reqID := s.entry.nextRequestID()
		ids.reqIDs = append(ids.reqIDs, reqID)

		res, err := s.doRequestAttempt(req, reqID, ids, reqDeadline)
		if err == nil {
			if x.OnFinish != nil {
				x.OnFinish(x)
			}
			return res, nil
		}

		if isV3ErrorNonRetriable(err) {
			return nil, err
		}
		lastErr = err
	}

	if withContextDeadline && isTimeoutError(lastErr) {
		return nil, fmt.Errorf("%w: %w", ErrTimeout, context.DeadlineExceeded)
	}
	// Return the last error, replacing with "request timeout" only if it was a timeout
	if lastErr == nil || isTimeoutError(lastErr) {
		return nil, fmt.Errorf("%w (after %d retries)", ErrTimeout, s.retries)
	}
	return nil, lastErr
}

// isValidRequestID checks if the result's request ID matches any of the sent request IDs.
// ID 0 is valid for Reports per RFC 3412 section 7.1 step 3(c): the request-id in a Report
// PDU is set to the original request's ID if extractable, otherwise 0.
func isValidRequestID(pdu *PDU, allReqIDs []uint32) bool {
	if pdu.RequestID == 0 {
		return pdu.Type == Report
	}
	return slices.Contains(allReqIDs, pdu.RequestID)
}

// isV3ErrorNonRetriable returns true for errors that should not trigger
// outer-level retries. This includes both inherently fatal errors (wrong
// credentials) and recoverable errors that have already failed their inline
// resend attempt.
func isV3ErrorNonRetriable(err error) bool {
	return errors.Is(err, ErrAuthFailure) ||
		errors.Is(err, ErrDecryptFailure) ||
		errors.Is(err, ErrNotInTimeWindow) ||
		errors.Is(err, ErrRemoteReport) ||
		errors.Is(err, ErrSnmpError) ||
		errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrBadInput)
}

// buildMessage assembles, encrypts and authenticates the outgoing message.
func (s *session) buildMessage(req *request, msgID, reqID uint32) (*SnmpV3Message, []byte, error) {
	var pdu *PDU
	if len(req.oids) == 0 {
		pdu = newProbePDU(reqID)
	} else {
		var err error
		if pdu, err = newRequestPDU(req.pduType, reqID, req.oids); err != nil {
			return nil, nil, err
		}
	}

	e := s.entry
	usp := &UsmSecurityParameters{
		AuthoritativeEngineID: e.engineID,
		UserName:              req.userName,
	}
	// discovery probes advertise zero boots and time (RFC 3414 section 4)
	if !req.probe {
		usp.AuthoritativeEngineBoots = e.boots
		usp.AuthoritativeEngineTime = e.estimatedTime(time.Now())
	}
	msg := &SnmpV3Message{
		MsgID:              msgID,
		MsgMaxSize:         s.maxMsgSize,
		MsgFlags:           req.flags,
		SecurityModel:      UserSecurityModel,
		SecurityParameters: usp,
		ScopedPDU:          &ScopedPDU{ContextEngineID: e.engineID, PDU: pdu},
	}

	if msg.encrypted() {
		plaintext, err := msg.ScopedPDU.marshal()
		if err != nil {
			return nil, nil, err
		}
		usp.PrivacyParameters = e.nextSalt(s.creds.privProto)
		if msg.EncryptedPDU, err = usmEncrypt(s.creds.privProto, e.privKey, usp, usp.PrivacyParameters, plaintext); err != nil {
			return nil, nil, err
		}
	}

	outBuf, authParamOffset, err := msg.marshalMsg()
	if err != nil {
		return nil, nil, err
	}
	if msg.authenticated() {
		if err = authenticate(s.creds.authProto, e.authKey, outBuf, authParamOffset); err != nil {
			return nil, nil, err
		}
	}
	return msg, outBuf, nil
}

// doRequestAttempt performs a single request attempt. If the agent responds with
// a recoverable REPORT (clock out of sync), we resend once with corrected
// parameters. This inline resend is separate from the outer retry loop in sendOneRequest.
func (s *session) doRequestAttempt(req *request, reqID uint32, ids *exchangeIDs,
	deadline time.Time) (*response, error) {
	alreadyResent := false // prevents infinite resend loop (max one inline resend)

	for {
		msgID := s.entry.nextMsgID()
		ids.msgIDs = append(ids.msgIDs, msgID)

		packetOut, outBuf, err := s.buildMessage(req, msgID, reqID)
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}
		if s.logger.Enabled() {
			s.logger.Printf("SENDING PACKET: %s", packetOut.SafeString())
		}

		if err = sendPacket(s.conn, outBuf, deadline); err != nil {
			return nil, err
		}

		if s.client.OnSent != nil {
			s.client.OnSent(s.client)
		}

		// Receive until complete or resend needed
		res, needsResend, err := s.receiveUntilComplete(req, ids, alreadyResent)
		if !needsResend || alreadyResent {
			return res, err
		}
		alreadyResent = true
	}
}

// receiveUntilComplete receives packets until a complete response is received,
// a resend is needed, or an error occurs.
func (s *session) receiveUntilComplete(req *request, ids *exchangeIDs,
	alreadyResent bool) (*response, bool, error) {
	for {
		s.logger.Print("WAITING RESPONSE...")

		res, outcome, err := s.receiveAndProcessResponse(req, ids, alreadyResent)

		switch outcome {
		case outcomeSuccess:
			return res, false, nil
		case outcomeResend:
			return res, true, err
		case outcomeContinueWait:
			continue
		case outcomeRetry, outcomeFatal:
			return nil, false, err
		default:
			return nil, false, fmt.Errorf("unexpected response outcome: %d", outcome)
		}
	}
}

// receiveAndProcessResponse receives one packet and determines how to proceed.
func (s *session) receiveAndProcessResponse(req *request, ids *exchangeIDs,
	alreadyResent bool) (*response, responseOutcome, error) {
	resp, err := receive(s.conn, s.rxBuf)
	if err != nil {
		if isTimeoutError(err) {
			return nil, outcomeRetry, err
		}
		if errors.Is(err, ErrTransport) {
			return nil, outcomeFatal, err
		}
		return nil, outcomeFatal, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if s.client.OnRecv != nil {
		s.client.OnRecv(s.client)
	}
	s.logger.Printf("GET RESPONSE OK: %d bytes", len(resp))

	// undecodable datagrams are strays: drop them and keep listening
	msg, cursor, err := unmarshalMsgHeader(s.logger, resp)
	if err != nil {
		s.logger.Printf("ERROR on unmarshal header: %s", err)
		return nil, outcomeContinueWait, nil
	}
	if !slices.Contains(ids.msgIDs, msg.MsgID) {
		s.logger.Printf("ERROR msgID %d was not sent in this exchange", msg.MsgID)
		return nil, outcomeContinueWait, nil
	}
	if err = msg.unmarshalData(s.logger, resp, cursor); err != nil {
		s.logger.Printf("ERROR on unmarshal payload: %s", err)
		return nil, outcomeContinueWait, nil
	}
	usp := msg.SecurityParameters

	if msg.authenticated() {
		if !s.entry.sameEngine(usp.AuthoritativeEngineID) {
			return nil, outcomeFatal, fmt.Errorf("%w: authoritative engine id %x does not match %x",
				ErrAuthFailure, usp.AuthoritativeEngineID, s.entry.engineID)
		}
		if err = verifyAuthentication(s.creds.authProto, s.entry.authKey, resp, usp.authParamOffset); err != nil {
			s.logger.Printf("ERROR on Test Authentication on v3: %s", err)
			return nil, outcomeFatal, err
		}
	} else if msg.ScopedPDU == nil || msg.ScopedPDU.PDU.Type != Report {
		// REPORTs may be sent with noAuthNoPriv security level per RFC 3414
		// section 11.4. Nothing else may.
		return nil, outcomeFatal, fmt.Errorf("%w: unauthenticated response", ErrAuthFailure)
	}

	if msg.encrypted() {
		plaintext, err := usmDecrypt(s.creds.privProto, s.entry.privKey, usp, msg.EncryptedPDU)
		if err != nil {
			s.logger.Printf("ERROR on decryptPacket on v3: %s", err)
			return nil, outcomeFatal, err
		}
		if msg.ScopedPDU, err = unmarshalScopedPDU(s.logger, plaintext); err != nil {
			return nil, outcomeFatal, fmt.Errorf("%w: %w", ErrDecryptFailure, err)
		}
	}
	pdu := msg.ScopedPDU.PDU

	if !isValidRequestID(pdu, ids.reqIDs) {
		s.logger.Print("ERROR out of order")
		return nil, outcomeContinueWait, nil
	}
	res := &response{msg: msg, pdu: pdu}
	now := time.Now()

	if unverifiedClockReport(msg, pdu) {
		s.logger.Print("ERROR discarding unauthenticated notInTimeWindows REPORT")
		return nil, outcomeContinueWait, nil
	}
	if pdu.Type == Report {
		if req.probe {
			return res, outcomeSuccess, nil
		}
		return s.handleReportPDU(res, alreadyResent, now)
	}

	if pdu.Type != GetResponse {
		return nil, outcomeRetry, fmt.Errorf("%w: unexpected %s in reply", ErrMalformed, pdu.Type)
	}

	if !s.entry.inTimeWindow(usp.AuthoritativeEngineBoots, usp.AuthoritativeEngineTime, now, s.timeWindow) {
		s.logger.Printf("ERROR response outside time window: boots %d time %d, expected boots %d time %d",
			usp.AuthoritativeEngineBoots, usp.AuthoritativeEngineTime, s.entry.boots, s.entry.estimatedTime(now))
		s.invalidate()
		return nil, outcomeFatal, fmt.Errorf("%w: response boots %d time %d", ErrNotInTimeWindow,
			usp.AuthoritativeEngineBoots, usp.AuthoritativeEngineTime)
	}

	if pdu.Error != NoError {
		return nil, outcomeFatal, &ResponseError{Status: pdu.Error, Index: pdu.ErrorIndex, VarBind: pdu.FailedVarBind()}
	}

	s.entry.synchronize(usp.AuthoritativeEngineBoots, usp.AuthoritativeEngineTime, now)
	return res, outcomeSuccess, nil
}

// unverifiedClockReport reports whether pdu is a notInTimeWindows REPORT that
// arrived without authentication. Its boots and time cannot be trusted.
func unverifiedClockReport(msg *SnmpV3Message, pdu *PDU) bool {
	return pdu.Type == Report && !msg.authenticated() &&
		len(pdu.Variables) > 0 && pdu.Variables[0].Name.Equal(usmStatsNotInTimeWindows)
}

// handleReportPDU classifies a REPORT PDU and determines how to proceed.
// REPORTs are SNMPv3 error responses that tell us why a request failed (e.g., clock
// out of sync, unknown engine ID, bad credentials). Only the clock case is
// recoverable.
func (s *session) handleReportPDU(res *response, alreadyResent bool, now time.Time) (*response, responseOutcome, error) {
	if len(res.pdu.Variables) < 1 {
		s.logger.Printf("ERROR: malformed REPORT with no variables")
		return nil, outcomeRetry, fmt.Errorf("%w: REPORT without variables", ErrMalformed)
	}
	vb := res.pdu.Variables[0]
	reportErr := &ReportError{OID: vb.Name, Value: vb.Value}
	usp := res.msg.SecurityParameters

	switch {
	case vb.Name.Equal(usmStatsNotInTimeWindows):
		s.logger.Print("WARNING detected out-of-time-window ERROR")
		if alreadyResent {
			s.invalidate()
			return nil, outcomeFatal, fmt.Errorf("repeated report after resync: %w", reportErr)
		}
		// The REPORT carries the agent's current boots and time, which we
		// adopt before resending.
		s.entry.synchronize(usp.AuthoritativeEngineBoots, usp.AuthoritativeEngineTime, now)
		return res, outcomeResend, reportErr

	case vb.Name.Equal(usmStatsUnknownEngineIDs):
		s.logger.Print("WARNING detected unknown engine id ERROR")
		s.invalidate()
		return nil, outcomeFatal, reportErr

	default:
		s.logger.Printf("ERROR remote report: %s", reportErr)
		return nil, outcomeFatal, reportErr
	}
}

// invalidate drops the cached engine state so the next Run rediscovers it.
func (s *session) invalidate() {
	s.slot.entry.CompareAndSwap(s.entry, nil)
}
