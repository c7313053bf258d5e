// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport is the datagram connection a Client exchanges messages over.
// Any connected net.Conn, such as the *net.UDPConn returned by net.Dial,
// satisfies it.
type Transport interface {
	SetDeadline(t time.Time) error
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
}

const rxBufSize = 65535 // max size of IPv4 & IPv6 packet

// dialUDP is the default Client.Dial.
func dialUDP(ctx context.Context, addr string) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: error establishing connection to host: %w", ErrTransport, err)
	}
	return conn, nil
}

// targetAddress appends port to host unless host already names one. IPv6
// literals may be given with or without brackets.
func targetAddress(host string, port uint16) (string, error) {
	if host == "" {
		return "", fmt.Errorf("%w: empty host", ErrBadInput)
	}
	if h, p, err := net.SplitHostPort(host); err == nil {
		if h == "" || p == "" {
			return "", fmt.Errorf("%w: bad host %q", ErrBadInput, host)
		}
		return host, nil
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(port))), nil
}

// isTimeoutError returns true if the error represents a timeout condition.
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// sendPacket sends the outgoing packet bytes to the network.
func sendPacket(conn Transport, outBuf []byte, deadline time.Time) error {
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrTransport, err)
	}
	if _, err := conn.Write(outBuf); err != nil {
		if isTimeoutError(err) {
			return fmt.Errorf("write: %w", err)
		}
		return fmt.Errorf("%w: write: %w", ErrTransport, err)
	}
	return nil
}

// receive response from network and read into a byte array
func receive(conn Transport, rxBuf []byte) ([]byte, error) {
	n, err := conn.Read(rxBuf)
	if err != nil {
		return nil, fmt.Errorf("error reading from socket: %w", err)
	}

	if n == len(rxBuf) {
		// This should never happen unless we're using something like a unix domain socket.
		return nil, fmt.Errorf("%w: response buffer too small", ErrTransport)
	}

	resp := make([]byte, n)
	copy(resp, rxBuf[:n])
	return resp, nil
}
