// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"
)

// credentials is the secret material of one request.
type credentials struct {
	authProto      SnmpV3AuthProtocol
	authPassphrase string
	privProto      SnmpV3PrivProtocol
	privPassphrase string
}

// fingerprint identifies the credentials an entry's keys were localized from
// without keeping the passphrases themselves.
func (c credentials) fingerprint() [sha256.Size]byte {
	return secretDigest([]byte{byte(c.authProto), byte(c.privProto)},
		[]byte(c.authPassphrase), []byte(c.privPassphrase))
}

type sessionKey struct {
	host string
	user string
}

// sessionEntry is the cached view of one remote authoritative engine.
type sessionEntry struct {
	engineID   []byte
	boots      uint32
	time       uint32
	receivedAt time.Time

	authKey     []byte
	privKey     []byte
	fingerprint [sha256.Size]byte

	msgID     atomic.Uint32
	requestID atomic.Uint32
	desSalt   atomic.Uint32
	aesSalt   atomic.Uint64
}

// newSessionEntry returns an unsynchronized entry with randomly seeded
// counters.
func newSessionEntry(now time.Time) *sessionEntry {
	var seed [20]byte
	if _, err := rand.Read(seed[:]); err != nil {
		// crypto/rand never fails on supported platforms; fall back to the clock
		binary.BigEndian.PutUint64(seed[:], uint64(now.UnixNano()))
	}
	e := &sessionEntry{receivedAt: now}
	e.msgID.Store(binary.BigEndian.Uint32(seed[0:4]) & maxRequestID)
	e.requestID.Store(binary.BigEndian.Uint32(seed[4:8]) & maxRequestID)
	e.desSalt.Store(binary.BigEndian.Uint32(seed[8:12]))
	e.aesSalt.Store(binary.BigEndian.Uint64(seed[12:20]))
	return e
}

// nextID advances counter and returns a value in [1, 2^31-1].
func nextID(counter *atomic.Uint32) uint32 {
	for {
		if id := counter.Add(1) & maxRequestID; id != 0 {
			return id
		}
	}
}

func (e *sessionEntry) nextMsgID() uint32 {
	return nextID(&e.msgID)
}

func (e *sessionEntry) nextRequestID() uint32 {
	return nextID(&e.requestID)
}

// nextSalt returns fresh privacy parameters for proto.
func (e *sessionEntry) nextSalt(proto SnmpV3PrivProtocol) []byte {
	if proto == DES {
		return desSalt(e.boots, e.desSalt.Add(1))
	}
	return aesSalt(e.aesSalt.Add(1))
}

// estimatedTime is the remote engine time extrapolated from the last
// authentic message.
func (e *sessionEntry) estimatedTime(now time.Time) uint32 {
	elapsed := now.Sub(e.receivedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return e.time + uint32(elapsed/time.Second)
}

// inTimeWindow reports whether remote boots and time fall inside the window
// around the local estimate (RFC 3414 section 3.2 step 7b).
func (e *sessionEntry) inTimeWindow(boots, engineTime uint32, now time.Time, window time.Duration) bool {
	if boots != e.boots || boots == maxRequestID {
		return false
	}
	diff := int64(engineTime) - int64(e.estimatedTime(now))
	if diff < 0 {
		diff = -diff
	}
	return diff <= int64(window/time.Second)
}

// synchronize records boots and time from an authentic message.
func (e *sessionEntry) synchronize(boots, engineTime uint32, now time.Time) {
	e.boots = boots
	e.time = engineTime
	e.receivedAt = now
}

// localize derives the auth and priv keys for the entry's engineID.
func (e *sessionEntry) localize(creds credentials) error {
	authKey, err := genLocalizedKey(creds.authProto, creds.authPassphrase, e.engineID)
	if err != nil {
		return err
	}
	// RFC 3414 and RFC 3826 localize the privacy key with the auth hash
	privKey, err := genLocalizedKey(creds.authProto, creds.privPassphrase, e.engineID)
	if err != nil {
		return err
	}
	e.authKey = authKey
	e.privKey = privKey
	e.fingerprint = creds.fingerprint()
	return nil
}

// sessionSlot serializes all exchanges against one (host, user).
type sessionSlot struct {
	mu    sync.Mutex
	entry atomic.Pointer[sessionEntry]
}

// SessionCache holds discovered engine state per (host, user). It is safe
// for concurrent use; Runs against the same key are serialized.
type SessionCache struct {
	mu    sync.Mutex
	slots map[sessionKey]*sessionSlot
}

// NewSessionCache returns an empty cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{slots: make(map[sessionKey]*sessionSlot)}
}

var defaultSessions = NewSessionCache()

func (c *SessionCache) slot(key sessionKey) *sessionSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		s = &sessionSlot{}
		c.slots[key] = s
	}
	return s
}

// acquire returns the slot for key with its lock held.
func (c *SessionCache) acquire(key sessionKey) *sessionSlot {
	s := c.slot(key)
	s.mu.Lock()
	return s
}

// Invalidate forgets the engine state for host and user, forcing discovery
// on the next request. host must be given as host:port.
func (c *SessionCache) Invalidate(host, user string) {
	c.mu.Lock()
	s, ok := c.slots[sessionKey{host: host, user: user}]
	c.mu.Unlock()
	if ok {
		s.entry.Store(nil)
	}
}

// Len returns the number of discovered engines.
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.slots {
		if s.entry.Load() != nil {
			n++
		}
	}
	return n
}

// lookup returns the cached entry for key, nil when undiscovered.
func (c *SessionCache) lookup(key sessionKey) *sessionEntry {
	c.mu.Lock()
	s, ok := c.slots[key]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return s.entry.Load()
}

// sameEngine reports whether e was discovered for engineID.
func (e *sessionEntry) sameEngine(engineID []byte) bool {
	return len(e.engineID) > 0 && bytes.Equal(e.engineID, engineID)
}
