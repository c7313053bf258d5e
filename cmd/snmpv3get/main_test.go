// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/logutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosnmp/snmpv3"
)

func TestFlagRequest(t *testing.T) {
	p, err := flagRequest("192.0.2.1", "monitor", "sha1", "a", "aes128", "p", "walk", nil)
	require.NoError(t, err)
	assert.Equal(t, snmpv3.RequestParams{
		Host:           "192.0.2.1",
		User:           "monitor",
		AuthProtocol:   snmpv3.SHA,
		AuthPassphrase: "a",
		PrivProtocol:   snmpv3.AES,
		PrivPassphrase: "p",
		Command:        snmpv3.Command{Type: snmpv3.WalkCommand, OIDs: []string{mib2}},
	}, p)

	p, err = flagRequest("h", "u", "MD5", "a", "DES", "p", "get", []string{"1.3.6.1.2.1.1.1.0"})
	require.NoError(t, err)
	assert.Equal(t, snmpv3.GetCommand, p.Command.Type)
	assert.Equal(t, []string{"1.3.6.1.2.1.1.1.0"}, p.Command.OIDs)

	_, err = flagRequest("h", "u", "SHA512", "a", "AES", "p", "get", nil)
	assert.ErrorIs(t, err, snmpv3.ErrBadInput)
	_, err = flagRequest("h", "u", "SHA", "a", "AES", "p", "set", nil)
	assert.ErrorIs(t, err, snmpv3.ErrBadInput)
}

func TestEncodeResults(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeResults(&buf, []snmpv3.SnmpResult{{
		Host:  "192.0.2.1:161",
		OID:   "1.3.6.1.2.1.1.3.0",
		Name:  "sysUpTime.0",
		Value: snmpv3.NewTimeTicks(12345),
	}}))
	assert.JSONEq(t, `[{"host":"192.0.2.1:161","oid":"1.3.6.1.2.1.1.3.0","name":"sysUpTime.0",
		"value":{"type":"TimeTicks","value":12345}}]`, buf.String())
}

func TestNewClientSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"retries": 1, "port": 1161}`), 0o600))

	c, err := newClient(path)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Retries)
	assert.Equal(t, uint16(1161), c.Port)

	require.NoError(t, os.WriteFile(path, []byte(`{"retry": 1}`), 0o600))
	_, err = newClient(path)
	assert.ErrorIs(t, err, snmpv3.ErrBadInput)

	_, err = newClient(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLogLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	filter := &logutils.LevelFilter{
		Levels:   []logutils.LogLevel{"DEBUG", "INFO", "WARN", "ERROR"},
		MinLevel: "WARN",
		Writer:   &buf,
	}
	logger := log.New(filter, "", 0)
	debug := snmpv3.NewLogger(log.New(filter, "[DEBUG] ", 0))

	debug.Printf("SEND INIT %s", "hidden")
	logger.Print("[INFO] hidden")
	logger.Print("[WARN] retrying request")
	assert.Equal(t, "[WARN] retrying request\n", buf.String())
}
