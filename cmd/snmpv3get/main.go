// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Command snmpv3get runs SNMPv3 Get, GetNext and Walk requests.
//
// Requests come either from a JSON request list:
//
//	snmpv3get -config requests.json -oids oids.json
//
// or from flags, with the OIDs as arguments:
//
//	snmpv3get -host 192.0.2.1 -user monitor -auth-proto SHA1 -auth-key secret \
//		-priv-proto AES128 -priv-key secret -command walk 1.3.6.1.2.1.1
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/logutils"

	"github.com/gosnmp/snmpv3"
)

// mib2 is walked when no OID is given.
const mib2 = "1.3.6.1.2.1"

func main() {
	configFile := flag.String("config", "", "JSON request list")
	settingsFile := flag.String("settings", "", "JSON client settings (timeout_ms, retries, ...)")
	oidsFile := flag.String("oids", "", "JSON OID name map")
	outFile := flag.String("out", "", "write results as JSON to this file")
	logLevel := flag.String("log-level", "WARN", "DEBUG, INFO, WARN or ERROR")
	host := flag.String("host", "", "agent host, optionally with :port")
	user := flag.String("user", "", "USM user name")
	authProto := flag.String("auth-proto", "SHA1", "MD5 or SHA1")
	authKey := flag.String("auth-key", "", "authentication passphrase")
	privProto := flag.String("priv-proto", "AES128", "DES or AES128")
	privKey := flag.String("priv-key", "", "privacy passphrase")
	command := flag.String("command", "get", "get, getnext or walk")
	timeout := flag.Duration("deadline", 5*time.Minute, "overall deadline")
	flag.Parse()

	filter := &logutils.LevelFilter{
		Levels:   []logutils.LogLevel{"DEBUG", "INFO", "WARN", "ERROR"},
		MinLevel: logutils.LogLevel(strings.ToUpper(*logLevel)),
		Writer:   os.Stderr,
	}
	log.SetOutput(filter)

	client, err := newClient(*settingsFile)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	client.Logger = snmpv3.NewLogger(log.New(filter, "[DEBUG] ", log.LstdFlags))
	client.OnRetry = func(*snmpv3.Client) {
		log.Print("[WARN] retrying request")
	}

	oidMap := snmpv3.NewOidMap()
	if *oidsFile != "" {
		if oidMap, err = loadOidMap(*oidsFile); err != nil {
			log.Fatalf("[ERROR] %v", err)
		}
		log.Printf("[INFO] loaded %d OID names", oidMap.Len())
	}

	var requests []snmpv3.RequestParams
	if *configFile != "" {
		if requests, err = loadRequests(*configFile); err != nil {
			log.Fatalf("[ERROR] %v", err)
		}
	} else {
		p, err := flagRequest(*host, *user, *authProto, *authKey, *privProto, *privKey, *command, flag.Args())
		if err != nil {
			log.Fatalf("[ERROR] %v", err)
		}
		requests = append(requests, p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var all []snmpv3.SnmpResult
	failed := false
	for _, p := range requests {
		log.Printf("[INFO] %s", p.SafeString())
		res, err := client.Run(ctx, oidMap, p)
		if res != nil {
			for _, r := range res.Results {
				fmt.Print(r)
			}
			if res.Flags != 0 {
				log.Printf("[WARN] %s: walk ended early: %s", p.Host, res.Flags)
			}
			all = append(all, res.Results...)
		}
		if err != nil {
			failed = true
			var reportErr *snmpv3.ReportError
			if errors.As(err, &reportErr) {
				log.Printf("[ERROR] %s: agent report %s", p.Host, reportErr.OID)
			}
			log.Printf("[ERROR] %s: %v", p.Host, err)
		}
	}

	if *outFile != "" {
		if err := writeResults(*outFile, all); err != nil {
			log.Fatalf("[ERROR] %v", err)
		}
	}
	if failed {
		os.Exit(1)
	}
}

func newClient(settingsFile string) (*snmpv3.Client, error) {
	cfg := snmpv3.DefaultConfig()
	if settingsFile != "" {
		f, err := os.Open(settingsFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if cfg, err = snmpv3.LoadConfig(f); err != nil {
			return nil, fmt.Errorf("%s: %w", settingsFile, err)
		}
	}
	return cfg.NewClient()
}

func loadOidMap(path string) (*snmpv3.OidMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return snmpv3.LoadOidMap(f)
}

func loadRequests(path string) ([]snmpv3.RequestParams, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return snmpv3.LoadRequests(f)
}

func flagRequest(host, user, authProto, authKey, privProto, privKey, command string, oids []string) (snmpv3.RequestParams, error) {
	auth, err := snmpv3.ParseAuthProtocol(authProto)
	if err != nil {
		return snmpv3.RequestParams{}, err
	}
	priv, err := snmpv3.ParsePrivProtocol(privProto)
	if err != nil {
		return snmpv3.RequestParams{}, err
	}
	cmd, err := snmpv3.ParseCommandType(command)
	if err != nil {
		return snmpv3.RequestParams{}, err
	}
	if len(oids) == 0 && cmd == snmpv3.WalkCommand {
		log.Printf("[INFO] no OID given, walking %s", mib2)
		oids = []string{mib2}
	}
	return snmpv3.RequestParams{
		Host:           host,
		User:           user,
		AuthProtocol:   auth,
		AuthPassphrase: authKey,
		PrivProtocol:   priv,
		PrivPassphrase: privKey,
		Command:        snmpv3.Command{Type: cmd, OIDs: oids},
	}, nil
}

func writeResults(path string, results []snmpv3.SnmpResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err = encodeResults(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeResults(w io.Writer, results []snmpv3.SnmpResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
