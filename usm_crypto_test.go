// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecodeHex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// RFC 3414 appendix A.3
func TestPasswordToKeyVectors(t *testing.T) {
	engineID := mustDecodeHex(t, "000000000000000000000002")

	tests := []struct {
		proto SnmpV3AuthProtocol
		ku    string
		kul   string
	}{
		{MD5, "9faf3283884e92834ebc9847d8edd963", "526f5eed9fcce26f8964c2930787d82b"},
		{SHA, "9fb5cc0381497b3793528939ff788d5d79145211", "6695febc9288e36282235fc7151f128497b38f3f"},
	}
	for _, tt := range tests {
		t.Run(tt.proto.String(), func(t *testing.T) {
			ku, err := passwordToKey(tt.proto, "maplesyrup")
			require.NoError(t, err)
			assert.Equal(t, tt.ku, hex.EncodeToString(ku))

			kul, err := genLocalizedKey(tt.proto, "maplesyrup", engineID)
			require.NoError(t, err)
			assert.Equal(t, tt.kul, hex.EncodeToString(kul))

			// second call is served from the cache
			again, err := genLocalizedKey(tt.proto, "maplesyrup", engineID)
			require.NoError(t, err)
			assert.Equal(t, kul, again)
		})
	}
}

func TestPasswordKeyCacheBounded(t *testing.T) {
	passwordKeyCacheMu.Lock()
	saved := passwordKeyCache
	passwordKeyCache = make(map[keyCacheKey][]byte, maxCachedKeys)
	for i := 0; i < maxCachedKeys; i++ {
		passwordKeyCache[keyCacheKey{proto: MD5, digest: secretDigest([]byte(fmt.Sprint(i)))}] = []byte{byte(i)}
	}
	passwordKeyCacheMu.Unlock()
	t.Cleanup(func() {
		passwordKeyCacheMu.Lock()
		passwordKeyCache = saved
		passwordKeyCacheMu.Unlock()
	})

	ku, err := cachedPasswordToKey(MD5, "maplesyrup")
	require.NoError(t, err)
	assert.Equal(t, mustDecodeHex(t, "9faf3283884e92834ebc9847d8edd963"), ku)

	passwordKeyCacheMu.Lock()
	defer passwordKeyCacheMu.Unlock()
	assert.Len(t, passwordKeyCache, maxCachedKeys)
	assert.Contains(t, passwordKeyCache, keyCacheKey{proto: MD5, digest: secretDigest([]byte("maplesyrup"))})
}

func TestSecretDigest(t *testing.T) {
	assert.Equal(t, secretDigest([]byte("a"), []byte("bc")), secretDigest([]byte("a"), []byte("bc")))
	assert.NotEqual(t, secretDigest([]byte("a"), []byte("bc")), secretDigest([]byte("ab"), []byte("c")))
	assert.NotEqual(t, secretDigest([]byte("maplesyrup")), sha256.Sum256([]byte("maplesyrup")))
}

func TestPasswordToKeyRejects(t *testing.T) {
	_, err := passwordToKey(SHA, "")
	assert.ErrorIs(t, err, ErrBadInput)

	_, err = passwordToKey(NoAuth, "maplesyrup")
	assert.ErrorIs(t, err, ErrBadInput)
}

// RFC 2202 test cases 1 and 2, truncated to 96 bits.
func TestHMAC96Vectors(t *testing.T) {
	tests := []struct {
		proto SnmpV3AuthProtocol
		key   []byte
		data  string
		want  string
	}{
		{MD5, bytes.Repeat([]byte{0x0b}, 16), "Hi There", "9294727a3638bb1c13f48ef8"},
		{MD5, []byte("Jefe"), "what do ya want for nothing?", "750c783e6ab0b503eaa86e31"},
		{SHA, bytes.Repeat([]byte{0x0b}, 20), "Hi There", "b617318655057264e28bc0b6"},
		{SHA, []byte("Jefe"), "what do ya want for nothing?", "effcdf6ae5eb2fa2d27416d5"},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("%s-%d", tt.proto, i), func(t *testing.T) {
			tag, err := hmac96(tt.proto, tt.key, []byte(tt.data))
			require.NoError(t, err)
			assert.Len(t, tag, usmAuthParamLen)
			assert.Equal(t, tt.want, hex.EncodeToString(tag))
		})
	}
}

func authTestMessage(t *testing.T) ([]byte, int) {
	t.Helper()
	pdu, err := newRequestPDU(GetRequest, 42, []OID{MustParseOID("1.3.6.1.2.1.1.1.0")})
	require.NoError(t, err)
	msg := &SnmpV3Message{
		MsgID:         7,
		MsgMaxSize:    defaultMaxMsgSize,
		MsgFlags:      AuthNoPriv | Reportable,
		SecurityModel: UserSecurityModel,
		SecurityParameters: &UsmSecurityParameters{
			AuthoritativeEngineID:    []byte{0x80, 0x00, 0x1f, 0x88, 0x01},
			AuthoritativeEngineBoots: 3,
			AuthoritativeEngineTime:  1234,
			UserName:                 "monitor",
		},
		ScopedPDU: &ScopedPDU{ContextEngineID: []byte{0x80, 0x00, 0x1f, 0x88, 0x01}, PDU: pdu},
	}
	out, offset, err := msg.marshalMsg()
	require.NoError(t, err)
	require.Equal(t, make([]byte, usmAuthParamLen), out[offset:offset+usmAuthParamLen])
	return out, offset
}

func TestAuthenticateVerify(t *testing.T) {
	for _, proto := range []SnmpV3AuthProtocol{MD5, SHA} {
		t.Run(proto.String(), func(t *testing.T) {
			key, err := genLocalizedKey(proto, "authsecret", []byte{0x80, 0x00, 0x1f, 0x88, 0x01})
			require.NoError(t, err)

			msg, offset := authTestMessage(t)
			require.NoError(t, authenticate(proto, key, msg, offset))
			assert.NotEqual(t, make([]byte, usmAuthParamLen), msg[offset:offset+usmAuthParamLen])
			require.NoError(t, verifyAuthentication(proto, key, msg, offset))

			// re-authenticating after zeroing the placeholder yields the same bytes
			again := bytes.Clone(msg)
			clear(again[offset : offset+usmAuthParamLen])
			require.NoError(t, authenticate(proto, key, again, offset))
			assert.Equal(t, msg, again)

			tampered := bytes.Clone(msg)
			tampered[len(tampered)-1] ^= 0x01
			assert.ErrorIs(t, verifyAuthentication(proto, key, tampered, offset), ErrAuthFailure)

			wrongKey, err := genLocalizedKey(proto, "othersecret", []byte{0x80, 0x00, 0x1f, 0x88, 0x01})
			require.NoError(t, err)
			assert.ErrorIs(t, verifyAuthentication(proto, wrongKey, msg, offset), ErrAuthFailure)
		})
	}
}

func TestAuthenticateOffsetOutOfRange(t *testing.T) {
	msg := make([]byte, 20)
	assert.ErrorIs(t, authenticate(SHA, []byte("k"), msg, 10), ErrBadInput)
	assert.ErrorIs(t, authenticate(SHA, []byte("k"), msg, -1), ErrBadInput)
	assert.ErrorIs(t, verifyAuthentication(SHA, []byte("k"), msg, 9), ErrAuthFailure)
}

func TestPrivacyRoundTrip(t *testing.T) {
	privKey, err := genLocalizedKey(SHA, "privsecret", []byte{0x80, 0x00, 0x1f, 0x88, 0x01})
	require.NoError(t, err)

	sp := &UsmSecurityParameters{AuthoritativeEngineBoots: 11, AuthoritativeEngineTime: 98765}
	for _, proto := range []SnmpV3PrivProtocol{DES, AES} {
		t.Run(proto.String(), func(t *testing.T) {
			for n := 0; n <= 1024; n++ {
				plaintext := make([]byte, n)
				for i := range plaintext {
					plaintext[i] = byte(i*7 + n)
				}
				var salt []byte
				if proto == DES {
					salt = desSalt(sp.AuthoritativeEngineBoots, uint32(n))
				} else {
					salt = aesSalt(uint64(n) << 20)
				}

				ciphertext, err := usmEncrypt(proto, privKey, sp, salt, plaintext)
				require.NoError(t, err, "length %d", n)
				if proto == DES {
					require.Zero(t, len(ciphertext)%8, "length %d", n)
					require.GreaterOrEqual(t, len(ciphertext), 8)
				} else {
					require.Len(t, ciphertext, n)
				}

				rsp := sp.Copy()
				rsp.PrivacyParameters = salt
				decrypted, err := usmDecrypt(proto, privKey, rsp, ciphertext)
				require.NoError(t, err, "length %d", n)
				require.Equal(t, plaintext, decrypted[:n], "length %d", n)
			}
		})
	}
}

func TestDecryptRejects(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 16)
	sp := &UsmSecurityParameters{PrivacyParameters: make([]byte, 8)}

	_, err := usmDecrypt(DES, key, sp, make([]byte, 7))
	assert.ErrorIs(t, err, ErrDecryptFailure)

	_, err = usmDecrypt(DES, key, &UsmSecurityParameters{PrivacyParameters: []byte{1, 2}}, make([]byte, 8))
	assert.ErrorIs(t, err, ErrDecryptFailure)

	_, err = usmDecrypt(AES, key, &UsmSecurityParameters{}, make([]byte, 16))
	assert.ErrorIs(t, err, ErrDecryptFailure)

	_, err = usmDecrypt(NoPriv, key, sp, make([]byte, 8))
	assert.ErrorIs(t, err, ErrDecryptFailure)

	_, err = usmEncrypt(AES, key[:8], sp, make([]byte, 8), []byte("x"))
	assert.ErrorIs(t, err, ErrBadInput)
}

func TestSaltLayout(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 5, 0, 0, 1, 0}, desSalt(5, 256))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 9}, aesSalt(9))
	assert.Equal(t,
		[]byte{0, 0, 0, 1, 0, 0, 0, 2, 0xa, 0xb, 0xc, 0xd, 0xe, 0xf, 0x10, 0x11},
		aesIV(1, 2, []byte{0xa, 0xb, 0xc, 0xd, 0xe, 0xf, 0x10, 0x11}))
}

func TestParseProtocols(t *testing.T) {
	for in, want := range map[string]SnmpV3AuthProtocol{"md5": MD5, "SHA": SHA, "sha1": SHA, "": NoAuth} {
		got, err := ParseAuthProtocol(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	for in, want := range map[string]SnmpV3PrivProtocol{"des": DES, "AES": AES, "aes128": AES, "NoPriv": NoPriv} {
		got, err := ParsePrivProtocol(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseAuthProtocol("SHA512")
	assert.True(t, errors.Is(err, ErrBadInput))
	_, err = ParsePrivProtocol("AES256")
	assert.True(t, errors.Is(err, ErrBadInput))

	assert.Equal(t, "SHA1", SHA.String())
	assert.Equal(t, "AES128", AES.String())
}
