// Copyright 2026 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv3

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/des" //nolint:gosec
	"crypto/hmac"
	_ "crypto/md5" //nolint:gosec
	"crypto/rand"
	_ "crypto/sha1" //nolint:gosec
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"strings"
	"sync"
)

// SnmpV3AuthProtocol describes the authentication protocol in use by an authenticated SnmpV3 connection.
type SnmpV3AuthProtocol uint8

// NoAuth is declared for completeness; only MD5 and SHA are implemented.
const (
	NoAuth SnmpV3AuthProtocol = 1
	MD5    SnmpV3AuthProtocol = 2
	SHA    SnmpV3AuthProtocol = 3
)

func (a SnmpV3AuthProtocol) String() string {
	switch a {
	case NoAuth:
		return "NoAuth"
	case MD5:
		return "MD5"
	case SHA:
		return "SHA1"
	default:
		return fmt.Sprintf("SnmpV3AuthProtocol(%d)", uint8(a))
	}
}

// HashType maps the protocol to its crypto.Hash.
func (a SnmpV3AuthProtocol) HashType() crypto.Hash {
	switch a {
	case MD5:
		return crypto.MD5
	case SHA:
		return crypto.SHA1
	default:
		return 0
	}
}

// ParseAuthProtocol accepts "MD5", "SHA", "SHA1" and "NoAuth" in any case.
func ParseAuthProtocol(s string) (SnmpV3AuthProtocol, error) {
	switch strings.ToUpper(s) {
	case "MD5":
		return MD5, nil
	case "SHA", "SHA1":
		return SHA, nil
	case "NOAUTH", "":
		return NoAuth, nil
	}
	return 0, fmt.Errorf("%w: unknown auth protocol %q", ErrBadInput, s)
}

// SnmpV3PrivProtocol is the privacy protocol in use by an private SnmpV3 connection.
type SnmpV3PrivProtocol uint8

// NoPriv is declared for completeness; DES and AES (128) are implemented.
const (
	NoPriv SnmpV3PrivProtocol = 1
	DES    SnmpV3PrivProtocol = 2
	AES    SnmpV3PrivProtocol = 3
)

func (p SnmpV3PrivProtocol) String() string {
	switch p {
	case NoPriv:
		return "NoPriv"
	case DES:
		return "DES"
	case AES:
		return "AES128"
	default:
		return fmt.Sprintf("SnmpV3PrivProtocol(%d)", uint8(p))
	}
}

// ParsePrivProtocol accepts "DES", "AES", "AES128" and "NoPriv" in any case.
func ParsePrivProtocol(s string) (SnmpV3PrivProtocol, error) {
	switch strings.ToUpper(s) {
	case "DES":
		return DES, nil
	case "AES", "AES128":
		return AES, nil
	case "NOPRIV", "":
		return NoPriv, nil
	}
	return 0, fmt.Errorf("%w: unknown privacy protocol %q", ErrBadInput, s)
}

const (
	// usmAuthParamLen is the length of HMAC-MD5-96 and HMAC-SHA-96 tags.
	usmAuthParamLen = 12
	usmPrivParamLen = 8
	// passwordExpandLen is the RFC 3414 A.2 expansion length.
	passwordExpandLen = 1048576
)

// maxCachedKeys bounds the Ku cache; an arbitrary entry is evicted when full.
const maxCachedKeys = 1024

type keyCacheKey struct {
	proto  SnmpV3AuthProtocol
	digest [sha256.Size]byte
}

var (
	passwordKeyCacheMu sync.Mutex
	passwordKeyCache   = make(map[keyCacheKey][]byte)
)

// cachedPasswordToKey memoises passwordToKey; the derivation hashes a full
// megabyte per call. Entries are keyed by a secretDigest of the password,
// never the password itself.
func cachedPasswordToKey(proto SnmpV3AuthProtocol, password string) ([]byte, error) {
	k := keyCacheKey{proto: proto, digest: secretDigest([]byte(password))}

	passwordKeyCacheMu.Lock()
	ku, ok := passwordKeyCache[k]
	passwordKeyCacheMu.Unlock()
	if ok {
		return ku, nil
	}

	ku, err := passwordToKey(proto, password)
	if err != nil {
		return nil, err
	}

	passwordKeyCacheMu.Lock()
	if len(passwordKeyCache) >= maxCachedKeys {
		for old := range passwordKeyCache {
			delete(passwordKeyCache, old)
			break
		}
	}
	passwordKeyCache[k] = ku
	passwordKeyCacheMu.Unlock()
	return ku, nil
}

// processKey keys secretDigest. It is random per process so digests cannot
// be matched against precomputed password hashes.
var processKey = func() []byte {
	key := make([]byte, sha256.Size)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("snmpv3: reading random key: %v", err))
	}
	return key
}()

// secretDigest is HMAC-SHA256 of the given parts under processKey. Each part
// is length prefixed so part boundaries are unambiguous.
func secretDigest(parts ...[]byte) [sha256.Size]byte {
	mac := hmac.New(sha256.New, processKey)
	var n [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(n[:], uint32(len(p)))
		mac.Write(n[:])
		mac.Write(p)
	}
	var sum [sha256.Size]byte
	copy(sum[:], mac.Sum(nil))
	return sum
}

// passwordToKey implements RFC 3414 A.2: hash 1MiB of the cyclically
// repeated password.
func passwordToKey(proto SnmpV3AuthProtocol, password string) ([]byte, error) {
	h, err := newHash(proto)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("%w: empty passphrase", ErrBadInput)
	}

	pw := []byte(password)
	var chunk [64]byte
	pwIndex := 0
	for count := 0; count < passwordExpandLen; count += len(chunk) {
		for i := range chunk {
			chunk[i] = pw[pwIndex%len(pw)]
			pwIndex++
		}
		h.Write(chunk[:])
	}
	return h.Sum(nil), nil
}

// localizeKey computes Kul = H(Ku || engineID || Ku).
func localizeKey(proto SnmpV3AuthProtocol, ku, engineID []byte) ([]byte, error) {
	h, err := newHash(proto)
	if err != nil {
		return nil, err
	}
	h.Write(ku)
	h.Write(engineID)
	h.Write(ku)
	return h.Sum(nil), nil
}

// genLocalizedKey derives the localized key for password at engineID.
func genLocalizedKey(proto SnmpV3AuthProtocol, password string, engineID []byte) ([]byte, error) {
	ku, err := cachedPasswordToKey(proto, password)
	if err != nil {
		return nil, err
	}
	return localizeKey(proto, ku, engineID)
}

func newHash(proto SnmpV3AuthProtocol) (hash.Hash, error) {
	switch proto {
	case MD5, SHA:
		return proto.HashType().New(), nil
	}
	return nil, fmt.Errorf("%w: unsupported auth protocol %s", ErrBadInput, proto)
}

// hmac96 returns the first 12 bytes of HMAC(key, msg).
func hmac96(proto SnmpV3AuthProtocol, key, msg []byte) ([]byte, error) {
	if _, err := newHash(proto); err != nil {
		return nil, err
	}
	mac := hmac.New(proto.HashType().New, key)
	mac.Write(msg)
	return mac.Sum(nil)[:usmAuthParamLen], nil
}

// authenticate patches the 12 byte placeholder at authParamOffset with the
// HMAC of the whole message. The placeholder must be zeroed on entry.
func authenticate(proto SnmpV3AuthProtocol, key, msg []byte, authParamOffset int) error {
	if authParamOffset < 0 || authParamOffset+usmAuthParamLen > len(msg) {
		return fmt.Errorf("%w: auth parameter offset %d out of range", ErrBadInput, authParamOffset)
	}
	tag, err := hmac96(proto, key, msg)
	if err != nil {
		return err
	}
	copy(msg[authParamOffset:], tag)
	return nil
}

// verifyAuthentication recomputes the tag with the authParam field zeroed and
// compares it in constant time. msg is not modified.
func verifyAuthentication(proto SnmpV3AuthProtocol, key, msg []byte, authParamOffset int) error {
	if authParamOffset < 0 || authParamOffset+usmAuthParamLen > len(msg) {
		return fmt.Errorf("%w: auth parameter offset %d out of range", ErrAuthFailure, authParamOffset)
	}
	received := make([]byte, usmAuthParamLen)
	copy(received, msg[authParamOffset:authParamOffset+usmAuthParamLen])

	blanked := make([]byte, len(msg))
	copy(blanked, msg)
	clear(blanked[authParamOffset : authParamOffset+usmAuthParamLen])

	expected, err := hmac96(proto, key, blanked)
	if err != nil {
		return err
	}
	if !hmac.Equal(received, expected) {
		return fmt.Errorf("%w: digest mismatch", ErrAuthFailure)
	}
	return nil
}

// desSalt builds the 8 byte DES privParam: engineBoots || counter.
func desSalt(boots, counter uint32) []byte {
	salt := make([]byte, usmPrivParamLen)
	binary.BigEndian.PutUint32(salt, boots)
	binary.BigEndian.PutUint32(salt[4:], counter)
	return salt
}

// aesSalt builds the 8 byte AES privParam from the 64 bit counter.
func aesSalt(counter uint64) []byte {
	salt := make([]byte, usmPrivParamLen)
	binary.BigEndian.PutUint64(salt, counter)
	return salt
}

// desEncrypt implements RFC 3414 section 8.1.1.1.
func desEncrypt(plaintext, privKey, salt []byte) ([]byte, error) {
	if len(privKey) < 16 {
		return nil, fmt.Errorf("%w: DES key too short", ErrBadInput)
	}
	if len(salt) != usmPrivParamLen {
		return nil, fmt.Errorf("%w: DES salt must be %d bytes", ErrBadInput, usmPrivParamLen)
	}
	block, err := des.NewCipher(privKey[:8]) //nolint:gosec
	if err != nil {
		return nil, err
	}

	iv := make([]byte, des.BlockSize)
	for i := range iv {
		iv[i] = privKey[8+i] ^ salt[i]
	}

	// pad with zeroes; the scopedPDU carries its own length
	padded := make([]byte, len(plaintext)+(des.BlockSize-len(plaintext)%des.BlockSize)%des.BlockSize)
	copy(padded, plaintext)
	if len(padded) == 0 {
		padded = make([]byte, des.BlockSize)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

func desDecrypt(ciphertext, privKey, salt []byte) ([]byte, error) {
	if len(privKey) < 16 {
		return nil, fmt.Errorf("%w: DES key too short", ErrDecryptFailure)
	}
	if len(salt) != usmPrivParamLen {
		return nil, fmt.Errorf("%w: DES privacy parameters must be %d bytes, got %d", ErrDecryptFailure, usmPrivParamLen, len(salt))
	}
	if len(ciphertext) == 0 || len(ciphertext)%des.BlockSize != 0 {
		return nil, fmt.Errorf("%w: DES ciphertext length %d is not a multiple of %d", ErrDecryptFailure, len(ciphertext), des.BlockSize)
	}
	block, err := des.NewCipher(privKey[:8]) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}

	iv := make([]byte, des.BlockSize)
	for i := range iv {
		iv[i] = privKey[8+i] ^ salt[i]
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return plaintext, nil
}

// aesIV builds the RFC 3826 section 3.1.2.1 IV.
func aesIV(boots, engineTime uint32, salt []byte) []byte {
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint32(iv, boots)
	binary.BigEndian.PutUint32(iv[4:], engineTime)
	copy(iv[8:], salt)
	return iv
}

// aesEncrypt implements AES-128-CFB as per RFC 3826.
func aesEncrypt(plaintext, privKey []byte, boots, engineTime uint32, salt []byte) ([]byte, error) {
	if len(privKey) < 16 {
		return nil, fmt.Errorf("%w: AES key too short", ErrBadInput)
	}
	if len(salt) != usmPrivParamLen {
		return nil, fmt.Errorf("%w: AES salt must be %d bytes", ErrBadInput, usmPrivParamLen)
	}
	block, err := aes.NewCipher(privKey[:16])
	if err != nil {
		return nil, err
	}
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCFBEncrypter(block, aesIV(boots, engineTime, salt)).XORKeyStream(ciphertext, plaintext) //nolint:staticcheck
	return ciphertext, nil
}

func aesDecrypt(ciphertext, privKey []byte, boots, engineTime uint32, salt []byte) ([]byte, error) {
	if len(privKey) < 16 {
		return nil, fmt.Errorf("%w: AES key too short", ErrDecryptFailure)
	}
	if len(salt) != usmPrivParamLen {
		return nil, fmt.Errorf("%w: AES privacy parameters must be %d bytes, got %d", ErrDecryptFailure, usmPrivParamLen, len(salt))
	}
	block, err := aes.NewCipher(privKey[:16])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCFBDecrypter(block, aesIV(boots, engineTime, salt)).XORKeyStream(plaintext, ciphertext) //nolint:staticcheck
	return plaintext, nil
}
