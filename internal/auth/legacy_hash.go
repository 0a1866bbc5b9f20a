// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package auth

import (
	"crypto/sha1" //nolint:gosec // G505: only for verifying legacy pbkdf2:sha1 digests
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"hash"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// Werkzeug defaults when the method string omits parameters.
const (
	werkzeugPBKDF2Iterations = 600000
	werkzeugScryptN          = 1 << 15
	werkzeugScryptR          = 8
	werkzeugScryptP          = 1
)

// splitWerkzeug splits "method$salt$hexhash" into its parts.
func splitWerkzeug(encoded string) (method []string, salt string, digest []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 {
		return nil, "", nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid werkzeug hash format")
	}
	digest, err = hex.DecodeString(parts[2])
	if err != nil || len(digest) == 0 {
		return nil, "", nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid werkzeug hash digest")
	}
	return strings.Split(parts[0], ":"), parts[1], digest, nil
}

// verifyWerkzeugPBKDF2 checks "pbkdf2:<hash>[:<iterations>]$salt$hex".
func verifyWerkzeugPBKDF2(password, encoded string) (bool, error) {
	method, salt, expected, err := splitWerkzeug(encoded)
	if err != nil {
		return false, err
	}
	if len(method) < 2 || len(method) > 3 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid pbkdf2 method %q", strings.Join(method, ":"))
	}

	var newHash func() hash.Hash
	switch method[1] {
	case "sha256":
		newHash = sha256.New
	case "sha512":
		newHash = sha512.New
	case "sha1":
		newHash = sha1.New
	default:
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported pbkdf2 digest %q", method[1])
	}

	iterations := werkzeugPBKDF2Iterations
	if len(method) == 3 {
		iterations, err = strconv.Atoi(method[2])
		if err != nil || iterations <= 0 {
			return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid pbkdf2 iterations %q", method[2])
		}
	}

	computed := pbkdf2.Key([]byte(password), []byte(salt), iterations, len(expected), newHash)
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// verifyWerkzeugScrypt checks "scrypt[:N:r:p]$salt$hex".
func verifyWerkzeugScrypt(password, encoded string) (bool, error) {
	method, salt, expected, err := splitWerkzeug(encoded)
	if err != nil {
		return false, err
	}

	n, r, p := werkzeugScryptN, werkzeugScryptR, werkzeugScryptP
	switch len(method) {
	case 1:
	case 4:
		params := make([]int, 3)
		for i, raw := range method[1:] {
			params[i], err = strconv.Atoi(raw)
			if err != nil || params[i] <= 0 {
				return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid scrypt parameter %q", raw)
			}
		}
		n, r, p = params[0], params[1], params[2]
	default:
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid scrypt method %q", strings.Join(method, ":"))
	}

	computed, err := scrypt.Key([]byte(password), []byte(salt), n, r, p, len(expected))
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func isBcryptHash(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

func verifyBcrypt(password, encoded string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	return true, nil
}
