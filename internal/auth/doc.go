// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

// Package auth implements account identity for SpeakDoc: signup, login
// sessions, and the two challenge flows (email verification and password
// reset) built on single-use expiring tokens.
//
// # Domain Types
//
// User is the only persisted account entity. A user carries at most one
// pending Challenge; verification and reset share that slot, so issuing one
// replaces the other. Construct users with NewUser and sessions with
// NewSession. Direct struct initialization bypasses validation.
//
// # Services
//
//   - Service - signup, login, logout, session authentication
//   - VerificationService - email confirmation challenges
//   - PasswordResetService - reset challenges and password replacement
//
// Services are created with New*Service constructors that validate their
// dependencies. Every read-modify-write against the user store runs inside
// a Transactor so that a token cannot be consumed twice.
package auth
