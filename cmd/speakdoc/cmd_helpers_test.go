// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package main

import (
	"bytes"
	"testing"
)

// isolateConfig keeps the developer's own config and environment out of
// the command under test.
func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MAIL_USERNAME", "")
	t.Setenv("MAIL_PASSWORD", "")
	configFile = ""
	t.Cleanup(func() { configFile = "" })
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

