// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/samber/oops"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 16

type reply struct {
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
	Action  string `json:"action,omitempty"`
}

func (a *api) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.ErrorContext(r.Context(), "write JSON response", "route", routeOf(r), "error", err)
	}
}

func (a *api) writeMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	a.writeJSON(w, r, status, reply{Message: message})
}

// readJSON decodes the body into dst. An empty body leaves dst untouched so
// request validation can report the missing fields.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return oops.Code("HTTP_BAD_BODY").Wrap(err)
	}
	return nil
}
