// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package openapi embeds the HTTP API description.
package openapi

import (
	_ "embed"
	"errors"
	"net/http"
)

//go:embed openapi.yaml
var spec []byte

func GetOpenAPISpec() ([]byte, error) {
	if len(spec) == 0 {
		return nil, errors.New("openapi spec not embedded")
	}
	return spec, nil
}

// ServeSpec writes the embedded document as YAML.
func ServeSpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(spec)
}
