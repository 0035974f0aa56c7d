// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
)

// SecretsDir is where container runtimes mount secrets.
const SecretsDir = "/run/secrets"

var memguardInitOnce sync.Once

// Secret keeps an API key sealed in a memguard enclave; the plaintext only
// exists in locked memory for the duration of a Use call.
type Secret struct {
	enclave *memguard.Enclave
}

// NewSecret seals value. An empty value yields a Secret that is not Present.
func NewSecret(value string) *Secret {
	memguardInitOnce.Do(memguard.CatchInterrupt)
	value = strings.TrimSpace(value)
	if value == "" {
		return &Secret{}
	}
	return &Secret{enclave: memguard.NewEnclave([]byte(value))}
}

// Present reports whether the secret holds a value.
func (s *Secret) Present() bool { return s != nil && s.enclave != nil }

// Use opens the enclave and passes the plaintext to fn. The plaintext must
// not be retained after fn returns.
func (s *Secret) Use(fn func(plaintext string) error) error {
	if !s.Present() {
		return fmt.Errorf("secret is empty")
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return fmt.Errorf("open secret: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}

// ResolveAPIKey returns the first non-empty key among: explicit, the envVar
// environment variable, and the file SecretsDir/secretName.
func ResolveAPIKey(explicit, envVar, secretName string) string {
	if k := strings.TrimSpace(explicit); k != "" {
		return k
	}
	if envVar != "" {
		if k := strings.TrimSpace(os.Getenv(envVar)); k != "" {
			return k
		}
	}
	if secretName != "" {
		path := filepath.Join(SecretsDir, secretName)
		if content, err := os.ReadFile(path); err == nil {
			slog.Info("Read API key from mounted secret", "path", path)
			return strings.TrimSpace(string(content))
		}
	}
	return ""
}
