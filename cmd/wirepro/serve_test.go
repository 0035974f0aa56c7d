// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirepro/wirepro/pkg/ux"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestRunServe_InMemoryLifecycle(t *testing.T) {
	opts := testOptions(t, &bytes.Buffer{}, ux.LevelMachine)
	opts.cfg.Server.Port = freePort(t)
	opts.cfg.Server.ShutdownTimeout = time.Second
	opts.cfg.Storage.InMemory = true
	opts.cfg.Storage.SweepInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, opts) }()

	base := "http://127.0.0.1:" + strconv.Itoa(opts.cfg.Server.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/v1/conversations")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"count":0`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not return after cancellation")
	}
}

func TestRunServe_BadStoragePath(t *testing.T) {
	opts := testOptions(t, &bytes.Buffer{}, ux.LevelMachine)
	opts.cfg.Server.Port = freePort(t)
	opts.cfg.Storage.Path = "/dev/null/conversations"

	err := runServe(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open conversation store")
}
