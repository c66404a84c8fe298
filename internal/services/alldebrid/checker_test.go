// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package alldebrid

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transientErr = &APIError{Code: "REDIRECTOR_ERROR", Message: "Could not extract links"}

type fakeUnlocker struct {
	mu sync.Mutex

	redirector func(attempt int) ([]string, error)
	unlock     map[string]*UnlockedLink

	redirectorCalls int
	unlockCalls     []string
}

func (f *fakeUnlocker) Redirector(_ context.Context, _ string) ([]string, error) {
	f.mu.Lock()
	f.redirectorCalls++
	attempt := f.redirectorCalls
	f.mu.Unlock()
	return f.redirector(attempt)
}

func (f *fakeUnlocker) Unlock(_ context.Context, link string) (*UnlockedLink, error) {
	f.mu.Lock()
	f.unlockCalls = append(f.unlockCalls, link)
	f.mu.Unlock()

	if u, ok := f.unlock[link]; ok {
		return u, nil
	}
	return nil, &APIError{Code: "LINK_DOWN", Message: "link down"}
}

func links(l ...string) func(int) ([]string, error) {
	return func(int) ([]string, error) { return l, nil }
}

func TestCheckFirstUnlockWins(t *testing.T) {
	api := &fakeUnlocker{
		redirector: links("r1", "r2", "r3"),
		unlock: map[string]*UnlockedLink{
			"r2": {Link: "https://cdn.example/a.mkv", Filename: "a.mkv", Filesize: 42},
			"r3": {Link: "https://cdn.example/b.mkv"},
		},
	}
	reg := prometheus.NewRegistry()
	checker := NewChecker(api, CheckerConfig{}, WithCheckerMetrics(NewMetrics(reg)))

	res, err := checker.Check(context.Background(), "https://dl-protect.link/x")
	require.NoError(t, err)
	assert.Equal(t, &LinkAvailability{Available: true, DebridedLink: "https://cdn.example/a.mkv", Filename: "a.mkv", Filesize: 42}, res)
	assert.Equal(t, []string{"r1", "r2"}, api.unlockCalls)
	assert.Equal(t, 1.0, testutil.ToFloat64(checker.metrics.Checks.WithLabelValues("available")))
}

func TestCheckUnavailable(t *testing.T) {
	tests := []struct {
		name       string
		redirector func(int) ([]string, error)
		wantError  string
	}{
		{"empty redirector", links(), "no links found in redirector"},
		{"nothing unlocked", links("r1", "r2"), "no link could be unlocked"},
		{"terminal api error", func(int) ([]string, error) {
			return nil, &APIError{Code: "LINK_HOST_NOT_SUPPORTED", Message: "host not supported"}
		}, "LINK_HOST_NOT_SUPPORTED: host not supported"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeUnlocker{redirector: tt.redirector}
			checker := NewChecker(api, CheckerConfig{RetryDelay: time.Millisecond})

			res, err := checker.Check(context.Background(), "https://dl-protect.link/x")
			require.NoError(t, err)
			assert.False(t, res.Available)
			assert.Equal(t, tt.wantError, res.Error)
			assert.Equal(t, 1, api.redirectorCalls)
		})
	}
}

func TestCheckRetriesTransientErrors(t *testing.T) {
	api := &fakeUnlocker{
		redirector: func(attempt int) ([]string, error) {
			if attempt < 4 {
				return nil, transientErr
			}
			return []string{"r1"}, nil
		},
		unlock: map[string]*UnlockedLink{"r1": {Link: "https://cdn.example/a.mkv"}},
	}
	reg := prometheus.NewRegistry()
	checker := NewChecker(api, CheckerConfig{RetryDelay: time.Millisecond}, WithCheckerMetrics(NewMetrics(reg)))

	res, err := checker.Check(context.Background(), "https://dl-protect.link/x")
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Equal(t, 4, api.redirectorCalls)
	assert.Equal(t, 3.0, testutil.ToFloat64(checker.metrics.TransientErrors))
}

func TestCheckBoundedRetries(t *testing.T) {
	api := &fakeUnlocker{redirector: func(int) ([]string, error) { return nil, transientErr }}
	checker := NewChecker(api, CheckerConfig{RetryDelay: time.Millisecond, MaxRetries: 2})

	res, err := checker.Check(context.Background(), "https://dl-protect.link/x")
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, transientErr.Error(), res.Error)
	assert.Equal(t, 3, api.redirectorCalls)
}

func TestCheckerSetConfig(t *testing.T) {
	api := &fakeUnlocker{redirector: func(int) ([]string, error) { return nil, transientErr }}
	checker := NewChecker(api, CheckerConfig{RetryDelay: time.Millisecond, MaxRetries: 5})

	checker.SetConfig(CheckerConfig{RetryDelay: -1, MaxRetries: 1})
	assert.Equal(t, CheckerConfig{RetryDelay: DefaultRetryDelay, MaxRetries: 1}, checker.config())

	checker.SetConfig(CheckerConfig{RetryDelay: time.Millisecond, MaxRetries: 1})
	res, err := checker.Check(context.Background(), "https://dl-protect.link/x")
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, 2, api.redirectorCalls)
}

func TestCheckCancelledBeforeStart(t *testing.T) {
	api := &fakeUnlocker{redirector: links("r1")}
	checker := NewChecker(api, CheckerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := checker.Check(ctx, "https://dl-protect.link/x")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, api.redirectorCalls)
}

func TestCheckCancelInterruptsRetryWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	api := &fakeUnlocker{redirector: func(attempt int) ([]string, error) {
		if attempt == 2 {
			cancel()
		}
		return nil, transientErr
	}}
	checker := NewChecker(api, CheckerConfig{RetryDelay: 20 * time.Millisecond})

	done := make(chan error, 1)
	go func() {
		_, err := checker.Check(ctx, "https://dl-protect.link/x")
		done <- err
	}()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrCancelled))
	case <-time.After(5 * time.Second):
		t.Fatal("check did not stop after cancellation")
	}
	assert.Equal(t, 2, api.redirectorCalls)
}

func TestCheckCancelledBetweenUnlocks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	api := &fakeUnlocker{redirector: func(int) ([]string, error) {
		cancel()
		return []string{"r1", "r2"}, nil
	}}
	checker := NewChecker(api, CheckerConfig{})

	_, err := checker.Check(ctx, "https://dl-protect.link/x")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, api.unlockCalls)
}
