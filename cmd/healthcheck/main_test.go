package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProbe(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	assert.Equal(t, 0, probe(healthy.URL, time.Second))
	assert.Equal(t, 1, probe(failing.URL, time.Second))

	// Nothing listening.
	assert.Equal(t, 1, probe("http://127.0.0.1:1/healthz", time.Second))
}
