// Package main provides the healthcheck binary used as a container probe
// for svgsync-server: it hits the health endpoint and exits 0 on a 2xx
// response, 1 otherwise.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	url := flag.String("url", "http://localhost:8084/healthz", "endpoint to probe")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	os.Exit(probe(*url, *timeout))
}

func probe(url string, timeout time.Duration) int {
	client := &http.Client{Timeout: timeout}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fmt.Fprintf(os.Stderr, "healthcheck: %s returned status %d\n", url, resp.StatusCode)
		return 1
	}
	return 0
}
