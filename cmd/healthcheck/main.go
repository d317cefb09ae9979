// Container liveness probe: exits 0 when the engine's health endpoint
// answers 200 within the probe timeout, 1 otherwise.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"
)

const (
	probeTimeout = 2 * time.Second
	defaultAddr  = "127.0.0.1:8080"
)

func main() {
	if err := probe(); err != nil {
		os.Exit(1)
	}
}

func probe() error {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	url := "http://" + probeAddr(os.Getenv("CTFSYNC_LISTEN_ADDR")) + "/api/v1/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: probeTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New("health endpoint not ok")
	}
	return nil
}

// probeAddr rewrites the engine's listen address to loopback. The server
// binds 0.0.0.0 in a container, but the probe runs inside the same container
// and must dial 127.0.0.1.
func probeAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return defaultAddr
	}
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
