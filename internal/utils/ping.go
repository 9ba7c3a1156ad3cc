package utils

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"
)

// PingTimeout bounds a single reachability probe
const PingTimeout = 1500 * time.Millisecond

var defaultPorts = map[string]string{"http": "80", "https": "443"}

// PingService opens and closes a TCP connection to the host of serviceURL
func PingService(ctx context.Context, serviceURL string) error {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	port := u.Port()
	if port == "" {
		if port = defaultPorts[u.Scheme]; port == "" {
			port = "80"
		}
	}
	address := net.JoinHostPort(u.Hostname(), port)

	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return conn.Close()
}

// PingServer checks the local HTTP listener on port
func PingServer(port string) error {
	return PingService(context.Background(), "http://127.0.0.1:"+port)
}
