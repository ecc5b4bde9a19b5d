package gemini

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"google.golang.org/api/option"
	"google.golang.org/grpc"
)

// proxyDialOption returns a gRPC dial option that tunnels the connection
// through an HTTP CONNECT proxy. The proxy address is explicit run
// configuration, never read from the process environment.
func proxyDialOption(proxyURL string) (option.ClientOption, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy URL %q has no host", proxyURL)
	}
	proxyAddr := u.Host

	dialer := func(ctx context.Context, target string) (net.Conn, error) {
		return dialViaConnect(ctx, proxyAddr, target)
	}
	return option.WithGRPCDialOption(grpc.WithContextDialer(dialer)), nil
}

// dialViaConnect opens a TCP connection to the proxy and issues an HTTP
// CONNECT for the target address.
func dialViaConnect(ctx context.Context, proxyAddr, target string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial proxy %s: %w", proxyAddr, err)
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: target},
		Host:   target,
		Header: make(http.Header),
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to write CONNECT request: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read CONNECT response: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("proxy refused CONNECT to %s: %s", target, resp.Status)
	}
	return conn, nil
}
