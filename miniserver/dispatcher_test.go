/*
 * COPYRIGHT 2019 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

package miniserver

import (
	"bufio"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(cfg *Config) *Dispatcher {
	if cfg == nil {
		cfg = NewConfig()
	}
	return NewDispatcher(cfg, nil)
}

func doRequest(t *testing.T, d *Dispatcher, raw string, remote net.Addr) *http.Response {
	t.Helper()
	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		d.HandleConnection(&pipeConn{Conn: server, remote: remote})
		close(done)
	}()

	_, err := client.Write([]byte(raw))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	<-done
	return resp
}

// pipeConn wraps a net.Pipe() side so it reports a configurable RemoteAddr,
// since net.Pipe's ends have no real address.
type pipeConn struct {
	net.Conn
	remote net.Addr
}

func (p *pipeConn) RemoteAddr() net.Addr { return p.remote }

func TestDispatcherRejectsNonNumericHost(t *testing.T) {
	d := newTestDispatcher(nil)
	raw := "GET / HTTP/1.1\r\nHost: evil.example.com\r\n\r\n"
	resp := doRequest(t, d, raw, &net.TCPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 5555})
	assert.Equal(t, 400, resp.StatusCode)
}

func TestDispatcherAcceptsNumericHost(t *testing.T) {
	cfg := NewConfig()
	cfg.Handlers[RequestWebGet] = func(req *ParsedRequest) *Response {
		return &Response{StatusCode: 200, Reason: "OK", Entity: []byte("hi")}
	}
	d := newTestDispatcher(cfg)
	raw := "GET / HTTP/1.1\r\nHost: 127.0.0.1:80\r\n\r\n"
	resp := doRequest(t, d, raw, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 80})
	assert.Equal(t, 200, resp.StatusCode)
}

func TestDispatcherRedirectsWhenAllowed(t *testing.T) {
	cfg := NewConfig()
	cfg.AllowLiteralHostRedirection = true
	cfg.IPv4 = net.IPv4(127, 0, 0, 1)
	d := newTestDispatcher(cfg)
	raw := "GET /x HTTP/1.1\r\nHost: evil.example.com\r\n\r\n"
	resp := doRequest(t, d, raw, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 80})
	assert.Equal(t, 307, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "127.0.0.1")
}

func TestDispatcherHostValidatorRejects(t *testing.T) {
	cfg := NewConfig()
	cfg.HostValidator = func(host string) bool { return host == "127.0.0.1" }
	cfg.Handlers[RequestWebGet] = func(req *ParsedRequest) *Response {
		return &Response{StatusCode: 200}
	}
	d := newTestDispatcher(cfg)
	raw := "GET / HTTP/1.1\r\nHost: 10.0.0.9\r\n\r\n"
	resp := doRequest(t, d, raw, &net.TCPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 1})
	assert.Equal(t, 400, resp.StatusCode)
}

func TestDispatcherHostValidatorOverridesNumericCheck(t *testing.T) {
	cfg := NewConfig()
	cfg.HostValidator = func(host string) bool { return host == "cp.example.com" }
	cfg.Handlers[RequestWebGet] = func(req *ParsedRequest) *Response {
		return &Response{StatusCode: 200}
	}
	d := newTestDispatcher(cfg)
	raw := "GET / HTTP/1.1\r\nHost: cp.example.com\r\n\r\n"
	resp := doRequest(t, d, raw, &net.TCPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 1})
	assert.Equal(t, 200, resp.StatusCode)
}
