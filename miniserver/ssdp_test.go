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
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSsdpIngressRoutesNotifyToCtrlpt(t *testing.T) {
	groupSock := &Socket{}
	reqSock := &Socket{}
	ss := &SocketSet{SsdpReqV4: reqSock}
	var got *ParsedRequest
	var deviceCalled bool
	si := NewSsdpIngress(NewConfig(), ss, nil)
	si.CtrlptHandler = func(req *ParsedRequest) { got = req }
	si.DeviceHandler = func(req *ParsedRequest) { deviceCalled = true }

	payload := []byte("NOTIFY * HTTP/1.1\r\nHost: 239.255.255.250:1900\r\nNT: upnp:rootdevice\r\n\r\n")
	peer := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 5), Port: 1900}
	si.HandleDatagram(groupSock, payload, peer)

	require.NotNil(t, got)
	assert.Equal(t, "NOTIFY", got.Method)
	assert.False(t, deviceCalled, "NOTIFY is control-point input, not device input")
}

func TestSsdpIngressDropsUnrecognizedHost(t *testing.T) {
	groupSock := &Socket{}
	ss := &SocketSet{}
	var called bool
	si := NewSsdpIngress(NewConfig(), ss, nil)
	si.CtrlptHandler = func(req *ParsedRequest) { called = true }

	payload := []byte("NOTIFY * HTTP/1.1\r\nHost: evil.example.com\r\n\r\n")
	si.HandleDatagram(groupSock, payload, &net.UDPAddr{IP: net.IPv4(1, 2, 3, 4)})

	assert.False(t, called)
}

func TestSsdpIngressRoutesMSearchResponseToCtrlpt(t *testing.T) {
	reqSock := &Socket{}
	ss := &SocketSet{SsdpReqV4: reqSock}
	var got *ParsedRequest
	var deviceCalled bool
	si := NewSsdpIngress(NewConfig(), ss, nil)
	si.CtrlptHandler = func(req *ParsedRequest) { got = req }
	si.DeviceHandler = func(req *ParsedRequest) { deviceCalled = true }

	payload := []byte("HTTP/1.1 200 OK\r\nST: upnp:rootdevice\r\n\r\n")
	si.HandleDatagram(reqSock, payload, &net.UDPAddr{IP: net.IPv4(192, 168, 1, 9), Port: 1900})

	require.NotNil(t, got)
	assert.Equal(t, "M-SEARCH-RESPONSE", got.Method)
	assert.False(t, deviceCalled, "a search response is control-point input, not device input")
}

func TestSsdpIngressDropsWrongRequestURI(t *testing.T) {
	groupSock := &Socket{}
	ss := &SocketSet{}
	var called bool
	si := NewSsdpIngress(NewConfig(), ss, nil)
	si.CtrlptHandler = func(req *ParsedRequest) { called = true }

	payload := []byte("NOTIFY /foo HTTP/1.1\r\nHost: 239.255.255.250:1900\r\n\r\n")
	si.HandleDatagram(groupSock, payload, &net.UDPAddr{IP: net.IPv4(1, 2, 3, 4)})

	assert.False(t, called)
}

func TestSsdpIngressRoutesMSearchRequestToDevice(t *testing.T) {
	groupSock := &Socket{}
	ss := &SocketSet{}

	// Handlers installed through the Config registry, the same way Start
	// threads them into a running server's ingress.
	var got *ParsedRequest
	var ctrlptCalled bool
	cfg := NewConfig()
	cfg.SSDPDeviceHandler = func(req *ParsedRequest) { got = req }
	cfg.SSDPCtrlptHandler = func(req *ParsedRequest) { ctrlptCalled = true }
	si := NewSsdpIngress(cfg, ss, nil)

	payload := []byte("M-SEARCH * HTTP/1.1\r\nHost: 239.255.255.250:1900\r\nMAN: \"ssdp:discover\"\r\nST: ssdp:all\r\n\r\n")
	si.HandleDatagram(groupSock, payload, &net.UDPAddr{IP: net.IPv4(192, 168, 1, 9), Port: 1900})

	require.NotNil(t, got)
	assert.Equal(t, "M-SEARCH", got.Method)
	assert.False(t, ctrlptCalled, "a search request is device input, not control-point input")
}
