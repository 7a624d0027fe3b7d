/*
 * COPYRIGHT 2019 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

package httpmsg

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestIncomplete(t *testing.T) {
	_, outcome, _ := ParseRequest([]byte("GET /foo HTTP/1.1\r\nHost: 127"))
	assert.Equal(t, Incomplete, outcome)
}

func TestParseRequestSuccess(t *testing.T) {
	raw := "POST /control HTTP/1.1\r\nHost: 127.0.0.1:80\r\nSOAPACTION: \"urn:x\"\r\nContent-Length: 5\r\n\r\nhello"
	msg, outcome, _ := ParseRequest([]byte(raw))
	require.Equal(t, Success, outcome)
	assert.Equal(t, MethodSoapPost, msg.Method)
	assert.Equal(t, "/control", msg.RequestURI)
	assert.Equal(t, "hello", string(msg.Entity))
	assert.Equal(t, "127.0.0.1:80", msg.Header("Host"))
}

func TestParseRequestNotifyWithoutContentLength(t *testing.T) {
	raw := "NOTIFY * HTTP/1.1\r\nHost: 239.255.255.250:1900\r\nNT: upnp:rootdevice\r\n\r\n"
	msg, outcome, _ := ParseRequest([]byte(raw))
	require.Equal(t, Success, outcome)
	assert.Equal(t, MethodNotify, msg.Method)
	assert.True(t, msg.ValidSSDPNotifyHack)
}

func TestParseRequestBadVersion(t *testing.T) {
	_, outcome, code := ParseRequest([]byte("GET /foo HTP/1.1\r\n\r\n"))
	assert.Equal(t, Failure, outcome)
	assert.Equal(t, 400, code)
}

func TestParseResponseSuccess(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nST: upnp:rootdevice\r\n\r\n"
	msg, outcome, _ := ParseResponse([]byte(raw), MethodMSearch)
	require.Equal(t, Success, outcome)
	assert.True(t, msg.IsResponse)
	assert.Equal(t, 200, msg.StatusCode)
	assert.Equal(t, "OK", msg.Reason)
}

func TestClassifyURI(t *testing.T) {
	cases := []struct {
		name string
		uri  string
		want URIType
	}{
		{"relative", "/control", URIRelative},
		{"absolute", "http://host/control", URIAbsolute},
		{"asterisk", "*", URIAsterisk},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyURI(tc.uri))
		})
	}
}

func TestClassifyMethod(t *testing.T) {
	withSoap := http.Header{"Soapaction": {"\"urn:x\""}}
	withoutSoap := http.Header{}
	assert.Equal(t, MethodSoapPost, classifyMethod("POST", withSoap, false))
	assert.Equal(t, MethodPost, classifyMethod("POST", withoutSoap, false))
	assert.Equal(t, MethodMSearch, classifyMethod("M-SEARCH", withoutSoap, false))
	assert.Equal(t, MethodUnknown, classifyMethod("PATCH", withoutSoap, false))
	assert.Equal(t, MethodSimpleGet, classifyMethod("GET", withoutSoap, true))
}

func TestParseRequestSimpleGet(t *testing.T) {
	msg, outcome, _ := ParseRequest([]byte("GET /status.xml\r\n\r\n"))
	assert.Equal(t, Success, outcome)
	assert.Equal(t, MethodSimpleGet, msg.Method)
	assert.Equal(t, "/status.xml", msg.RequestURI)
	assert.Equal(t, 0, msg.Major)
	assert.Equal(t, 9, msg.Minor)
}
