/*
 * COPYRIGHT 2019 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

// Package httpmsg implements an incremental HTTP/SSDP message parser:
// parse(buffer) -> {Success, Incomplete, Failure(code)}. It is built on
// net/http and net/textproto rather than a hand-rolled scanner; the
// three-way outcome exists because the same grammar serves both streamed
// TCP reads (Incomplete means "read more") and single UDP datagrams
// (Incomplete means "drop it").
package httpmsg

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// Method is the request method, extended with the UPnP-specific verbs and
// the SOAP-vs-GENA-vs-web split dispatch routes on.
type Method int

// Methods the core must be able to route on.
const (
	MethodUnknown Method = iota
	MethodGet
	MethodHead
	MethodPost
	MethodMPost
	MethodSubscribe
	MethodUnsubscribe
	MethodNotify
	MethodMSearch
	MethodSimpleGet
	MethodSoapPost
)

var methodNames = map[string]Method{
	"GET":         MethodGet,
	"HEAD":        MethodHead,
	"POST":        MethodPost,
	"M-POST":      MethodMPost,
	"SUBSCRIBE":   MethodSubscribe,
	"UNSUBSCRIBE": MethodUnsubscribe,
	"NOTIFY":      MethodNotify,
	"M-SEARCH":    MethodMSearch,
}

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodHead:
		return "HEAD"
	case MethodPost:
		return "POST"
	case MethodMPost:
		return "M-POST"
	case MethodSubscribe:
		return "SUBSCRIBE"
	case MethodUnsubscribe:
		return "UNSUBSCRIBE"
	case MethodNotify:
		return "NOTIFY"
	case MethodMSearch:
		return "M-SEARCH"
	case MethodSimpleGet:
		return "SIMPLEGET"
	case MethodSoapPost:
		return "SOAPPOST"
	default:
		return "UNKNOWN"
	}
}

// URIType classifies the request target: absolute, relative with a path
// and optional query, or the asterisk form used by OPTIONS-style requests.
type URIType int

// URI classifications.
const (
	URIRelative URIType = iota
	URIAbsolute
	URIAsterisk
)

// Outcome is the parse_incremental result: more bytes needed, a complete
// message, or a hard parse failure carrying the status code a Dispatcher
// should reply with.
type Outcome int

// Parse outcomes.
const (
	Incomplete Outcome = iota
	Success
	Failure
)

// Message is the parsed HTTP/SSDP message the core's handlers consume.
type Message struct {
	IsResponse bool
	Method     Method
	RawMethod  string // for Unknown methods, the literal token
	RequestURI string
	URIType    URIType
	Major      int
	Minor      int
	StatusCode int
	Reason     string
	Headers    http.Header // canonicalized by net/textproto, as net/http does
	Entity     []byte

	// ValidSSDPNotifyHack is set when a NOTIFY message was accepted despite
	// missing Content-Length (NOTIFY is tolerated without one).
	ValidSSDPNotifyHack bool
}

// Header returns the first value of the named header, canonicalized the way
// net/http.Header.Get does.
func (m *Message) Header(name string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers.Get(name)
}

// ParseRequest parses buf as an HTTP/SSDP request line + headers + entity
// (the request grammar), suitable both for real TCP
// connections (where an Outcome of Incomplete means "read more") and
// for a single already-fully-read UDP datagram (where Incomplete should be
// treated by the caller as a Failure, since no more bytes are ever coming).
func ParseRequest(buf []byte) (*Message, Outcome, int) {
	headEnd := findHeaderEnd(buf)
	if headEnd < 0 {
		return nil, Incomplete, 0
	}

	br := bufio.NewReader(bytes.NewReader(buf[:headEnd]))
	line, err := readLine(br)
	if err != nil {
		return nil, Failure, 400
	}
	method, uri, major, minor, simple, ok := parseRequestLine(line)
	if !ok {
		return nil, Failure, 400
	}

	tp := textproto.NewReader(br)
	hdr, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, Failure, 400
	}
	headers := http.Header(hdr)

	msg := &Message{
		Method:     classifyMethod(method, headers, simple),
		RawMethod:  method,
		RequestURI: uri,
		URIType:    classifyURI(uri),
		Major:      major,
		Minor:      minor,
		Headers:    headers,
	}

	entity := buf[headEnd:]
	clStr := headers.Get("Content-Length")
	switch {
	case clStr != "":
		cl, cerr := strconv.Atoi(strings.TrimSpace(clStr))
		if cerr != nil || cl < 0 {
			return nil, Failure, 400
		}
		if len(entity) < cl {
			return nil, Incomplete, 0
		}
		msg.Entity = entity[:cl]
	case msg.Method == MethodNotify:
		// NOTIFY messages missing Content-Length are tolerated: whatever
		// follows the header block is the entity, and there is no more to
		// wait for. This applies to every NOTIFY parsed here, including
		// GENA NOTIFY requests read by Dispatcher over TCP, not only SSDP
		// datagrams.
		msg.Entity = entity
		msg.ValidSSDPNotifyHack = true
	case len(entity) == 0:
		msg.Entity = nil
	default:
		msg.Entity = entity
	}

	return msg, Success, 0
}

// ParseResponse parses buf as a status-line response (the "response
// grammar"), used only for SSDP M-SEARCH replies arriving on a request
// socket. hintMethod records why we're parsing a response at all (always
// M-SEARCH).
func ParseResponse(buf []byte, hintMethod Method) (*Message, Outcome, int) {
	headEnd := findHeaderEnd(buf)
	if headEnd < 0 {
		return nil, Incomplete, 0
	}

	br := bufio.NewReader(bytes.NewReader(buf[:headEnd]))
	line, err := readLine(br)
	if err != nil {
		return nil, Failure, 400
	}
	major, minor, status, reason, ok := parseStatusLine(line)
	if !ok {
		return nil, Failure, 400
	}

	tp := textproto.NewReader(br)
	hdr, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, Failure, 400
	}
	headers := http.Header(hdr)

	msg := &Message{
		IsResponse: true,
		Method:     hintMethod,
		Major:      major,
		Minor:      minor,
		StatusCode: status,
		Reason:     reason,
		Headers:    headers,
		Entity:     buf[headEnd:],
	}
	return msg, Success, 0
}

// classifyMethod maps the wire token to our Method enum, splitting POST into
// MethodSoapPost vs MethodPost by presence of SOAPACTION. simple marks a
// version-less HTTP/0.9-style request line, always classified as
// MethodSimpleGet regardless of the literal token (parseRequestLine only
// sets it for a bare "GET /path" line).
func classifyMethod(token string, headers http.Header, simple bool) Method {
	if simple {
		return MethodSimpleGet
	}
	m, ok := methodNames[strings.ToUpper(token)]
	if !ok {
		return MethodUnknown
	}
	if m == MethodPost && headers.Get("Soapaction") != "" {
		return MethodSoapPost
	}
	return m
}

func classifyURI(uri string) URIType {
	switch {
	case uri == "*":
		return URIAsterisk
	case strings.Contains(uri, "://"):
		return URIAbsolute
	default:
		return URIRelative
	}
}

// findHeaderEnd returns the index just past the blank line terminating the
// header block (the start of the entity), or -1 if not yet present.
func findHeaderEnd(buf []byte) int {
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		return i + 4
	}
	// Tolerate bare-LF line endings, common in SSDP traffic from
	// less-careful implementations.
	if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
		return i + 2
	}
	return -1
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// parseRequestLine splits a request line into method/uri/version. A line
// with only two tokens (no "HTTP/x.y") is the legacy HTTP/0.9 "simple
// request" form: method must be GET, and simple is reported true so the
// caller classifies it as MethodSimpleGet rather than failing the parse
// outright.
func parseRequestLine(line string) (method, uri string, major, minor int, simple, ok bool) {
	parts := strings.SplitN(line, " ", 3)
	switch len(parts) {
	case 3:
		major, minor, ok = parseHTTPVersion(parts[2])
		if !ok {
			return "", "", 0, 0, false, false
		}
		return parts[0], parts[1], major, minor, false, true
	case 2:
		if !strings.EqualFold(parts[0], "GET") {
			return "", "", 0, 0, false, false
		}
		return parts[0], parts[1], 0, 9, true, true
	default:
		return "", "", 0, 0, false, false
	}
}

func parseStatusLine(line string) (major, minor, status int, reason string, ok bool) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, 0, 0, "", false
	}
	major, minor, ok = parseHTTPVersion(parts[0])
	if !ok {
		return 0, 0, 0, "", false
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, "", false
	}
	if len(parts) == 3 {
		reason = parts[2]
	}
	return major, minor, status, reason, true
}

func parseHTTPVersion(v string) (major, minor int, ok bool) {
	if !strings.HasPrefix(v, "HTTP/") {
		return 0, 0, false
	}
	v = strings.TrimPrefix(v, "HTTP/")
	dot := strings.IndexByte(v, '.')
	if dot < 0 {
		return 0, 0, false
	}
	maj, err1 := strconv.Atoi(v[:dot])
	min, err2 := strconv.Atoi(v[dot+1:])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return maj, min, true
}
