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
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"upnpcore/internal/httpmsg"
)

// DefaultHTTPTimeout bounds how long a Dispatcher job waits for a complete
// request to arrive on an accepted connection before giving up.
const DefaultHTTPTimeout = 30 * time.Second

// maxHeaderBytes bounds how much of a connection Dispatcher will buffer
// while waiting for a complete request line + header block, guarding
// against a peer that never sends a blank line.
const maxHeaderBytes = 64 * 1024

// Dispatcher handles one accepted HTTP connection: read, classify, route to
// the matching Config callback, and write the response. It holds only the
// shared Config and logger and carries no state across connections; every
// HandleConnection call gets its own buffer.
type Dispatcher struct {
	cfg *Config
	log *zap.SugaredLogger
}

// NewDispatcher builds a Dispatcher bound to cfg.
func NewDispatcher(cfg *Config, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{cfg: cfg, log: log}
}

// HandleConnection is the job function submitted to the worker pool once
// per accepted connection. It owns the connection: it always closes it
// before returning.
func (d *Dispatcher) HandleConnection(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(DefaultHTTPTimeout))

	_, msg, outcome, code := d.readMessage(conn)
	switch outcome {
	case httpmsg.Incomplete:
		d.writeStatus(conn, 408, "Request Timeout")
		return
	case httpmsg.Failure:
		d.writeStatus(conn, code, http.StatusText(code))
		return
	}

	reqID := uuid.New().String()
	resp := d.route(reqID, msg, conn.RemoteAddr())
	d.writeResponse(conn, resp)
}

// readMessage accumulates bytes from conn until parse_incremental reports
// Success or Failure, or the buffer cap is exceeded.
func (d *Dispatcher) readMessage(conn net.Conn) ([]byte, *httpmsg.Message, httpmsg.Outcome, int) {
	br := bufio.NewReader(conn)
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)

	for {
		if msg, outcome, code := httpmsg.ParseRequest(buf); outcome != httpmsg.Incomplete {
			return buf, msg, outcome, code
		}
		if len(buf) >= maxHeaderBytes {
			return buf, nil, httpmsg.Failure, 431
		}
		n, err := br.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			// EOF and deadline expiry both mean no complete message is
			// ever coming on this connection.
			return buf, nil, httpmsg.Incomplete, 0
		}
	}
}

// route applies the DNS-rebind defense to the Host header, then hands the
// parsed message to the callback matching its classified method. reqID
// correlates this request's log lines and is handed to the callback for
// its own bookkeeping (GENA subscription logging in particular).
func (d *Dispatcher) route(reqID string, msg *httpmsg.Message, remote net.Addr) *Response {
	if resp := d.checkHost(reqID, msg, remote); resp != nil {
		return resp
	}

	kind, ok := requestKindFor(msg.Method)
	if !ok {
		return &Response{StatusCode: 500, Reason: "Internal Server Error"}
	}
	handler := d.cfg.handlerFor(kind)
	if handler == nil {
		return &Response{StatusCode: 500, Reason: "Internal Server Error"}
	}

	req := &ParsedRequest{
		RequestID:  reqID,
		Method:     msg.Method.String(),
		RequestURI: msg.RequestURI,
		Major:      msg.Major,
		Minor:      msg.Minor,
		Headers:    map[string][]string(msg.Headers),
		Entity:     msg.Entity,
		RemoteAddr: remote,
	}
	resp := handler(req)
	if resp == nil {
		return &Response{StatusCode: 500, Reason: "Internal Server Error"}
	}
	return resp
}

// checkHost implements the DNS-rebind defense. A registered HostValidator
// decides outright, numeric or not. Absent a validator, only a numeric
// literal Host passes; a non-numeric Host is either redirected to the
// bound address's numeric form, if AllowLiteralHostRedirection is set, or
// rejected outright.
func (d *Dispatcher) checkHost(reqID string, msg *httpmsg.Message, remote net.Addr) *Response {
	host := stripHostPort(msg.Header("Host"))
	if host == "" {
		return &Response{StatusCode: 400, Reason: "Bad Request"}
	}

	if d.cfg.HostValidator != nil {
		if !d.cfg.HostValidator(host) {
			return &Response{StatusCode: 400, Reason: "Bad Request"}
		}
		return nil
	}

	if isNumericLiteral(host) {
		return nil
	}

	if d.cfg.AllowLiteralHostRedirection {
		target := d.literalTargetFor(remote)
		if target != "" {
			return &Response{
				StatusCode: 307,
				Reason:     "Temporary Redirect",
				Headers:    map[string]string{"Location": target},
			}
		}
	}

	if d.log != nil {
		d.log.Warnw("rejecting non-numeric host header", "request_id", reqID, "host", host)
	}
	return &Response{StatusCode: 400, Reason: "Bad Request"}
}

// literalTargetFor picks the bound literal address matching remote's
// family, formatted as "http://host:port" ("http://host" when the bound
// port is not known).
func (d *Dispatcher) literalTargetFor(remote net.Addr) string {
	host, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		return ""
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	if ip.To4() != nil && d.cfg.IPv4 != nil {
		return "http://" + formatNumeric(d.cfg.IPv4, d.cfg.IPv4Port, FamilyIPv4)
	}
	if ip.To4() == nil {
		if d.cfg.IPv6LLA != nil {
			return "http://" + formatNumeric(d.cfg.IPv6LLA, d.cfg.IPv6LLAPort, FamilyIPv6)
		}
		if d.cfg.IPv6UADGUA != nil {
			return "http://" + formatNumeric(d.cfg.IPv6UADGUA, d.cfg.IPv6UADGUAPort, FamilyIPv6)
		}
	}
	return ""
}

func requestKindFor(m httpmsg.Method) (RequestKind, bool) {
	switch m {
	case httpmsg.MethodSoapPost, httpmsg.MethodMPost:
		return RequestSOAP, true
	case httpmsg.MethodSubscribe, httpmsg.MethodUnsubscribe, httpmsg.MethodNotify:
		return RequestGENA, true
	case httpmsg.MethodGet, httpmsg.MethodHead, httpmsg.MethodPost, httpmsg.MethodSimpleGet:
		return RequestWebGet, true
	default:
		return 0, false
	}
}

func (d *Dispatcher) writeStatus(conn net.Conn, code int, reason string) {
	d.writeResponse(conn, &Response{StatusCode: code, Reason: reason})
}

func (d *Dispatcher) writeResponse(conn net.Conn, resp *Response) {
	if resp.Reason == "" {
		resp.Reason = http.StatusText(resp.StatusCode)
	}
	w := bufio.NewWriter(conn)
	_, _ = w.WriteString("HTTP/1.1 ")
	_, _ = w.WriteString(strconv.Itoa(resp.StatusCode))
	_ = w.WriteByte(' ')
	_, _ = w.WriteString(resp.Reason)
	_, _ = w.WriteString("\r\n")
	for k, v := range resp.Headers {
		_, _ = w.WriteString(k)
		_, _ = w.WriteString(": ")
		_, _ = w.WriteString(v)
		_, _ = w.WriteString("\r\n")
	}
	_, _ = w.WriteString("Content-Length: ")
	_, _ = w.WriteString(strconv.Itoa(len(resp.Entity)))
	_, _ = w.WriteString("\r\n\r\n")
	_, _ = w.Write(resp.Entity)
	_ = w.Flush()
}
