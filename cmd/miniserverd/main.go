/*
 * COPYRIGHT 2019 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"upnpcore/miniserver"
)

var (
	ifaceFlag    = flag.String("iface", "eth0", "Network interface to bind listeners and SSDP sockets on")
	portV4Flag   = flag.Int("port-v4", 0, "HTTP listener port, IPv4 (0 picks an ephemeral port)")
	portV6Flag   = flag.Int("port-v6-lla", 0, "HTTP listener port, IPv6 link-local (0 picks an ephemeral port)")
	portV6UFlag  = flag.Int("port-v6-uadgua", 0, "HTTP listener port, IPv6 unique-local/global (0 picks an ephemeral port)")
	redirectFlag = flag.Bool("allow-literal-host-redirection", false, "Reply 307 instead of 400 to a non-numeric Host header")
	levelFlag    = zap.LevelFlag("log-level", zapcore.InfoLevel, "Log level [debug,info,warn,error,panic,fatal]")
	metricsAddr  = flag.String("metrics-addr", ":9120", "Address to serve /metrics on")
)

var requestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "miniserver_requests_total",
		Help: "HTTP requests dispatched, by classified kind.",
	},
	[]string{"kind"},
)

func zapSetup() *zap.SugaredLogger {
	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(*levelFlag)
	logger, err := zapConfig.Build()
	if err != nil {
		log.Panicf("can't zap: %s", err)
	}
	return logger.Sugar()
}

func prometheusInit() {
	prometheus.MustRegister(requestsTotal)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			log.Printf("metrics listener exited: %s", err)
		}
	}()
}

func main() {
	flag.Parse()
	slogger := zapSetup()
	prometheusInit()

	cfg := miniserver.NewConfig()
	cfg.AllowLiteralHostRedirection = *redirectFlag
	cfg.Handlers[miniserver.RequestWebGet] = func(req *miniserver.ParsedRequest) *miniserver.Response {
		requestsTotal.WithLabelValues("web-get").Inc()
		return &miniserver.Response{StatusCode: 404, Reason: "Not Found"}
	}
	cfg.Handlers[miniserver.RequestSOAP] = func(req *miniserver.ParsedRequest) *miniserver.Response {
		requestsTotal.WithLabelValues("soap").Inc()
		return &miniserver.Response{StatusCode: 501, Reason: "Not Implemented"}
	}
	cfg.Handlers[miniserver.RequestGENA] = func(req *miniserver.ParsedRequest) *miniserver.Response {
		requestsTotal.WithLabelValues("gena").Inc()
		return &miniserver.Response{StatusCode: 501, Reason: "Not Implemented"}
	}
	cfg.SSDPDeviceHandler = func(req *miniserver.ParsedRequest) {
		requestsTotal.WithLabelValues("ssdp-device").Inc()
		slogger.Debugw("ssdp search request", "st", req.Headers["St"], "peer", req.RemoteAddr)
	}
	cfg.SSDPCtrlptHandler = func(req *miniserver.ParsedRequest) {
		requestsTotal.WithLabelValues("ssdp-ctrlpt").Inc()
		slogger.Debugw("ssdp presence message", "method", req.Method, "peer", req.RemoteAddr)
	}

	life := miniserver.New(cfg, slogger)
	bound, err := life.Start(*ifaceFlag, *portV4Flag, *portV6Flag, *portV6UFlag)
	if err != nil {
		slogger.Fatalw("startup failed", "error", err)
	}
	slogger.Infow("miniserver running",
		"port_v4", bound.V4, "port_v6_lla", bound.V6LLA, "port_v6_uadgua", bound.V6UADGUA)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	slogger.Info("shutting down")
	life.Stop()
}
