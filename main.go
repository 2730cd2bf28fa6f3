package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/practable/calibration/pkg/calibration"
)

func main() {
	cfg := loadConfig()

	// Common flags
	wsURL := flag.String("url", cfg.URL, "Websocket URL of the calibration topic on the session relay")
	calkit := flag.String("calkit", cfg.Calkit, "YAML file overriding the ideal standards (optional)")
	logLevel := flag.String("log", cfg.LogLevel, "Log level (trace, debug, info, warn, error)")
	metricsAddr := flag.String("metrics", cfg.Metrics, "Address to serve Prometheus metrics on (empty disables)")

	// Simulation flags
	isSim := flag.Bool("sim", false, "Run an in-process session relay and connect to it")
	greet := flag.Bool("greet", false, "Send three greetings on connect then close (demonstration only)")

	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "  Relay Mode: calibration [options]")
		fmt.Fprintln(os.Stderr, "  Sim Mode:   calibration -sim [options]")
		fmt.Fprintln(os.Stderr, "\nTo test against the sim:")
		fmt.Fprintln(os.Stderr, "  $ calibration -sim")
		fmt.Fprintln(os.Stderr, "  $ websocat ws://localhost:8888/ws/calibration readfile:./test/json/oneport/oneport.json -B 999999")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}

	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Bad log level %q: %v", *logLevel, err)
	}
	log.SetLevel(level)

	kit := calibration.DefaultKit()
	if *calkit != "" {
		kit, err = calibration.LoadKit(*calkit)
		if err != nil {
			log.Fatalf("Loading cal kit: %v", err)
		}
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	// If simulation mode is on, stand in for the session relay locally
	if *isSim {
		u, err := url.Parse(*wsURL)
		if err != nil {
			log.Fatalf("Bad websocket URL %q: %v", *wsURL, err)
		}
		go runSessionRelay(u.Host, u.Path)
		// Give the stand-in a moment to start listening
		time.Sleep(200 * time.Millisecond)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*wsURL, nil)
	if err != nil {
		log.Fatalf("Dialing %s: %v", *wsURL, err)
	}
	log.WithFields(log.Fields{"url": *wsURL}).Info("connected")

	relay := NewRelay(conn, kit)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		relay.Close()
	}()

	if *greet {
		go relay.Greet()
	}

	if err := relay.Run(); err != nil {
		log.WithFields(log.Fields{"error": err.Error()}).Info("connection closed")
	}
}
