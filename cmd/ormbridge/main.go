// Command ormbridge runs the HL7-to-DICOM worklist bridge: it loads
// config.yaml from --path, starts the order cache, HL7 MLLP listener,
// worklist SCP, and sweeper, and shuts them down cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthbridge/ormworklist/internal/config"
	"github.com/healthbridge/ormworklist/internal/lifecycle"
	"github.com/sirupsen/logrus"
)

// stopTimeout bounds how long main waits for the bridge to shut down
// before giving up and exiting with an error, one interval longer than
// the bridge's own internal 5s grace period.
const stopTimeout = 10 * time.Second

func main() {
	path := flag.String("path", ".", "Base directory containing config.yaml and the order cache")
	flag.Parse()

	log := logrus.NewEntry(logrus.StandardLogger())
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*path)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	bridge, err := lifecycle.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to construct bridge")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bridge.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start bridge")
	}

	log.WithFields(logrus.Fields{
		"hl7_port":     cfg.HL7.ListenPort,
		"dicom_port":   cfg.Dicom.ListenPort,
		"dicom_aetitle": cfg.Dicom.AETitle,
	}).Info("ormbridge running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutdown signal received")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()

	if err := bridge.Stop(stopCtx); err != nil {
		log.WithError(err).Error("error during shutdown")
		os.Exit(1)
	}

	log.Info("ormbridge stopped")
}
