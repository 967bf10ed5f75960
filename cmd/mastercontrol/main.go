// Command mastercontrol is the fleet master-control daemon.
//
// It connects to the MQTT broker under the master-control role, tracks
// every AGV's connection and state, logs order rejections/completions,
// and periodically reports AGVs that have gone stale.
//
// Usage:
//
//	mastercontrol -broker tls://broker:8883 \
//	              -cert /etc/vlink/certs/mastercontrol.crt \
//	              -key  /etc/vlink/certs/mastercontrol.key  \
//	              -ca   /etc/vlink/certs/ca.crt
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daohu527/vlink/internal/logging"
	"github.com/daohu527/vlink/pkg/masterclient"
	"github.com/daohu527/vlink/pkg/mastercontroller"
	"github.com/daohu527/vlink/pkg/mqttclient"
	"github.com/daohu527/vlink/pkg/vda5050"
)

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	clientID := flag.String("client-id", "mastercontrol-01", "MQTT client ID")
	iface := flag.String("interface", "uagv", "VDA 5050 topic interface segment")
	majorVersion := flag.String("major-version", "2", "VDA 5050 topic major version segment")
	version := flag.String("version", "2.0.0", "VDA 5050 header version stamp")
	certFile := flag.String("cert", "", "path to TLS certificate")
	keyFile := flag.String("key", "", "path to TLS private key")
	caFile := flag.String("ca", "", "path to CA certificate")
	staleAfter := flag.Duration("stale-after", 2*time.Minute, "how long without a State update before an AGV is reported stale")
	flag.Parse()

	log := logging.New("mastercontrol")

	client, err := masterclient.New(mqttclient.Config{
		BrokerURL:    *broker,
		ClientID:     *clientID,
		Interface:    *iface,
		MajorVersion: *majorVersion,
		Version:      *version,
		CertFile:     *certFile,
		KeyFile:      *keyFile,
		CAFile:       *caFile,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("construct masterclient")
	}

	ctrl := mastercontroller.New(client, log)

	ctrl.OnOrderRejected(func(id vda5050.AgvId, orderID string, e vda5050.Error) {
		log.Warn().Str("agv", id.SerialNumber).Str("order", orderID).
			Str("errorType", string(e.ErrorType)).Str("description", e.ErrorDescription).
			Msg("order rejected")
	})
	ctrl.OnOrderComplete(func(id vda5050.AgvId, orderID string) {
		log.Info().Str("agv", id.SerialNumber).Str("order", orderID).Msg("order complete")
	})

	client.TrackAgvs(func(id vda5050.AgvId, conn vda5050.Connection) {
		log.Info().Str("agv", id.SerialNumber).Str("state", string(conn.ConnectionState)).Msg("connection state changed")
	})

	if _, err := client.SubscribeStates(ctrl.HandleState); err != nil {
		log.Fatal().Err(err).Msg("subscribe state")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start mqtt client")
	}
	defer client.Stop()

	log.Info().Str("client", *clientID).Msg("mastercontrol daemon started")

	go func() {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				stale := ctrl.StaleAgvs(*staleAfter)
				if len(stale) > 0 {
					log.Warn().Int("count", len(stale)).Msg("stale agvs detected")
				}
			}
		}
	}()

	<-ctx.Done()
	log.Info().Str("client", *clientID).Msg("mastercontrol daemon stopped")
}
