// Command agv is the AGV-side daemon.
//
// It connects to the MQTT broker under the AGV role, drives a reference
// in-memory adapter through the order/instantActions state machine, and
// publishes state, visualization and connection messages.
//
// Usage:
//
//	agv -manufacturer acme -serial car-001 -broker tls://broker:8883 \
//	    -cert /etc/vlink/certs/agv.crt \
//	    -key  /etc/vlink/certs/agv.key  \
//	    -ca   /etc/vlink/certs/ca.crt
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daohu527/vlink/internal/logging"
	"github.com/daohu527/vlink/pkg/agvclient"
	"github.com/daohu527/vlink/pkg/agvcontroller"
	"github.com/daohu527/vlink/pkg/mqttclient"
	"github.com/daohu527/vlink/pkg/refadapter"
	"github.com/daohu527/vlink/pkg/vda5050"
)

func main() {
	manufacturer := flag.String("manufacturer", "acme", "AGV manufacturer")
	serial := flag.String("serial", "car-001", "AGV serial number")
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	iface := flag.String("interface", "uagv", "VDA 5050 topic interface segment")
	majorVersion := flag.String("major-version", "2", "VDA 5050 topic major version segment")
	version := flag.String("version", "2.0.0", "VDA 5050 header version stamp")
	certFile := flag.String("cert", "", "path to AGV TLS certificate")
	keyFile := flag.String("key", "", "path to AGV TLS private key")
	caFile := flag.String("ca", "", "path to CA certificate")
	edgeSpeed := flag.Float64("edge-speed", 0.2, "reference adapter traversal speed, units/s")
	flag.Parse()

	if *manufacturer == "" || *serial == "" {
		logging.New("agv").Fatal().Msg("manufacturer and serial must not be empty")
	}

	log := logging.New("agv")
	id := vda5050.AgvId{Manufacturer: *manufacturer, SerialNumber: *serial}

	client, err := agvclient.New(mqttclient.Config{
		BrokerURL:    *broker,
		ClientID:     "agv-" + id.SerialNumber,
		Interface:    *iface,
		MajorVersion: *majorVersion,
		Version:      *version,
		CertFile:     *certFile,
		KeyFile:      *keyFile,
		CAFile:       *caFile,
	}, id, log)
	if err != nil {
		log.Fatal().Err(err).Msg("construct agv client")
	}

	ad := refadapter.New(refadapter.Timing{
		ActionInit:     1 * time.Second,
		ActionDuration: 5 * time.Second,
		EdgeSpeed:      *edgeSpeed,
	})

	ctrl, err := agvcontroller.New(agvcontroller.Config{
		AgvID:                     id,
		ExpectedAdapterAPIVersion: refadapter.APIVersion,
	}, ad, client, log)
	if err != nil {
		log.Fatal().Err(err).Msg("construct agv controller")
	}

	if _, err := client.SubscribeOrder(ctrl.HandleOrder); err != nil {
		log.Fatal().Err(err).Msg("subscribe order")
	}
	if _, err := client.SubscribeInstantActions(ctrl.HandleInstantActions); err != nil {
		log.Fatal().Err(err).Msg("subscribe instantActions")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start mqtt client")
	}
	defer client.Stop()

	if err := ctrl.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start agv controller")
	}
	defer ctrl.Stop()

	log.Info().Str("agv", id.SerialNumber).Msg("agv daemon started")
	<-ctx.Done()
	log.Info().Str("agv", id.SerialNumber).Msg("agv daemon stopped")
}
