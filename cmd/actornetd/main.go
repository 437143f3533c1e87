// Command actornetd is a runnable demonstration of the NetworkingFacade's
// public surface (spec.md §6): it loads a peer network from a YAML config
// file, constructs a Facade, and drives a minimal turn loop logging
// DebugAllNTurns every turn. It is not itself part of the networking core —
// actor scheduling, real packet production, and process supervision are all
// external collaborators per spec.md §1, so this binary stands in for all of
// them with the smallest demo that still exercises Connect, Enqueue,
// SendAndReceive, and FinishTurn.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nodeware/actornet"
	"github.com/nodeware/actornet/config"
	"github.com/nodeware/actornet/inbox"
	"github.com/nodeware/actornet/internal/actorid"
	"github.com/nodeware/actornet/internal/compact"
	"github.com/nodeware/actornet/log"
	"github.com/nodeware/actornet/metrics"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var turns int
	var turnInterval time.Duration

	cmd := &cobra.Command{
		Use:   "actornetd",
		Short: "Stand up one machine in a fixed actornet peer network",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, turns, turnInterval)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "actornet.yaml", "path to the facade's YAML config file")
	cmd.Flags().IntVarP(&turns, "turns", "n", 100, "number of local turns to drive before exiting")
	cmd.Flags().DurationVar(&turnInterval, "turn-interval", 50*time.Millisecond, "minimum wall-clock time between local turns")

	return cmd
}

func run(configPath string, turns int, turnInterval time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.New(cfg.SelfMachineID)
	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	facade, err := actornet.New(actornet.Config{
		SelfMachineID:          actorid.MachineID(cfg.SelfMachineID),
		PeerAddresses:          cfg.PeerAddresses,
		BatchMessageBytes:      cfg.BatchMessageBytes,
		AcceptableTurnDistance: cfg.AcceptableTurnDistance,
		TurnSleepDistanceRatio: cfg.TurnSleepDistanceRatio,
	}, logger, reg)
	if err != nil {
		return err
	}

	inboxes := make(inbox.Table, 2)
	inboxes[1] = &loggingInbox{logger: logger}

	for i := 0; i < turns; i++ {
		start := time.Now()

		facade.Enqueue(1, compact.GobPacket{
			RecipientID: actorid.RawID{MachineID: actorid.BroadcastMachineID, TypeID: 1},
			Body:        []byte(fmt.Sprintf("turn %d from machine %d", i, cfg.SelfMachineID)),
		})

		if err := facade.SendAndReceive(inboxes); err != nil {
			return err
		}

		sleepHint, lagging := facade.FinishTurn()
		logger.Info("turn complete", map[string]interface{}{
			"turns_state": facade.DebugAllNTurns(),
			"sleep_hint":  sleepHint.String(),
		})

		wait := turnInterval
		if lagging && sleepHint > wait {
			wait = sleepHint
		}
		if elapsed := time.Since(start); elapsed < wait {
			time.Sleep(wait - elapsed)
		}
	}

	return nil
}

// loggingInbox is the demo's only registered inbox: it just logs what it
// received, standing in for the real actor inbox table (spec.md §1).
type loggingInbox struct {
	logger *log.Logger
}

func (b *loggingInbox) PutRaw(payload []byte) {
	body, err := compact.DecodeGobBody(payload[actorid.HeaderOffset+actorid.Size:])
	if err != nil {
		b.logger.Error("failed to decode demo packet body", map[string]interface{}{"error": err.Error()})
		return
	}
	b.logger.Info("received packet", map[string]interface{}{"body": string(body)})
}
