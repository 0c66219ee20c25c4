// Command powchain wires up a single node's core: its Chain, its Miner
// Worker, and the Node event loop that reconciles them against inbound
// messages. It deliberately does not implement peer discovery, gossip, or
// an interactive transaction shell — those are the transport and CLI
// collaborators spec.md places out of this repository's scope. What it
// demonstrates is the wiring contract those collaborators would use: an
// inbound message channel, an outbound event feed, and a cancellable
// context.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/wooffie/powchain/chain"
	"github.com/wooffie/powchain/internal/config"
	"github.com/wooffie/powchain/message"
	"github.com/wooffie/powchain/node"
)

func main() {
	app := &cli.App{
		Name:  "powchain",
		Usage: "run a proof-of-work chain node core",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a TOML config file (difficulty, buffer sizes)",
			},
			&cli.StringFlag{
				Name:  "difficulty",
				Usage: "override the config's difficulty suffix",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.DefaultConfig
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if d := c.String("difficulty"); d != "" {
		cfg.Difficulty = d
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.New("node", uuid.NewString()[:8])
	logger.Info("starting powchain node", "difficulty", cfg.Difficulty)

	inbound := make(chan message.Message, cfg.InboundBuffer)
	n := node.New(chain.New(), inbound, cfg.Difficulty, cfg.WorkerBuffer)

	outbound := make(chan message.Message, cfg.InboundBuffer)
	sub := n.Outbound().Subscribe(outbound)
	defer sub.Unsubscribe()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go n.Worker().Run(ctx)
	go n.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case msg := <-outbound:
			// The gossip transport would publish msg to peers here; absent
			// that collaborator, we just log what would go out.
			logger.Info("outbound message", "message", msg)
		}
	}
}
