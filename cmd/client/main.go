package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	authproviders "github.com/cbodonnell/hokm/pkg/auth/providers"
	"github.com/cbodonnell/hokm/pkg/client"
	"github.com/cbodonnell/hokm/pkg/game"
	"github.com/cbodonnell/hokm/pkg/log"
	"github.com/cbodonnell/hokm/pkg/messages"
	"github.com/cbodonnell/hokm/pkg/version"
)

// Debug client: joins a room, prints the reconstructed state after every
// update and sends actions typed on stdin:
//
//	hokm <suit>
//	play <card>
//	resync
func main() {
	url := flag.String("url", "ws://localhost:9090/ws", "Websocket endpoint")
	room := flag.String("room", "room-1", "Room to join")
	player := flag.String("player", "", "Player id, used to build a static token")
	token := flag.String("token", os.Getenv("HOKM_TOKEN"), "Login token, overrides -player")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}
	log.SetDefaultLogger(log.New(os.Stderr, "", log.DefaultLoggerFlag, parsedLogLevel))
	log.Info("Starting client version %s", version.Get())

	if *token == "" {
		if *player == "" {
			fmt.Fprintln(os.Stderr, "either -token or -player is required")
			os.Exit(2)
		}
		*token = authproviders.StaticToken(*player)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, err := client.Dial(dialCtx, client.DialOptions{URL: *url, Token: *token, Room: *room})
	cancel()
	if err != nil {
		log.Error("Failed to connect: %v", err)
		os.Exit(1)
	}
	defer c.Close()

	go readCommands(c)

	err = c.Run(ctx, func(update *client.Update, m interface{}) {
		if update == nil {
			printMessage(m)
			return
		}
		if update.Stale {
			log.Debug("Ignored stale update %d", update.SequenceID)
			return
		}
		b, err := json.MarshalIndent(c.Receiver().State(), "", "  ")
		if err != nil {
			log.Error("Failed to format state: %v", err)
			return
		}
		fmt.Printf("[%d] %s %s your_turn=%t\n%s\n", update.SequenceID, update.Kind, update.UpdateType, update.YourTurn, b)
	})
	if err != nil && ctx.Err() == nil {
		log.Error("Connection closed: %v", err)
		os.Exit(1)
	}
}

func printMessage(m interface{}) {
	switch m := m.(type) {
	case *messages.ServerError:
		fmt.Printf("error (%s): %s\n", m.Request, m.Reason)
	case *messages.ServerActionApplied:
		fmt.Printf("applied %s\n", m.Action)
	case *messages.ServerPong:
		fmt.Printf("pong after %dms\n", time.Now().UnixMilli()-m.ClientTimestamp)
	}
}

func readCommands(c *client.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		var err error
		switch {
		case fields[0] == "hokm" && len(fields) == 2:
			err = c.SendAction(game.ActionSelectHokm, &game.SelectHokmPayload{Suit: fields[1]})
		case fields[0] == "play" && len(fields) == 2:
			err = c.SendAction(game.ActionPlayCard, &game.PlayCardPayload{Card: fields[1]})
		case fields[0] == "resync":
			sequence, synced := c.Receiver().Sequence()
			if synced {
				err = c.Resync(&sequence)
			} else {
				err = c.Resync(nil)
			}
		case fields[0] == "ping":
			err = c.Ping()
		default:
			fmt.Println("commands: hokm <suit>, play <card>, resync, ping")
		}
		if err != nil {
			log.Error("Failed to send command: %v", err)
		}
	}
}
