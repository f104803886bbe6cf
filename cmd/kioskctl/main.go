// kioskctl is an operator CLI for the kiosk agent's command channel.
//
// Usage:
//
//	kioskctl -url ws://localhost:8081/ws status
//	kioskctl launch <gameId> [durationSeconds]
//	kioskctl end | pause | resume
//	kioskctl rate <gameId> <rating>
//	kioskctl scan [timeoutSeconds]
//	kioskctl card validate|register|deactivate|history <tagId> [args]
//	kioskctl permit <tagId> <gameId> allow|deny
//	kioskctl diag | heartbeat | watch
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/vrarcade/kiosk/internal/client"
	"github.com/vrarcade/kiosk/internal/config"
	"github.com/vrarcade/kiosk/internal/protocol"
	"github.com/vrarcade/kiosk/pkg/logger"
)

func main() {
	url := flag.String("url", "ws://localhost:8081/ws", "Agent websocket endpoint")
	timeout := flag.Int("timeout", 10, "Command timeout in seconds")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := "error"
	if *verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	c := client.New(config.ClientConfig{
		URL:                *url,
		CommandTimeoutSecs: *timeout,
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := c.Connect(ctx); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "Failed to connect to %s: %v\n", *url, err)
		os.Exit(1)
	}
	cancel()
	defer c.Close()

	if err := run(c, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *client.Client, args []string) error {
	ctx := context.Background()
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "status":
		status, err := c.GetStatus(ctx)
		if err != nil {
			return err
		}
		return printJSON(status)

	case "launch":
		if len(rest) < 1 {
			return fmt.Errorf("launch requires a gameId")
		}
		duration := 0
		if len(rest) > 1 {
			var err error
			if duration, err = strconv.Atoi(rest[1]); err != nil {
				return fmt.Errorf("invalid duration: %s", rest[1])
			}
		}
		result, err := c.LaunchGame(ctx, rest[0], duration)
		if err != nil {
			return err
		}
		return printJSON(result)

	case "end":
		result, err := c.EndSession(ctx)
		if err != nil {
			return err
		}
		return printJSON(result)

	case "pause":
		result, err := c.PauseSession(ctx)
		if err != nil {
			return err
		}
		return printJSON(result)

	case "resume":
		result, err := c.ResumeSession(ctx)
		if err != nil {
			return err
		}
		return printJSON(result)

	case "rate":
		if len(rest) < 2 {
			return fmt.Errorf("rate requires a gameId and a rating")
		}
		rating, err := strconv.Atoi(rest[1])
		if err != nil {
			return fmt.Errorf("invalid rating: %s", rest[1])
		}
		result, err := c.SubmitRating(ctx, rest[0], rating, "")
		if err != nil {
			return err
		}
		return printJSON(result)

	case "scan":
		timeout := 0
		if len(rest) > 0 {
			var err error
			if timeout, err = strconv.Atoi(rest[0]); err != nil {
				return fmt.Errorf("invalid timeout: %s", rest[0])
			}
		}
		// Scans block until a card is presented, so give the local
		// wait more slack than the agent-side timeout.
		scanCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		result, err := c.ScanRFID(scanCtx, timeout)
		if err != nil {
			return err
		}
		return printJSON(result)

	case "card":
		return runCard(ctx, c, rest)

	case "permit":
		if len(rest) < 3 {
			return fmt.Errorf("permit requires tagId, gameId, and allow|deny")
		}
		if err := c.SetRFIDGamePermission(ctx, rest[0], rest[1], rest[2]); err != nil {
			return err
		}
		fmt.Printf("permission for %s on %s set to %s\n", rest[0], rest[1], rest[2])
		return nil

	case "diag":
		result, err := c.GetDiagnostics(ctx)
		if err != nil {
			return err
		}
		return printJSON(result)

	case "heartbeat":
		result, err := c.SendHeartbeat(ctx)
		if err != nil {
			return err
		}
		return printJSON(result)

	case "watch":
		return watch(c)

	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func runCard(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("card requires a subcommand and a tagId")
	}
	sub, tagID := args[0], args[1]

	switch sub {
	case "validate":
		gameID := ""
		if len(args) > 2 {
			gameID = args[2]
		}
		result, err := c.ValidateRFID(ctx, tagID, gameID)
		if err != nil {
			return err
		}
		return printJSON(result)

	case "register":
		name := ""
		if len(args) > 2 {
			name = args[2]
		}
		result, err := c.RegisterRFID(ctx, tagID, name)
		if err != nil {
			return err
		}
		return printJSON(result)

	case "deactivate":
		if err := c.DeactivateRFID(ctx, tagID); err != nil {
			return err
		}
		fmt.Printf("card %s deactivated\n", tagID)
		return nil

	case "history":
		limit := 0
		if len(args) > 2 {
			var err error
			if limit, err = strconv.Atoi(args[2]); err != nil {
				return fmt.Errorf("invalid limit: %s", args[2])
			}
		}
		result, err := c.GetRFIDHistory(ctx, tagID, limit)
		if err != nil {
			return err
		}
		return printJSON(result)

	default:
		return fmt.Errorf("unknown card subcommand: %s", sub)
	}
}

// watch prints broadcast frames until interrupted.
func watch(c *client.Client) error {
	unsubscribe := c.OnStatus(func(resp *protocol.Response) {
		var status protocol.StatusSnapshot
		if err := json.Unmarshal(resp.Data, &status); err == nil {
			fmt.Printf("[%s] running=%v paused=%v remaining=%ds cpu=%.0f%% mem=%.0f%%\n",
				time.UnixMilli(resp.Timestamp).Format("15:04:05"),
				status.GameRunning, status.IsPaused, status.TimeRemaining,
				status.CPUUsage, status.MemoryUsage)
		} else {
			raw, _ := json.Marshal(resp)
			fmt.Println(string(raw))
		}
	})
	defer unsubscribe()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
