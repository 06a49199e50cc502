// Package main provides a CI-friendly smoke test for the loom realtime
// endpoint.
//
// It validates:
//   - handshake against /ws?userId=N
//   - a presence snapshot arrives and includes the dialing user
//   - the snapshot is replaced (not merged) when a second client connects
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	"loom/internal/realtime"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	name   string
	userID int64
	conn   *websocket.Conn

	inbox chan realtime.Envelope
	errCh chan error
}

func main() {
	var (
		baseURL = flag.String("url", "ws://127.0.0.1:3500/ws", "WebSocket URL (userId is appended)")
		userA   = flag.Int64("user-a", 101, "first user id")
		userB   = flag.Int64("user-b", 102, "second user id")
		timeout = flag.Duration("timeout", 7*time.Second, "per-step timeout")
		verbose = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()

	a := mustConnect(root, "A", *baseURL, *userA, *timeout)
	defer closeWS(a.conn)

	first := a.mustReadEvent(root, realtime.EventOnlineUsers, *timeout)
	firstIDs := mustPresence(first)
	if !contains(firstIDs, *userA) {
		fatalf("first snapshot missing user %d: %v", *userA, firstIDs)
	}
	if *verbose {
		fmt.Printf("A connected, online=%v\n", firstIDs)
	}

	b := mustConnect(root, "B", *baseURL, *userB, *timeout)
	defer closeWS(b.conn)

	// Both clients must receive the replacement snapshot with both users.
	for _, c := range []*smokeClient{a, b} {
		env := c.mustReadEvent(root, realtime.EventOnlineUsers, *timeout)
		ids := mustPresence(env)
		if !contains(ids, *userA) || !contains(ids, *userB) {
			fatalf("snapshot on %s missing a user: %v", c.name, ids)
		}
	}

	fmt.Printf("OK: presence snapshots for users %d and %d\n", *userA, *userB)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, baseURL string, userID int64, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u, err := url.Parse(baseURL)
	if err != nil {
		fatalf("parse url: %v", err)
	}
	q := u.Query()
	q.Set("userId", fmt.Sprintf("%d", userID))
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.Dial(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:   name,
		userID: userID,
		conn:   conn,
		inbox:  make(chan realtime.Envelope, 64),
		errCh:  make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}
			if mt != websocket.MessageText {
				continue
			}

			var env realtime.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func (c *smokeClient) mustReadEvent(parent context.Context, event string, stepTimeout time.Duration) realtime.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", event, c.name, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", event, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", event, c.name)
			}
			if env.Event == event {
				return env
			}
		}
	}
}

func mustPresence(env realtime.Envelope) []int64 {
	var ids realtime.OnlineUsersPayload
	if err := json.Unmarshal(env.Payload, &ids); err != nil {
		fatalf("unmarshal presence payload: %v", err)
	}
	return ids
}

func contains(ids []int64, want int64) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
