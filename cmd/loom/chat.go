package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"loom/internal/identity"
	"loom/internal/realtime"
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List users, marking who is online",
	RunE:  runContacts,
}

var chatCmd = &cobra.Command{
	Use:   "chat <username>",
	Short: "Open an interactive conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

func runContacts(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.session.CheckAuth(cmd.Context()); err != nil {
		return err
	}
	contacts, err := rt.chat.LoadContacts(cmd.Context())
	if err != nil {
		return err
	}

	// The presence snapshot arrives right after the channel opens.
	select {
	case <-rt.session.PresenceSeen():
	case <-time.After(2 * time.Second):
	case <-cmd.Context().Done():
	}

	for _, c := range contacts {
		mark := " "
		if rt.session.IsOnline(c.ID) {
			mark = "*"
		}
		fmt.Printf("%s @%s\t%s\n", mark, c.Username, c.Name)
	}
	return nil
}

// printingConversations decorates the conversation store so inbound messages
// render as they arrive.
type printingConversations struct {
	*convRef
	self int64
}

func (p *printingConversations) Append(m realtime.Message) {
	printMessage(p.self, m)
	p.convRef.Append(m)
}

func printMessage(self int64, m realtime.Message) {
	who := "@" + m.Sender.Username
	if m.SenderID == self {
		who = "me"
	}
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Text)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.session.CheckAuth(ctx); err != nil {
		return err
	}
	self, ok := rt.session.Identity()
	if !ok {
		return fmt.Errorf("not signed in")
	}

	peer, err := findContact(ctx, rt, args[0])
	if err != nil {
		return err
	}

	rt.chat.Select(peer)
	defer rt.chat.Deselect()

	// Replay anything the local cache held for this peer.
	for _, m := range rt.chat.Messages() {
		printMessage(self.ID, m)
	}

	rt.conv.inner = &printingConversations{convRef: &convRef{inner: rt.chat}, self: self.ID}
	rt.session.SubscribeToMessages()

	fmt.Fprintf(os.Stderr, "chatting with @%s (ctrl-d to leave)\n", peer.Username)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if _, err := rt.chat.Send(ctx, text); err != nil {
				fmt.Fprintf(os.Stderr, "error: %s\n", err)
			}
		}
	}
}

func findContact(ctx context.Context, rt *runtime, username string) (identity.Identity, error) {
	contacts, err := rt.chat.LoadContacts(ctx)
	if err != nil {
		return identity.Identity{}, err
	}
	want := identity.NormalizeUsername(username)
	for _, c := range contacts {
		if identity.NormalizeUsername(c.Username) == want {
			return c, nil
		}
	}
	return identity.Identity{}, fmt.Errorf("no such user: %s", username)
}
