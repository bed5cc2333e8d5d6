package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"challenge-chat/internal/cache"
	"challenge-chat/internal/client"
	"challenge-chat/internal/config"
	"challenge-chat/internal/feed"
	"challenge-chat/internal/models"
	"challenge-chat/internal/realtime"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a challenge chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			challengeID, _ := cmd.Flags().GetInt64("challenge")
			userID, _ := cmd.Flags().GetInt64("user")
			if challengeID <= 0 || userID <= 0 {
				return fmt.Errorf("--challenge and --user are required")
			}
			return runChat(cmd.Context(), cfg, challengeID, userID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int64("challenge", 0, "challenge id")
	cmd.Flags().Int64("user", 0, "signed-in user id")
	return cmd
}

func openCache(dir string) (*cache.Cache, error) {
	if dir == "" {
		return cache.New(cache.NewMemoryStore()), nil
	}
	store, err := cache.OpenPebble(dir, vfs.Default)
	if err != nil {
		return nil, err
	}
	return cache.New(store), nil
}

func runChat(ctx context.Context, cfg config.Config, challengeID, userID int64, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, err := openCache(cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()
	if err := store.OnLogin(userID); err != nil {
		log.Printf("cache login failed: %v", err)
	}

	api := client.New(cfg.APIURL, cfg.ClientKey, store)
	sub := realtime.NewWSSubscriber(cfg.APIURL, cfg.ClientKey)

	var current atomic.Pointer[client.Session]
	var wasLive atomic.Bool
	render := func() {
		s := current.Load()
		if s == nil {
			return
		}
		renderFeed(out, s.Feed())
		live := s.Live()
		if wasLive.Swap(live) && !live {
			fmt.Fprintln(out, "realtime connection lost, use /refresh to update")
		}
	}

	session, err := client.OpenSession(ctx, api, sub, userID, challengeID, loc, feed.WithOnChange(render))
	if err != nil {
		return err
	}
	defer session.Close()
	current.Store(session)
	wasLive.Store(session.Live())

	if !session.Live() {
		fmt.Fprintln(out, "realtime unavailable, use /refresh to update")
	}
	render()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
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
			if err := handleChatLine(ctx, session, out, strings.TrimSpace(line)); err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
		}
	}
}

const chatHelp = `plain text sends a comment on the challenge
/checkin <text>          record today's check-in
/retry <clientId>        resend a failed entry
/discard <clientId>      drop a failed or pending entry
/comments <kind> <id>    show comments under a post, check_in, challenge, thread or reply
/like <kind> <id>        like a post, check_in or comment
/unlike <kind> <id>      remove a like
/likes <kind>            list what you liked
/refresh                 drop cached data and reload`

func handleChatLine(ctx context.Context, session *client.Session, out io.Writer, line string) error {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	api := session.API()
	switch cmd {
	case "":
		return nil
	case "/help":
		fmt.Fprintln(out, chatHelp)
		return nil
	case "/refresh":
		return session.Refresh(ctx)
	case "/checkin":
		if arg == "" {
			return errors.New("usage: /checkin <text>")
		}
		_, err := session.CheckIn(ctx, arg)
		return err
	case "/retry":
		_, err := session.Retry(ctx, arg)
		return err
	case "/discard":
		if !session.Discard(arg) {
			return fmt.Errorf("no pending send %q", arg)
		}
		return nil
	case "/comments":
		kind, id, err := kindAndID(arg)
		if err != nil {
			return err
		}
		parent := models.ParentKind(kind)
		if !parent.Valid() {
			return fmt.Errorf("unknown parent kind %q", kind)
		}
		comments, err := api.Comments(ctx, parent, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d comments on %s %d\n", len(comments), kind, id)
		for _, cm := range comments {
			fmt.Fprintf(out, "  #%d user#%d: %s (%s)\n", cm.ID, cm.UserID, cm.Body, humanize.Time(cm.CreatedAt))
		}
		return nil
	case "/like", "/unlike":
		kind, id, err := kindAndID(arg)
		if err != nil {
			return err
		}
		if cmd == "/like" {
			return api.Like(ctx, models.ItemKind(kind), id)
		}
		return api.Unlike(ctx, models.ItemKind(kind), id)
	case "/likes":
		ids, err := api.Likes(ctx, models.ItemKind(arg))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "liked %s: %v\n", arg, ids)
		return nil
	}
	if strings.HasPrefix(cmd, "/") {
		return fmt.Errorf("unknown command %s, try /help", cmd)
	}
	// failed sends stay in the feed for /retry or /discard
	_, err := session.Send(ctx, line)
	return err
}

func kindAndID(arg string) (string, int64, error) {
	kind, raw, ok := strings.Cut(arg, " ")
	if !ok {
		return "", 0, errors.New("usage: <kind> <id>")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("invalid id %q", raw)
	}
	return kind, id, nil
}

func renderFeed(out io.Writer, f *feed.Feed) {
	snapshot := f.Snapshot()
	fmt.Fprintln(out, "----")
	for _, day := range f.Days() {
		fmt.Fprintf(out, "== %s\n", day)
		for _, e := range snapshot[day] {
			line := fmt.Sprintf("  user#%d: %s", e.UserID, e.Body)
			switch e.State {
			case feed.StateConfirmed:
				line += " (" + humanize.Time(e.CreatedAt) + ")"
			case feed.StatePending:
				line += " (sending)"
			case feed.StateFailed:
				line += fmt.Sprintf(" (failed: %s, /retry %s)", e.Error, e.ClientID)
			}
			fmt.Fprintln(out, line)
		}
	}
}
