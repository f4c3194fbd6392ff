package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/gallerybot/internal/chatclient"
	"github.com/xiaot623/gogo/gallerybot/internal/config"
	"github.com/xiaot623/gogo/gallerybot/internal/identity"
	"github.com/xiaot623/gogo/gallerybot/internal/repository"
	"github.com/xiaot623/gogo/gallerybot/internal/service"
)

func newPurgeCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete chat sessions inactive for longer than --older-than",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if olderThan <= 0 {
				olderThan = cfg.Session.TTL
			}

			ctx := cmd.Context()
			db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("failed to initialize store: %w", err)
			}
			defer db.Close()

			svc := service.New(db, nil, cfg, zap.NewNop())
			n, err := svc.PurgeInactive(ctx, olderThan)
			if err != nil {
				return fmt.Errorf("failed to purge sessions: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d sessions\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "inactivity cutoff (defaults to session.ttl)")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		email string
		role  string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with auth.jwt_secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if strings.TrimSpace(email) == "" {
				return fmt.Errorf("--email is required")
			}
			token, err := identity.NewAuthenticator(cfg.Auth.JWTSecret).Issue(email, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&role, "role", "", "account role, e.g. admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newChatCmd() *cobra.Command {
	var (
		addr  string
		token string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running server over WebSocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), addr, token)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "ws://localhost:8080/api/chatbot/ws", "WebSocket server address")
	cmd.Flags().StringVar(&token, "token", "", "bearer token")
	return cmd
}

func runChat(ctx context.Context, addr, token string) error {
	fmt.Printf("Connecting to %s...\n", addr)

	client, err := chatclient.Dial(addr, token)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Close()

	fmt.Println("Connected. Type a message and press Enter to send.")
	fmt.Println("Commands: /quit to exit")

	go func() {
		if err := client.ReadFrames(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "read error: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			input := strings.TrimSpace(line)
			if input == "" {
				continue
			}
			if input == "/quit" {
				fmt.Println("Bye!")
				return nil
			}
			if err := client.Send(input); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}
