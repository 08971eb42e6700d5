// Command endgamectl is a thin admin tool for the engine's Graph Store. It
// supports no daemon mode of its own — each subcommand opens a store,
// performs one operation, and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/zenzeng/endgameos/internal/config"
	graphstorepg "github.com/zenzeng/endgameos/internal/graphstore/postgres"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return 2
	}

	fs := flag.NewFlagSet("endgamectl", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	userID := fs.String("user", "", "user id to operate on (required for clear-all, commit-staging, self-heal)")
	nodeIDs := fs.String("nodes", "", "comma-separated node ids to commit (commit-staging only; empty means all staged)")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "endgamectl: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := graphstorepg.NewStore(ctx, cfg.Postgres.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "endgamectl: open graph store: %v\n", err)
		return 1
	}
	defer store.Close()

	switch cmd := args[0]; cmd {
	case "clear-all":
		if *userID == "" {
			fmt.Fprintln(os.Stderr, "endgamectl: clear-all requires -user")
			return 2
		}
		if err := store.ClearAll(ctx, *userID); err != nil {
			fmt.Fprintf(os.Stderr, "endgamectl: clear-all: %v\n", err)
			return 1
		}
		slog.Info("cleared all graph and experience data", "user_id", *userID)

	case "commit-staging":
		if *userID == "" {
			fmt.Fprintln(os.Stderr, "endgamectl: commit-staging requires -user")
			return 2
		}
		var ids []string
		if *nodeIDs != "" {
			ids = strings.Split(*nodeIDs, ",")
		}
		if err := store.CommitStaging(ctx, *userID, ids); err != nil {
			fmt.Fprintf(os.Stderr, "endgamectl: commit-staging: %v\n", err)
			return 1
		}
		slog.Info("committed staged rows", "user_id", *userID, "nodes", len(ids))

	case "self-heal":
		if *userID == "" {
			fmt.Fprintln(os.Stderr, "endgamectl: self-heal requires -user")
			return 2
		}
		if err := store.SelfHeal(ctx, *userID); err != nil {
			fmt.Fprintf(os.Stderr, "endgamectl: self-heal: %v\n", err)
			return 1
		}
		slog.Info("self-heal complete", "user_id", *userID)

	default:
		printUsage()
		return 2
	}

	return 0
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: endgamectl <clear-all|commit-staging|self-heal> -user <id> [-config path] [-nodes id1,id2,...]")
}
