// bridgeq queries every live instance on this machine and prints the merged
// record lines. It reads the same registry and token files the instances
// share, so it needs no flags beyond the query itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/hostbridge/bridgectl/internal/config"
	"github.com/hostbridge/bridgectl/internal/logging"
	"github.com/hostbridge/bridgectl/internal/protocol"
	"github.com/hostbridge/bridgectl/internal/registry"
	"github.com/hostbridge/bridgectl/internal/remote"
	"github.com/hostbridge/bridgectl/internal/token"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config (defaults apply when empty)")
	domain := flag.String("domain", "familytypes", "query domain: familytypes, categories, worksets")
	op := flag.String("op", "counts", "query operation: counts or elements")
	flag.Parse()

	logging.ConfigureRuntime("bridgeq")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	tok, err := token.Load(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("token load failed")
	}

	reg := registry.NewStore(cfg.DataDir, cfg.StalenessThreshold())
	client := remote.New(reg, remote.Options{
		Token:       tok,
		Parallelism: cfg.PeerParallelism,
		Timeout:     cfg.PeerQueryTimeout(),
	})

	type tagged struct {
		instance string
		title    string
		record   protocol.Record
	}
	var merged []tagged
	fold := func(entry registry.Entry, records []protocol.Record) {
		for _, rec := range records {
			merged = append(merged, tagged{
				instance: entry.InstanceID,
				title:    entry.Title,
				record:   rec,
			})
		}
	}

	ctx := context.Background()
	var failures []remote.PeerError
	switch *op {
	case "counts":
		failures = client.QueryCounts(ctx, *domain, fold)
	case "elements":
		failures = client.QueryElements(ctx, *domain, nil, fold)
	default:
		log.Fatal().Str("op", *op).Msg("unknown operation")
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].instance != merged[j].instance {
			return merged[i].instance < merged[j].instance
		}
		return merged[i].record.String() < merged[j].record.String()
	})
	for _, row := range merged {
		fmt.Printf("%s\t%s\t%s\n", row.instance, row.title, row.record)
	}

	for _, failure := range failures {
		log.Warn().Str("peer", failure.InstanceID).Err(failure.Err).Msg("peer query failed")
	}
	if len(merged) == 0 && len(failures) > 0 {
		os.Exit(1)
	}
}
