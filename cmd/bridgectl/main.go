// bridgectl runs one demo host instance with the embedded control server:
// it opens a sample document, binds a loopback TLS port, registers in the
// shared file registry, and serves snippet/query/capture requests until
// interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hostbridge/bridgectl/internal/auth"
	"github.com/hostbridge/bridgectl/internal/bridge"
	"github.com/hostbridge/bridgectl/internal/certs"
	"github.com/hostbridge/bridgectl/internal/config"
	"github.com/hostbridge/bridgectl/internal/diag"
	"github.com/hostbridge/bridgectl/internal/host"
	"github.com/hostbridge/bridgectl/internal/logging"
	"github.com/hostbridge/bridgectl/internal/registry"
	"github.com/hostbridge/bridgectl/internal/server"
	"github.com/hostbridge/bridgectl/internal/snippet"
	"github.com/hostbridge/bridgectl/internal/token"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config (defaults apply when empty)")
	docTitle := flag.String("doc", "Doc1", "title of the demo document this instance owns")
	flag.Parse()

	logging.ConfigureRuntime("bridgectl")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	tok, err := token.Load(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("token load failed")
	}
	cert, err := certs.EnsureServerCert(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("certificate setup failed")
	}

	instanceID := uuid.NewString()
	model := host.NewModel()
	model.AddDocument(demoDocument(*docTitle))

	var loop *host.Loop
	br := bridge.New(cfg.BridgeQueueDepth, cfg.ExecutionTimeout(), func() {
		loop.Signal()
	})
	loop = host.NewLoop(br)

	srv := server.New(server.Options{
		InstanceName:     cfg.InstanceName,
		Validator:        auth.StaticToken{Token: tok},
		Bridge:           br,
		Model:            model,
		Engine:           snippet.NewEngine(),
		DataDir:          cfg.DataDir,
		Certificate:      cert,
		BasePort:         cfg.BasePort,
		PortRange:        cfg.PortRange,
		HandshakeTimeout: cfg.HandshakeTimeout(),
	})
	if err := srv.Listen(); err != nil {
		log.Fatal().Err(err).Msg("listener setup failed")
	}

	reg := registry.NewStore(cfg.DataDir, cfg.StalenessThreshold())
	ownEntries := func() []registry.Entry {
		docs := model.Documents()
		entries := make([]registry.Entry, 0, len(docs))
		for _, doc := range docs {
			entries = append(entries, registry.Entry{
				Title:      doc.Title,
				Path:       doc.Path,
				InstanceID: instanceID,
				Port:       srv.Port(),
				Host:       "127.0.0.1",
				PID:        os.Getpid(),
			})
		}
		return entries
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go loop.Run(ctx)
	go reg.RunHeartbeat(ctx, cfg.HeartbeatInterval(), instanceID, ownEntries)

	if cfg.DiagAddr != "" {
		go func() {
			d := diag.New(cfg.InstanceName, cfg.DiagAddr, reg, cfg.DiagCorsOrigins)
			if err := d.Serve(); err != nil {
				log.Error().Err(err).Msg("diagnostics server stopped")
			}
		}()
	}

	log.Info().
		Str("instance", instanceID).
		Int("port", srv.Port()).
		Str("doc", *docTitle).
		Msg("bridgectl up")

	if err := srv.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("control server stopped")
	}
	br.Close()
	log.Info().Msg("bridgectl shut down")
}

// demoDocument seeds the reference model so queries have something to count.
func demoDocument(title string) host.Document {
	return host.Document{
		Title: title,
		Path:  "/demo/" + title,
		Instances: []host.FamilyInstance{
			{Category: "Doors", Family: "Single-Flush", Type: "0915 x 2134mm", UniqueID: "d-001", NumericID: 1001},
			{Category: "Doors", Family: "Single-Flush", Type: "0915 x 2134mm", UniqueID: "d-002", NumericID: 1002},
			{Category: "Windows", Family: "Fixed", Type: "0406 x 0610mm", UniqueID: "w-001", NumericID: 2001},
		},
		Worksets: []host.Workset{
			{Name: "Shared Levels and Grids", Kind: "UserWorkset", ElementCount: 2},
			{Name: "Workset1", Kind: "UserWorkset", ElementCount: 3},
		},
	}
}
