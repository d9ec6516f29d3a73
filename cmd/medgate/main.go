package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medbridge-ai/medgate/cache"
	"github.com/medbridge-ai/medgate/config"
	"github.com/medbridge-ai/medgate/connectors"
	"github.com/medbridge-ai/medgate/credential"
	"github.com/medbridge-ai/medgate/generation"
	"github.com/medbridge-ai/medgate/intent"
	"github.com/medbridge-ai/medgate/logger"
	"github.com/medbridge-ai/medgate/privacy"
	"github.com/medbridge-ai/medgate/protocol"
	"github.com/medbridge-ai/medgate/registry"
	"github.com/medbridge-ai/medgate/routing"
	"github.com/medbridge-ai/medgate/websocket"
)

const (
	serverName    = "medgate"
	serverVersion = "0.3.0"
)

func main() {
	configPath := flag.String("config", "", "path to gateway config YAML")
	noStdio := flag.Bool("no-stdio", false, "disable the stdio stream transport")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *noStdio {
		cfg.Server.StdioEnabled = false
	}

	log := logger.Get()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// Diagnostic side channel: log lines are mirrored to websocket
	// subscribers; stdout stays reserved for protocol frames.
	var wsServer *websocket.LogServer
	if cfg.Server.LogWSPort > 0 {
		wsServer = websocket.NewLogServer(cfg.Server.LogWSPort)
		if err := wsServer.Start(); err != nil {
			log.Error("start websocket log server", err, nil)
		} else {
			log.SetBroadcast(wsServer.BroadcastLog)
		}
	}

	srv, sessions, err := buildServer(cfg)
	if err != nil {
		log.Error("wire gateway", err, nil)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpTransport := protocol.NewHTTPTransport(srv, cfg.Server.HTTPAddr)
	httpDone := make(chan error, 1)
	go func() { httpDone <- httpTransport.ListenAndServe() }()

	stdioDone := make(chan error, 1)
	if cfg.Server.StdioEnabled {
		stdio := protocol.NewStdioTransport(srv, os.Stdin, os.Stdout)
		go func() { stdioDone <- stdio.Run(ctx) }()
	}

	log.Info("gateway started", map[string]interface{}{
		"httpAddr": cfg.Server.HTTPAddr,
		"stdio":    cfg.Server.StdioEnabled,
		"version":  serverVersion,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("termination signal received", map[string]interface{}{"signal": sig.String()})
	case err := <-httpDone:
		log.Error("http listener stopped", err, nil)
	case err := <-stdioDone:
		if err != nil && err != context.Canceled {
			log.Error("stdio transport stopped", err, nil)
		}
	}

	// Graceful shutdown: close the stream, stop accepting new HTTP
	// connections, let in-flight calls complete or time out.
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpTransport.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", err, nil)
	}
	sessions.Close()
	if wsServer != nil {
		_ = wsServer.Stop()
	}
	log.Info("gateway stopped", nil)
}

// buildServer wires every component of the gateway.
func buildServer(cfg *config.Config) (*protocol.Server, *routing.SessionStore, error) {
	reg, err := registry.New(registry.DefaultCatalog())
	if err != nil {
		return nil, nil, err
	}

	creds := credential.NewManager(credential.NewHTTPRefresher(
		cfg.Credential.TokenURL, cfg.Credential.ClientID, cfg.Credential.ClientSecret))
	respCache := cache.New(cfg.CacheTTL)

	conns := connectors.Set{
		"lookup_patient_record": connectors.NewRecordLookup(cfg.Connectors.RecordsBaseURL),
		"search_literature":     connectors.NewLiteratureSearch(cfg.Connectors.LiteratureBaseURL),
		"search_trials":         connectors.NewTrialSearch(cfg.Connectors.TrialsBaseURL),
		"drug_information":      connectors.NewDrugInfo(cfg.Connectors.OpenFDABaseURL),
		"check_interactions":    connectors.NewInteractionCheck(cfg.Connectors.OpenFDABaseURL),
		"get_drug_label":        connectors.NewDrugLabel(cfg.Connectors.OpenFDABaseURL),
	}
	dispatcher := registry.NewDispatcher(reg, creds, respCache, conns, cfg.ConnectorTimeout)

	sessions := routing.NewSessionStore(cfg.SessionTTL)
	engine := routing.New(privacy.New(), intent.New(), sessions, cfg.Remote.Enabled)

	backends := &generation.Router{}
	if cfg.Local.Enabled {
		local, err := generation.NewLocal(cfg.Local.BaseURL, cfg.Local.Model)
		if err != nil {
			return nil, nil, err
		}
		backends.Local = local
	}
	if cfg.Remote.Enabled {
		remote, err := generation.NewRemote(cfg.Remote.BaseURL, cfg.Remote.Model, cfg.Remote.APIKey)
		if err != nil {
			return nil, nil, err
		}
		backends.Remote = remote
	}

	return protocol.NewServer(serverName, serverVersion, dispatcher, engine, backends), sessions, nil
}
