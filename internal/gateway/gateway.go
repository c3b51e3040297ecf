package gateway

import (
	"context"
	"fmt"

	"github.com/pumpgate-io/pumpgate/internal/gateway/server"
	httpserver "github.com/pumpgate-io/pumpgate/internal/gateway/server/http"
	mqttserver "github.com/pumpgate-io/pumpgate/internal/gateway/server/mqtt"
	"github.com/pumpgate-io/pumpgate/internal/gateway/state"
	"github.com/pumpgate-io/pumpgate/internal/gateway/storage"
	"github.com/pumpgate-io/pumpgate/pkg/log"
	"github.com/pumpgate-io/pumpgate/pkg/mqtt"
)

// Gateway owns the MQTT client and the database handle and runs the
// component servers as one group.
type Gateway struct {
	cfg    *Config
	client mqtt.Client
	logger log.Logger
}

func newGateway(cfg *Config) (*Gateway, error) {
	client, err := mqtt.NewClient(cfg.Mqtt.ToClientConfig())
	if err != nil {
		return nil, fmt.Errorf("create mqtt client: %w", err)
	}
	return &Gateway{
		cfg:    cfg,
		client: client,
		logger: log.Std().WithName("gateway"),
	}, nil
}

// Run opens storage, connects the broker and blocks serving until ctx
// is canceled or a component fails.
func (g *Gateway) Run(ctx context.Context) error {
	db, err := storage.Open(ctx, g.cfg.Sqlite.Path)
	if err != nil {
		return fmt.Errorf("open history database: %w", err)
	}
	defer db.Close()
	g.logger.Info("history database open", "path", g.cfg.Sqlite.Path)

	store := state.NewStore(db, g.logger)

	// The client connection is shared by the ingest server, the status
	// publisher and the HTTP control endpoint, so its lifecycle lives
	// here rather than in any one server.
	if err := g.client.Start(ctx); err != nil {
		return fmt.Errorf("start mqtt client: %w", err)
	}
	defer g.client.Disconnect(context.Background())

	manager := server.NewManager(
		mqttserver.NewServer(g.client, store),
		mqttserver.NewPublisher(g.client, store),
		httpserver.NewServer(g.cfg.Http, httpserver.NewHandler(store, db, g.client)),
		newRetentionSweeper(db, g.cfg.Sqlite.RetentionDays),
	)
	return manager.Start(ctx)
}
