//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	domsvc "RiskPulse/internal/domain/service"
	"RiskPulse/internal/usecase"
	"RiskPulse/pkg/config"
	"RiskPulse/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideClickHouseClient,
		ProvideCache,

		// Repositories
		ProvideEntityStore,
		ProvideReportCache,
		ProvideReportPublisher,

		// Use cases
		ProvideRegistry,
		ProvideAssembler,
		ProvideReportFeed,
		ProvideReportService,
		wire.Bind(new(domsvc.ReportGenerator), new(*usecase.ReportService)),
		ProvideRefreshScheduler,
		ProvideKafkaConsumer,
		ProvideSnapshotHandler,

		// HTTP
		ProvideReportsHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
