//go:build wireinject
// +build wireinject

package di

import (
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/app"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/service"

	"github.com/google/wire"
)

func InitializeApp() (*app.App, error) {
	panic(wire.Build(
		ConfigSet,
		ObservabilitySet,
		RuntimeInfraSet,
		RepositorySet,
		SecuritySet,
		ServiceSet,
		HTTPSet,
		AppSet,
	))
}

func InitializeMigrationRunner() (*MigrationRunner, func(), error) {
	panic(wire.Build(
		ConfigSet,
		provideOpenStores,
		NewMigrationRunner,
	))
}

func InitializeAccountAdmin() (service.AccountAdmin, func(), error) {
	panic(wire.Build(
		ConfigSet,
		AdminSet,
		RepositorySet,
		SecuritySet,
		ServiceSet,
	))
}
