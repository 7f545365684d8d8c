package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-mentat-must-flow/internal/config"
	"github.com/Veraticus/the-mentat-must-flow/internal/service"
	"github.com/Veraticus/the-mentat-must-flow/internal/storage"
)

// initStorage opens the configured SQLite database and brings its schema
// up to date.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(config.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initService builds the classification service on top of storage and
// restores any persisted model. The caller closes the returned storage.
func initService(ctx context.Context) (*service.Classifier, *storage.SQLiteStorage, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, nil, err
	}

	mlCfg, err := config.LoadMLConfig()
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	svc := service.NewClassifier(store, mlCfg)
	if err := svc.LoadModel(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return svc, store, nil
}

func closeStorage(store *storage.SQLiteStorage) {
	if err := store.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}
