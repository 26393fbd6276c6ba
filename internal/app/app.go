// Package app wires the configured adapters into the chatbot services.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/0xcro3dile/ragchat/internal/adapters/docstore"
	"github.com/0xcro3dile/ragchat/internal/adapters/embedding"
	"github.com/0xcro3dile/ragchat/internal/adapters/filelock"
	"github.com/0xcro3dile/ragchat/internal/adapters/filewatcher"
	"github.com/0xcro3dile/ragchat/internal/adapters/llm"
	"github.com/0xcro3dile/ragchat/internal/adapters/loader"
	"github.com/0xcro3dile/ragchat/internal/adapters/splitter"
	"github.com/0xcro3dile/ragchat/internal/adapters/tokenizer"
	"github.com/0xcro3dile/ragchat/internal/adapters/vectordb"
	"github.com/0xcro3dile/ragchat/internal/config"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
	"github.com/0xcro3dile/ragchat/internal/domain/usecases"
	"github.com/0xcro3dile/ragchat/internal/infrastructure/http"
	"github.com/0xcro3dile/ragchat/internal/infrastructure/metrics"
	"github.com/0xcro3dile/ragchat/internal/logger"
)

const lockFile = ".lock"

// App holds the long-lived services built from a Config.
type App struct {
	Config  *config.Config
	Manager *usecases.VectorStoreManager
	Agent   *usecases.RetrievalAgent
	Metrics *metrics.Metrics

	log logger.Logger
}

// New builds every service. The vector index is opened lazily on first use.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.FromContext(ctx)

	embedder, err := embedding.New(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.APIKey,
		CacheSize: cfg.Embedding.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}

	model, err := llm.New(llm.Config{
		Provider: cfg.Provider,
		Model:    cfg.Chat.Model,
		BaseURL:  cfg.Chat.BaseURL,
		APIKey:   cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("chat client: %w", err)
	}

	fsys := afero.NewOsFs()
	docs, err := docstore.NewFileStore(fsys, cfg.Storage.DocsDir)
	if err != nil {
		return nil, err
	}
	mapping := docstore.NewJSONMapping(fsys, cfg.Storage.DocsDir, cfg.Storage.MappingFile)

	opener, opts := indexBackend(cfg.Storage)
	manager := usecases.NewVectorStoreManager(
		docs,
		mapping,
		loader.NewMultiLoader(),
		splitter.NewRecursive(cfg.Chunking.Size, cfg.Chunking.Overlap),
		embedder,
		opener,
		opts...,
	)

	agent := usecases.NewRetrievalAgent(
		model,
		tokenizer.New(ctx, cfg.Chat.Model),
		manager,
		usecases.AgentConfigFor(cfg.Provider, cfg.Chat.SystemPrompt, cfg.Chat.MaxContextTokens, cfg.Chat.TopK),
	)

	log.Debug("services ready",
		"provider", cfg.Provider,
		"chat_model", cfg.Chat.Model,
		"embedding_model", cfg.Embedding.Model,
		"docs_dir", cfg.Storage.DocsDir,
		"index_backend", cfg.Storage.IndexBackend,
		"index_dir", cfg.Storage.IndexDir,
	)

	return &App{
		Config:  cfg,
		Manager: manager,
		Agent:   agent,
		Metrics: metrics.New(),
		log:     log,
	}, nil
}

// indexBackend returns the index opener and manager options for the
// configured backend. Only the persisted backend is shared between processes,
// so only it takes the lock file.
func indexBackend(st config.StorageConfig) (ports.IndexOpener, []usecases.ManagerOption) {
	opts := []usecases.ManagerOption{usecases.WithMappingPruning(st.PruneMappingOnDelete)}
	if st.IndexBackend == config.IndexBackendMemory {
		return &vectordb.MemoryOpener{}, opts
	}
	opts = append(opts, usecases.WithLocker(filelock.New(filepath.Join(st.IndexDir, lockFile))))
	return vectordb.SQLiteOpener{Dir: st.IndexDir}, opts
}

// Server returns the HTTP server for the chatbot and document API.
func (a *App) Server() *http.Server {
	s := a.Config.Server
	return http.NewServer(http.Config{
		Addr:            s.Addr,
		CORSOrigins:     s.CORSOrigins,
		ReadTimeout:     s.ReadTimeout,
		ShutdownTimeout: s.ShutdownTimeout,
	}, a.Agent, a.Manager, a.Metrics, a.log)
}

// DocumentSync returns a watcher-driven sync of the document directory. The
// mapping file and its temporary sibling are never treated as documents.
func (a *App) DocumentSync() (*usecases.DocumentSync, error) {
	name := a.Config.Storage.MappingFile
	w, err := filewatcher.NewFSNotifyWatcher(nil, name, name+".tmp")
	if err != nil {
		return nil, fmt.Errorf("file watcher: %w", err)
	}
	return usecases.NewDocumentSync(a.Manager, w, a.Config.Storage.DocsDir), nil
}

// Close releases the vector index.
func (a *App) Close() error {
	if err := a.Manager.Close(); err != nil {
		return fmt.Errorf("closing index: %w", err)
	}
	return nil
}
