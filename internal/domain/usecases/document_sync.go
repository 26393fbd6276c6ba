package usecases

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/0xcro3dile/ragchat/internal/domain/ports"
	"github.com/0xcro3dile/ragchat/internal/logger"
)

// DocumentSync keeps the index in step with files added to or removed from
// the document directory outside the API.
type DocumentSync struct {
	manager *VectorStoreManager
	watcher ports.FileWatcher
	dir     string
}

func NewDocumentSync(manager *VectorStoreManager, watcher ports.FileWatcher, dir string) *DocumentSync {
	return &DocumentSync{manager: manager, watcher: watcher, dir: dir}
}

// Run indexes pending documents, then applies watcher events until ctx is done.
func (s *DocumentSync) Run(ctx context.Context) error {
	log := logger.FromContext(ctx).With("component", "document_sync")

	indexed, err := s.manager.Reconcile(ctx)
	if err != nil {
		log.Warn("initial reconcile incomplete", "error", err)
	}
	if len(indexed) > 0 {
		log.Info("indexed pending documents", "count", len(indexed))
	}

	events, err := s.watcher.Watch(ctx, s.dir)
	if err != nil {
		return err
	}
	defer s.watcher.Stop()

	for ev := range events {
		err := s.Apply(ctx, ev)
		switch {
		case err == nil:
		case errors.Is(err, ErrEmptyDocument):
			// files are often created empty and filled by a later write
			log.Debug("skipping empty document", "path", ev.Path)
		default:
			log.Error("failed to sync document", "path", ev.Path, "op", ev.Operation.String(), "error", err)
		}
	}
	return nil
}

// Apply handles a single file event.
func (s *DocumentSync) Apply(ctx context.Context, ev ports.FileEvent) error {
	name := filepath.Base(ev.Path)
	switch ev.Operation {
	case ports.FileCreated:
		_, _, err := s.manager.IndexExisting(ctx, name)
		return err
	case ports.FileModified:
		_, _, err := s.manager.RefreshDocument(ctx, name)
		return err
	case ports.FileDeleted:
		_, err := s.manager.DeleteDocument(ctx, name)
		return err
	}
	return nil
}
