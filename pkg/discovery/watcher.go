package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	debounceDelay = 100 * time.Millisecond
	rewatchEvery  = 500 * time.Millisecond
	rewatchTries  = 10
)

// Watch reports changes of the provider's file on the returned channel
// until ctx is done. Bursts of writes are coalesced.
func (p *FileProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	// Editors replace files, so the directory is watched instead.
	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch directory %s: %w", dir, err)
	}

	ch := make(chan struct{}, 1)
	go p.watchLoop(ctx, watcher, filepath.Base(p.path), ch)
	slog.InfoContext(ctx, "discovery.watch.start", slog.String("path", p.path))
	return ch, nil
}

func (p *FileProvider) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, name string, ch chan struct{}) {
	defer close(ch)
	defer watcher.Close()

	notify := func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, notify)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				slog.WarnContext(ctx, "discovery.watch.removed", slog.String("path", p.path))
				go p.rewatch(ctx, watcher, notify)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.ErrorContext(ctx, "discovery.watch.error", slog.String("error", err.Error()))
		}
	}
}

func (p *FileProvider) rewatch(ctx context.Context, watcher *fsnotify.Watcher, notify func()) {
	ticker := time.NewTicker(rewatchEvery)
	defer ticker.Stop()
	for i := 0; i < rewatchTries; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := os.Stat(p.path); err != nil {
				continue
			}
			if err := watcher.Add(filepath.Dir(p.path)); err == nil {
				notify()
				return
			}
		}
	}
	slog.WarnContext(ctx, "discovery.watch.lost", slog.String("path", p.path))
}

// EntrySink receives the merged endpoint list after every change.
type EntrySink func(endpoints []AgentEndpoint)

// Follow re-resolves endpoints each time the file changes and hands them
// to sink. It blocks until ctx is done. Resolution errors keep the
// previous list in place.
func Follow(ctx context.Context, file *FileProvider, resolver *Resolver, sink EntrySink) error {
	changes, err := file.Watch(ctx)
	if err != nil {
		return err
	}
	for range changes {
		endpoints, err := resolver.Resolve(ctx)
		if err != nil {
			slog.WarnContext(ctx, "discovery.reload.failed", slog.String("error", err.Error()))
			continue
		}
		slog.InfoContext(ctx, "discovery.reload", slog.Int("agents", len(endpoints)))
		sink(endpoints)
	}
	return ctx.Err()
}
