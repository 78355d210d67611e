package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"characterchat/domain"
	"characterchat/utils/log"
)

// StoreWatcher watches the store root for character state changing
// underneath the process (metadata edited by hand, avatars regenerated) and
// publishes character events so connected UIs can refresh. Content hashes
// suppress the duplicate events editors and atomic renames produce.
type StoreWatcher struct {
	root    string
	broker  domain.MessageBroker
	hasher  domain.Hasher
	watcher *fsnotify.Watcher

	mu   sync.Mutex
	seen map[string]string // path -> content hash

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a StoreWatcher over the given store root.
func New(root string, broker domain.MessageBroker, hasher domain.Hasher) (*StoreWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &StoreWatcher{
		root:    root,
		broker:  broker,
		hasher:  hasher,
		watcher: fsWatcher,
		seen:    make(map[string]string),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start watches the root and every existing character directory, then
// processes events until Stop. Non-blocking.
func (w *StoreWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.root); err != nil {
		return err
	}

	entries, err := os.ReadDir(w.root)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				w.watchCharacterDir(filepath.Join(w.root, entry.Name()))
			}
		}
	}

	go w.loop(ctx)
	return nil
}

// Stop shuts the watcher down and waits for the loop to exit.
func (w *StoreWatcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
	<-w.doneCh
}

func (w *StoreWatcher) watchCharacterDir(dir string) {
	if err := w.watcher.Add(dir); err != nil {
		log.With(zap.String("dir", dir), zap.Error(err)).Warn("Failed to watch character dir")
		return
	}
	// The assets dir may not exist yet; fine, the create event adds it.
	w.watcher.Add(filepath.Join(dir, "assets"))
}

func (w *StoreWatcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithCtx(ctx).Warn("Store watcher error", zap.Error(err))
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *StoreWatcher) handle(ctx context.Context, event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	character := parts[0]

	// A new character directory appears at depth one.
	if len(parts) == 1 {
		if event.Op.Has(fsnotify.Create) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				w.watchCharacterDir(event.Name)
			}
		}
		if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
			w.publish(ctx, character, "removed")
		}
		return
	}

	base := parts[len(parts)-1]
	switch {
	case base == "metadata.json" && (event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create)):
		if w.changed(event.Name) {
			w.publish(ctx, character, "metadata")
		}
	case len(parts) >= 2 && parts[1] == "assets" && base == "avatar.png":
		if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
			if w.changed(event.Name) {
				w.publish(ctx, character, "avatar")
			}
		}
	}
}

// changed hashes the file and reports whether its content differs from the
// last observed version.
func (w *StoreWatcher) changed(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return true
	}
	sum := w.hasher.Hash(data)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen[path] == sum {
		return false
	}
	w.seen[path] = sum
	return true
}

func (w *StoreWatcher) publish(ctx context.Context, character, change string) {
	payload, err := json.Marshal(domain.CharacterEvent{
		Character: character,
		Change:    change,
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}
	if err := w.broker.Publish(ctx, domain.CharacterTopic, "", payload); err != nil {
		log.WithCtx(ctx).Debug("Character event publish dropped", zap.Error(err))
	}
	log.WithCtx(ctx).Debug("Store change detected",
		zap.String("character", character), zap.String("change", change))
}
