package broadcast

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch emits an event whenever one of paths is written, created, removed or
// renamed. The parent directories are watched rather than the files themselves
// so that files replaced atomically (resolv.conf, editor saves) keep firing.
// A path that is a symlink is also followed to its target, whose directory is
// watched as well.
func Watch(name string, paths ...string) Source {
	return Func(func(ctx context.Context) (<-chan Event, error) {
		if len(paths) == 0 {
			return nil, fmt.Errorf("watch %s: no paths", name)
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("watch %s: %w", name, err)
		}

		wanted := make(map[string]bool, len(paths))
		dirs := make(map[string]bool)
		for _, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				_ = watcher.Close()
				return nil, fmt.Errorf("watch %s: %w", name, err)
			}
			wanted[abs] = true
			dirs[filepath.Dir(abs)] = true

			if target, err := filepath.EvalSymlinks(abs); err == nil && target != abs {
				wanted[target] = true
				dirs[filepath.Dir(target)] = true
			}
		}
		for dir := range dirs {
			if err := watcher.Add(dir); err != nil {
				_ = watcher.Close()
				return nil, fmt.Errorf("watch %s: failed to watch %s: %w", name, dir, err)
			}
		}

		out := make(chan Event)
		go func() {
			defer close(out)
			defer watcher.Close()

			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-watcher.Events:
					if !ok {
						return
					}
					if !wanted[filepath.Clean(ev.Name)] {
						continue
					}
					if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
						!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
						continue
					}
					if !send(ctx, out, Event{Source: name, At: time.Now(), Detail: ev.String()}) {
						return
					}
				case _, ok := <-watcher.Errors:
					if !ok {
						return
					}
					// Overflow or transient watcher errors: keep going
				}
			}
		}()
		return out, nil
	})
}
