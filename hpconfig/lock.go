package hpconfig

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"github.com/hotpocket/hpcore/hperrors"
)

// InstanceLock guards hp.cfg.lock so only one `hotpocket run` can be
// active against a given node directory at a time.
type InstanceLock struct {
	fl *flock.Flock
}

// AcquireInstanceLock tries to take the lock at path non-blockingly; a
// second process that cannot acquire it must exit fatally rather than
// silently run alongside the first.
func AcquireInstanceLock(path string) (*InstanceLock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, hperrors.Fatal("instance_lock_failed", err)
	}
	if !ok {
		return nil, hperrors.Fatal("instance_already_running", nil)
	}
	return &InstanceLock{fl: fl}, nil
}

// Release gives up the lock.
func (l *InstanceLock) Release() error {
	return l.fl.Unlock()
}

// WatchPatch watches patch.cfg for external writes and invokes onChange
// on each one. This is a fallback to the explicit consensus-driven reload path, guarding
// against a missed in-process notification.
func WatchPatch(ctx context.Context, path string, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return hperrors.Fatal("patch_watch_failed", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return hperrors.Fatal("patch_watch_add_failed", err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					onChange()
				}
			case <-w.Errors:
				// a watch error is not fatal; the explicit
				// consensus-driven reload remains the primary path.
			}
		}
	}()
	return nil
}
