// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package frames

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aplane-algo/qrsign/internal/fsutil"
	"github.com/aplane-algo/qrsign/internal/util"
)

// DefaultSettle is how long a frame file must stay unchanged before it is read.
const DefaultSettle = 200 * time.Millisecond

// DirSource watches a folder that a camera or capture tool writes frames into.
// Each new or rewritten image is decoded once it has settled.
type DirSource struct {
	Dir    string
	Settle time.Duration
	// Consume removes frame files after they have been read.
	Consume bool
}

// NewDirSource returns a source for dir with the default settle delay.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir, Settle: DefaultSettle}
}

// Run implements Source. It returns nil when ctx is cancelled.
func (s *DirSource) Run(ctx context.Context, onFrame func(Frame)) error {
	if err := fsutil.MkdirAll(s.Dir); err != nil {
		return fmt.Errorf("failed to create watch directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(s.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.Dir, err)
	}
	util.Logger.Info("watching for frames", "dir", s.Dir)

	settle := s.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}

	deb := newDebouncer(ctx, settle)
	defer deb.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !IsImage(event.Name) || event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			deb.touch(event.Name)

		case r := <-deb.ready:
			if deb.take(r) {
				s.deliver(r.name, onFrame)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			util.Logger.Warn("frame watcher error", "error", err)
		}
	}
}

type settled struct {
	name string
	gen  uint64
}

type pendingFrame struct {
	timer *time.Timer
	gen   uint64
}

// debouncer delays each file until no write has touched it for settle.
// touch and take run on the watch loop; timers only send on ready.
type debouncer struct {
	ctx     context.Context
	settle  time.Duration
	ready   chan settled
	pending map[string]*pendingFrame
	gen     uint64
}

func newDebouncer(ctx context.Context, settle time.Duration) *debouncer {
	return &debouncer{
		ctx:     ctx,
		settle:  settle,
		ready:   make(chan settled, 16),
		pending: make(map[string]*pendingFrame),
	}
}

// touch (re)starts the settle timer of name. A timer that already fired
// keeps its queued send, which take then rejects as stale.
func (d *debouncer) touch(name string) {
	if p, ok := d.pending[name]; ok {
		p.timer.Stop()
	}
	d.gen++
	r := settled{name: name, gen: d.gen}
	d.pending[name] = &pendingFrame{
		gen: r.gen,
		timer: time.AfterFunc(d.settle, func() {
			select {
			case d.ready <- r:
			case <-d.ctx.Done():
			}
		}),
	}
}

// take reports whether r is the latest timer of its file and forgets the file.
func (d *debouncer) take(r settled) bool {
	p, ok := d.pending[r.name]
	if !ok || p.gen != r.gen {
		return false
	}
	delete(d.pending, r.name)
	return true
}

func (d *debouncer) stop() {
	for _, p := range d.pending {
		p.timer.Stop()
	}
}

func (s *DirSource) deliver(path string, onFrame func(Frame)) {
	f, err := DecodeFile(path)
	if s.Consume {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			util.Debug("could not remove frame", "path", path, "error", rmErr)
		}
	}
	if err != nil {
		// Frames without a readable code are routine.
		util.Debug("no code in frame", "path", path, "error", err)
		return
	}
	util.Debug("frame decoded", "id", f.ID, "path", path, "bytes", len(f.Text))
	onFrame(f)
}
