package ingest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/stamp"
	"github.com/causeway-data/causeway/store"
	"github.com/causeway-data/causeway/tabular"
)

const (
	maxRetries          = 5
	initialBackoff      = 1 * time.Second
	maxBackoff          = 60 * time.Second
	retryTickerInterval = 1 * time.Second

	// rejectedDirName collects drops that can never be filed. It sits
	// inside the drop directory; the watch is non-recursive, so nothing
	// in it is ever picked up again.
	rejectedDirName = "_rejected"
)

// DropConfig sizes a DropWatcher.
type DropConfig struct {
	// Dir is the directory watched for drops.
	Dir string

	// Node receives the drops. Empty means the hosting node is inferred
	// per drop from its type.
	Node string

	// Settle is how long a file must sit unchanged before it is read.
	// Uploads arrive in several writes; reading too early would store a
	// truncated export.
	Settle time.Duration

	// RatePerSec and Burst bound how fast drops are filed into the store.
	RatePerSec float64
	Burst      int
}

// DropWatcher files exports dropped into a directory. A drop is named
// <type>.<id>.<stamp>.csv; once it stops changing it is decoded, stored,
// and removed. Drops the store rejects outright move to the _rejected/
// subdirectory; failures that a later attempt could cure retry with
// exponential backoff before they too are quarantined.
type DropWatcher struct {
	store  *store.Store
	codec  tabular.Codec
	dir    string
	node   string
	logger *zap.SugaredLogger

	watcher *fsnotify.Watcher
	settle  time.Duration
	limiter *rate.Limiter

	// Per-path settle timers; a new write restarts the file's timer.
	mu     sync.Mutex
	timers map[string]*time.Timer

	// Retry queue
	retryMu    sync.Mutex
	retryQueue []*pendingDrop

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// pendingDrop is a failed drop queued for another attempt.
type pendingDrop struct {
	Path        string
	Attempt     int
	NextRetryAt time.Time
	LastError   string
}

// NewDropWatcher creates a watcher over cfg.Dir. Zero knobs take modest
// defaults; an explicit cfg.Node must exist in the taxonomy.
func NewDropWatcher(s *store.Store, cfg DropConfig, logger *zap.SugaredLogger) (*DropWatcher, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Dir == "" {
		return nil, errors.New("drop watcher needs a directory")
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 500 * time.Millisecond
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 4
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.Node != "" {
		if _, err := s.Taxonomy().Node(cfg.Node); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &DropWatcher{
		store:      s,
		codec:      tabular.CSV{},
		dir:        cfg.Dir,
		node:       cfg.Node,
		logger:     logger,
		settle:     cfg.Settle,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		timers:     make(map[string]*time.Timer),
		retryQueue: make([]*pendingDrop, 0),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start begins watching. Files already sitting in the directory are picked
// up as if they had just arrived.
func (w *DropWatcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating drop watcher")
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return errors.Wrapf(err, "watching drop directory %q", w.dir)
	}
	w.watcher = fsw

	if err := w.sweepExisting(); err != nil {
		fsw.Close()
		w.watcher = nil
		return err
	}

	w.wg.Add(2)
	go w.watchLoop()
	go w.retryLoop()

	w.logger.Infow("drop watcher started", "dir", w.dir)
	return nil
}

// Stop shuts the watcher down. Settled drops already being filed finish;
// pending settle timers and queued retries are abandoned.
func (w *DropWatcher) Stop() {
	w.cancel()
	if w.watcher != nil {
		w.watcher.Close()
	}

	w.mu.Lock()
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("drop watcher stopped")
}

// sweepExisting queues whatever already sits in the directory.
func (w *DropWatcher) sweepExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return errors.Wrapf(err, "listing drop directory %q", w.dir)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isDropName(entry.Name()) {
			continue
		}
		w.scheduleSettle(filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

func (w *DropWatcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !isDropName(filepath.Base(event.Name)) {
				continue
			}
			w.logger.Debugw("drop event", "file", event.Name, "op", event.Op.String())
			w.scheduleSettle(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("drop watcher error", "error", err)
		}
	}
}

// isDropName filters to the files the watcher may touch. Dot-prefixed
// names are upload temp files and never drops.
func isDropName(base string) bool {
	return strings.HasSuffix(base, ".csv") && !strings.HasPrefix(base, ".")
}

// scheduleSettle (re)arms the file's settle timer.
func (w *DropWatcher) scheduleSettle(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		if w.ctx.Err() != nil {
			return
		}
		w.process(path, 0)
	})
}

// process files one settled drop; attempt counts the retries so far.
// Rejections that no retry can fix move the file to _rejected/, transient
// failures go to the retry queue.
func (w *DropWatcher) process(path string, attempt int) {
	if err := w.limiter.Wait(w.ctx); err != nil {
		return
	}

	obj, at, err := parseDropName(filepath.Base(path))
	if err != nil {
		w.quarantine(path, err)
		return
	}

	node := w.node
	if node == "" {
		host, err := w.store.Taxonomy().HostingNode(obj.TypeName)
		if err != nil {
			w.quarantine(path, err)
			return
		}
		node = host.Path()
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			w.logger.Debugw("drop vanished before it was read", "file", path)
			return
		}
		w.queueRetry(path, attempt+1, err)
		return
	}
	tbl, err := w.codec.Decode(bytes.NewReader(blob))
	if err != nil {
		w.quarantine(path, err)
		return
	}

	if _, err := w.store.Put(w.ctx, node, obj, at, tbl, store.PutOptions{}); err != nil {
		if permanentPutFailure(err) {
			w.quarantine(path, err)
		} else {
			w.queueRetry(path, attempt+1, err)
		}
		return
	}

	if err := os.Remove(path); err != nil {
		w.logger.Warnw("stored drop left behind", "file", path, "error", err)
	}
	w.logger.Infow("drop stored",
		"file", filepath.Base(path),
		"type", obj.TypeName,
		"id", obj.LogicalID,
		"stamp", at.String(),
		"node", node,
	)
}

// parseDropName splits a drop filename of the form <type>.<id>.<stamp>.csv.
// The id may itself contain dots; the type never does, and the stamp is the
// final dot field before the extension.
func parseDropName(name string) (store.Object, stamp.Stamp, error) {
	base, ok := strings.CutSuffix(name, ".csv")
	if !ok {
		return store.Object{}, stamp.Stamp{}, errors.Newf("drop %q: want a .csv file", name)
	}
	fields := strings.Split(base, ".")
	if len(fields) < 3 {
		return store.Object{}, stamp.Stamp{}, errors.Newf("drop %q: want <type>.<id>.<stamp>.csv", name)
	}

	at, err := stamp.Parse(fields[len(fields)-1])
	if err != nil {
		return store.Object{}, stamp.Stamp{}, errors.Wrapf(err, "drop %q", name)
	}
	obj := store.Object{
		TypeName:  fields[0],
		LogicalID: strings.Join(fields[1:len(fields)-1], "."),
	}
	return obj, at, nil
}

// permanentPutFailure reports put errors no retry can cure.
func permanentPutFailure(err error) bool {
	return errors.IsSchemaViolation(err) ||
		errors.IsDuplicateArtifact(err) ||
		errors.IsUnhostedType(err) ||
		errors.IsNotFound(err)
}

// quarantine moves a rejected drop aside so the directory never wedges on a
// file that cannot be filed.
func (w *DropWatcher) quarantine(path string, cause error) {
	rejected := filepath.Join(w.dir, rejectedDirName)
	if err := os.MkdirAll(rejected, 0o755); err != nil {
		w.logger.Errorw("cannot create rejected directory", "dir", rejected, "error", err)
		return
	}

	dst := filepath.Join(rejected, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		w.logger.Errorw("cannot quarantine drop", "file", path, "error", err)
		return
	}
	w.logger.Warnw("drop rejected",
		"file", filepath.Base(path),
		"reason", cause.Error(),
		"moved_to", dst,
	)
}

// queueRetry schedules another attempt with exponential backoff. A drop
// that exhausts its retries is quarantined rather than silently dropped.
func (w *DropWatcher) queueRetry(path string, attempt int, cause error) {
	if attempt > maxRetries {
		w.quarantine(path, errors.Wrapf(cause, "giving up after %d retries", maxRetries))
		return
	}

	// Backoff doubles per attempt: 1s, 2s, 4s, 8s, ... up to maxBackoff.
	backoff := initialBackoff * time.Duration(1<<(attempt-1))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	w.retryMu.Lock()
	defer w.retryMu.Unlock()

	w.retryQueue = append(w.retryQueue, &pendingDrop{
		Path:        path,
		Attempt:     attempt,
		NextRetryAt: time.Now().Add(backoff),
		LastError:   cause.Error(),
	})

	w.logger.Debugw("drop queued for retry",
		"file", path,
		"attempt", attempt,
		"next_retry_at", time.Now().Add(backoff),
	)
}

// retryLoop processes the retry queue.
func (w *DropWatcher) retryLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(retryTickerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.processRetryQueue()
		}
	}
}

// processRetryQueue runs the due retries.
func (w *DropWatcher) processRetryQueue() {
	now := time.Now()

	w.retryMu.Lock()
	var due []*pendingDrop
	var remaining []*pendingDrop
	for _, pd := range w.retryQueue {
		if !pd.NextRetryAt.After(now) {
			due = append(due, pd)
		} else {
			remaining = append(remaining, pd)
		}
	}
	w.retryQueue = remaining
	w.retryMu.Unlock()

	// Due drops run outside the lock.
	for _, pd := range due {
		go w.process(pd.Path, pd.Attempt)
	}
}
