package safety

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/wordflowlab/abapagents/pkg/logging"
)

const reloadDebounce = 100 * time.Millisecond

// PolicyWatcher 监听策略文件变化并重新加载到 RuleEvaluator
//
// 监听的是文件所在目录, 以兼容编辑器先写临时文件再 rename 的保存方式。
// 加载失败时保留旧策略。
type PolicyWatcher struct {
	path      string
	evaluator *RuleEvaluator
	watcher   *fsnotify.Watcher
	logger    *logging.Logger

	// OnReload 每次重新加载后调用, err 非 nil 表示加载失败
	OnReload func(p *Policy, err error)

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}
}

// NewPolicyWatcher 加载策略文件并创建监听器, 需调用 Start 开始监听
func NewPolicyWatcher(path string, evaluator *RuleEvaluator, logger *logging.Logger) (*PolicyWatcher, error) {
	if logger == nil {
		logger = logging.Default
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve policy path: %w", err)
	}
	p, err := LoadPolicy(abs)
	if err != nil {
		return nil, err
	}
	evaluator.SetPolicy(p)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &PolicyWatcher{
		path:      abs,
		evaluator: evaluator,
		watcher:   w,
		logger:    logger.Named("safety"),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}, nil
}

// Start 开始监听
func (pw *PolicyWatcher) Start(ctx context.Context) error {
	if err := pw.watcher.Add(filepath.Dir(pw.path)); err != nil {
		pw.watcher.Close()
		return fmt.Errorf("watch %s: %w", pw.path, err)
	}
	go pw.loop(ctx)
	pw.logger.Info(ctx, "watching safety policy", map[string]interface{}{"path": pw.path})
	return nil
}

// Stop 停止监听并等待事件循环退出
func (pw *PolicyWatcher) Stop() error {
	var err error
	pw.stopOnce.Do(func() {
		close(pw.done)
		<-pw.stopped
		err = pw.watcher.Close()
	})
	return err
}

func (pw *PolicyWatcher) loop(ctx context.Context) {
	defer close(pw.stopped)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-pw.done:
			return
		case <-ctx.Done():
			return

		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != pw.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			pw.reload(ctx)

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.Warn(ctx, "policy watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (pw *PolicyWatcher) reload(ctx context.Context) {
	p, err := LoadPolicy(pw.path)
	if err != nil {
		pw.logger.Warn(ctx, "policy reload failed, keeping previous rules", map[string]interface{}{
			"path":  pw.path,
			"error": err.Error(),
		})
	} else {
		pw.evaluator.SetPolicy(p)
		pw.logger.Info(ctx, "safety policy reloaded", map[string]interface{}{"path": pw.path})
	}
	if pw.OnReload != nil {
		pw.OnReload(p, err)
	}
}
