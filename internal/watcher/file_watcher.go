package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// PackageHandler 新包文件的处理函数
type PackageHandler func(ctx context.Context, path string) error

// PackageWatcher 监控投递目录，新出现的 .apk / .xapk 文件写入
// 稳定后交给 handler（通常是入队扫描任务）。
type PackageWatcher struct {
	watcher    *fsnotify.Watcher
	watchDir   string
	extensions []string
	handler    PackageHandler
	logger     *logrus.Logger
	debounce   time.Duration
	stopChan   chan struct{}

	mu         sync.Mutex
	processing map[string]bool
}

// NewPackageWatcher 创建监控器。extensions 为空时默认 .apk 与 .xapk。
func NewPackageWatcher(watchDir string, extensions []string, handler PackageHandler, logger *logrus.Logger) (*PackageWatcher, error) {
	if len(extensions) == 0 {
		extensions = []string{".apk", ".xapk"}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := os.MkdirAll(watchDir, 0755); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to create watch directory: %w", err)
	}

	if err := watcher.Add(watchDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to add watch directory: %w", err)
	}

	pw := &PackageWatcher{
		watcher:    watcher,
		watchDir:   watchDir,
		extensions: extensions,
		handler:    handler,
		logger:     logger,
		debounce:   2 * time.Second,
		processing: make(map[string]bool),
		stopChan:   make(chan struct{}),
	}

	logger.WithFields(logrus.Fields{
		"watch_dir":  watchDir,
		"extensions": extensions,
	}).Info("Package watcher created")

	return pw, nil
}

// Start 启动监控。已存在的文件不会被重新处理，重启服务不触发重复扫描。
func (pw *PackageWatcher) Start(ctx context.Context) error {
	pw.logger.Info("Starting package watcher")
	go pw.eventLoop(ctx)
	return nil
}

// eventLoop 事件循环。同一文件的连续写事件经防抖合并为一次处理。
func (pw *PackageWatcher) eventLoop(ctx context.Context) {
	debounceTimer := make(map[string]*time.Timer)

	for {
		select {
		case <-ctx.Done():
			pw.logger.Info("Package watcher context done")
			return
		case <-pw.stopChan:
			pw.logger.Info("Package watcher stopped")
			return
		case event, ok := <-pw.watcher.Events:
			if !ok {
				pw.logger.Warn("Watcher events channel closed")
				return
			}

			if event.Op&fsnotify.Create != fsnotify.Create &&
				event.Op&fsnotify.Write != fsnotify.Write {
				continue
			}

			if !pw.matchExtension(event.Name) {
				continue
			}

			pw.logger.WithFields(logrus.Fields{
				"event": event.Op.String(),
				"file":  filepath.Base(event.Name),
			}).Debug("Package file event detected")

			if timer, exists := debounceTimer[event.Name]; exists {
				timer.Stop()
			}
			name := event.Name
			debounceTimer[name] = time.AfterFunc(pw.debounce, func() {
				delete(debounceTimer, name)
				pw.handleFile(ctx, name)
			})

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				pw.logger.Warn("Watcher errors channel closed")
				return
			}
			pw.logger.WithError(err).Error("Watcher error")
		}
	}
}

func (pw *PackageWatcher) handleFile(ctx context.Context, path string) {
	pw.mu.Lock()
	if pw.processing[path] {
		pw.mu.Unlock()
		pw.logger.WithField("file", path).Debug("File is already being processed")
		return
	}
	pw.processing[path] = true
	pw.mu.Unlock()
	defer func() {
		pw.mu.Lock()
		delete(pw.processing, path)
		pw.mu.Unlock()
	}()

	if err := pw.waitForFileReady(path); err != nil {
		pw.logger.WithError(err).WithField("file", path).Error("Package file not ready")
		return
	}

	pw.logger.WithField("file", path).Info("Dispatching package file")

	if err := pw.handler(ctx, path); err != nil {
		pw.logger.WithError(err).WithField("file", path).Error("Failed to dispatch package file")
	}
}

// waitForFileReady 等待文件大小稳定，避免读到写了一半的包
func (pw *PackageWatcher) waitForFileReady(path string) error {
	maxAttempts := 10
	for i := 0; i < maxAttempts; i++ {
		info1, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file does not exist")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		time.Sleep(500 * time.Millisecond)

		info2, err := os.Stat(path)
		if err != nil {
			return err
		}

		if info1.Size() == info2.Size() && info1.Size() > 0 {
			return nil
		}
	}

	return fmt.Errorf("file not ready after %d attempts", maxAttempts)
}

func (pw *PackageWatcher) matchExtension(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, ext := range pw.extensions {
		if strings.HasSuffix(name, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// Stop 停止监控
func (pw *PackageWatcher) Stop() error {
	pw.logger.Info("Stopping package watcher")
	close(pw.stopChan)

	if pw.watcher != nil {
		return pw.watcher.Close()
	}
	return nil
}

// GetWatchDir 监控目录
func (pw *PackageWatcher) GetWatchDir() string {
	return pw.watchDir
}
