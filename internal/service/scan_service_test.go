package service_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdk-detect/sdk-detect-go/internal/apktest"
	"github.com/sdk-detect/sdk-detect-go/internal/catalog"
	"github.com/sdk-detect/sdk-detect-go/internal/config"
	"github.com/sdk-detect/sdk-detect-go/internal/detect"
	"github.com/sdk-detect/sdk-detect-go/internal/domain"
	"github.com/sdk-detect/sdk-detect-go/internal/fingerprint"
	"github.com/sdk-detect/sdk-detect-go/internal/repository"
	"github.com/sdk-detect/sdk-detect-go/internal/service"
)

// recordingSink 收集发布的事件
type recordingSink struct {
	mu     sync.Mutex
	events []service.ScanEvent
}

func (s *recordingSink) PublishScanEvent(event service.ScanEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) all() []service.ScanEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]service.ScanEvent(nil), s.events...)
}

func newTestService(t *testing.T) (*service.ScanService, *repository.ScanRepository, *recordingSink) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := repository.InitDB(&config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "scans.db"),
	}, logger)
	require.NoError(t, err)
	repo := repository.NewScanRepository(db, logger)

	cat, err := catalog.NewBuiltin(4)
	require.NoError(t, err)
	extractor := fingerprint.NewExtractor(logger, 4)
	matcher := detect.NewMatcher(logger)
	aggregator := detect.NewAggregator(extractor, matcher, cat, logger, 1)

	svc := service.NewScanService(repo, aggregator, logger)
	sink := &recordingSink{}
	svc.SetEventSink(sink)

	return svc, repo, sink
}

func writePackage(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// TestExecuteCompletedScan 完整链路：建任务、执行、读回有序结果
func TestExecuteCompletedScan(t *testing.T) {
	svc, _, sink := newTestService(t)
	ctx := context.Background()

	data := apktest.BuildAPK(
		apktest.ManifestSpec{Package: "com.example.rnapp"},
		apktest.Entry{Name: "classes.dex", Data: apktest.BuildDex(
			"com.facebook.react.bridge.ReactContext",
			"kotlin.Unit",
		)},
		apktest.Entry{Name: "lib/arm64-v8a/libreactnativejni.so", Data: []byte{1}},
	)
	path := writePackage(t, "rnapp.apk", data)

	task, err := svc.CreateTask(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, task.Status)

	require.NoError(t, svc.Execute(ctx, task.ID, path))

	stored, err := svc.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, "com.example.rnapp", stored.PackageName)
	assert.Equal(t, "apk", stored.Kind)
	assert.Equal(t, 1, stored.MemberCount)

	require.Len(t, stored.SDKs, 2)
	assert.Equal(t, "REACT_NATIVE", stored.SDKs[0].SDK)
	assert.Equal(t, "ANDROID_KOTLIN", stored.SDKs[1].SDK)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, string(domain.StatusCompleted), events[0].Status)
	assert.Equal(t, []string{"REACT_NATIVE", "ANDROID_KOTLIN"}, events[0].SDKs)
}

// TestExecuteFailedScan 引擎错误上抛并持久化为失败任务
func TestExecuteFailedScan(t *testing.T) {
	svc, _, sink := newTestService(t)
	ctx := context.Background()

	path := writePackage(t, "notes.txt", []byte("not a package"))

	task, err := svc.CreateTask(ctx, path)
	require.NoError(t, err)

	err = svc.Execute(ctx, task.ID, path)
	require.Error(t, err)

	stored, err := svc.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.NotEmpty(t, stored.Error)
	assert.Empty(t, stored.SDKs)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, string(domain.StatusFailed), events[0].Status)
	assert.NotEmpty(t, events[0].Error)
}

// TestListTasks 分页与状态过滤
func TestListTasks(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	data := apktest.BuildAPK(
		apktest.ManifestSpec{Package: "com.example.app"},
		apktest.Entry{Name: "classes.dex", Data: apktest.BuildDex("kotlin.Unit")},
	)
	path := writePackage(t, "app.apk", data)

	first, err := svc.CreateTask(ctx, path)
	require.NoError(t, err)
	_, err = svc.CreateTask(ctx, path)
	require.NoError(t, err)
	require.NoError(t, svc.Execute(ctx, first.ID, path))

	all, total, err := svc.ListTasks(ctx, 1, 10, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	completed, total, err := svc.ListTasks(ctx, 1, 10, string(domain.StatusCompleted))
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, completed, 1)
	assert.Equal(t, first.ID, completed[0].ID)
}
