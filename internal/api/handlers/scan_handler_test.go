package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
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

// recordingDispatcher 记录投递过的任务，不真正执行
type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []*domain.ScanTask
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, task *domain.ScanTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, task)
	return nil
}

func setupScanRouter(t *testing.T) (*gin.Engine, *service.ScanService, *recordingDispatcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
	aggregator := detect.NewAggregator(
		fingerprint.NewExtractor(logger, 4),
		detect.NewMatcher(logger),
		cat, logger, 1,
	)
	svc := service.NewScanService(repo, aggregator, logger)

	dispatcher := &recordingDispatcher{}
	handler := NewScanHandler(svc, dispatcher, logger)

	r := gin.New()
	r.POST("/api/scans", handler.CreateScan)
	r.GET("/api/scans", handler.ListScans)
	r.GET("/api/scans/:id", handler.GetScan)

	return r, svc, dispatcher
}

func buildTestAPK(t *testing.T) string {
	t.Helper()
	data := apktest.BuildAPK(
		apktest.ManifestSpec{Package: "com.example.app"},
		apktest.Entry{Name: "classes.dex", Data: apktest.BuildDex("kotlin.Unit")},
	)
	path := filepath.Join(t.TempDir(), "app.apk")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// TestCreateScanAccepted 创建任务返回 202 并投递给执行端
func TestCreateScanAccepted(t *testing.T) {
	r, _, dispatcher := setupScanRouter(t)
	path := buildTestAPK(t)

	body, _ := json.Marshal(map[string]string{"path": path})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["task_id"])
	assert.Equal(t, "queued", resp["status"])

	require.Len(t, dispatcher.tasks, 1)
	assert.Equal(t, resp["task_id"], dispatcher.tasks[0].ID)
}

func TestCreateScanRequiresPath(t *testing.T) {
	r, _, _ := setupScanRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scans", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateScanMissingFile(t *testing.T) {
	r, _, _ := setupScanRouter(t)

	body, _ := json.Marshal(map[string]string{"path": "/nonexistent/app.apk"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestGetScanCompleted 执行完成后的任务带有序 SDK 列表
func TestGetScanCompleted(t *testing.T) {
	r, svc, _ := setupScanRouter(t)
	path := buildTestAPK(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, path)
	require.NoError(t, err)
	require.NoError(t, svc.Execute(ctx, task.ID, path))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/scans/"+task.ID, nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status      string   `json:"status"`
		PackageName string   `json:"package_name"`
		SDKs        []string `json:"sdks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, "com.example.app", resp.PackageName)
	assert.Equal(t, []string{"ANDROID_KOTLIN"}, resp.SDKs)
}

func TestGetScanNotFound(t *testing.T) {
	r, _, _ := setupScanRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/scans/no-such-id", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestListScans 分页列表
func TestListScans(t *testing.T) {
	r, svc, _ := setupScanRouter(t)
	path := buildTestAPK(t)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, path)
	require.NoError(t, err)
	_, err = svc.CreateTask(ctx, path)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/scans?page=1&limit=1", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Total int64                    `json:"total"`
		Items []map[string]interface{} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 2, resp.Total)
	assert.Len(t, resp.Items, 1)
}
