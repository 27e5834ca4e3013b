package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-mirror/internal/config"
	"github.com/JakeFAU/wayback-mirror/internal/crawler"
)

// MockMirror mocks the Mirror interface.
type MockMirror struct {
	mock.Mock
}

// Run satisfies the Mirror interface for the mock.
func (m *MockMirror) Run(ctx context.Context, targetURL string) (crawler.Report, error) {
	args := m.Called(ctx, targetURL)
	return args.Get(0).(crawler.Report), args.Error(1)
}

// Close satisfies the Mirror interface for the mock.
func (m *MockMirror) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type harness struct {
	mirror *MockMirror
	cfg    config.Config
	built  bool
	out    *bytes.Buffer
}

func newHarness() *harness {
	return &harness{mirror: new(MockMirror), out: new(bytes.Buffer)}
}

func (h *harness) execute(t *testing.T, args ...string) error {
	t.Helper()
	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("logging:\n  development: false\n"), 0o600))

	root := newRootCmd(deps{
		newApp: func(_ context.Context, cfg config.Config, _ *zap.Logger) (Mirror, error) {
			h.cfg = cfg
			h.built = true
			return h.mirror, nil
		},
		newLogger: func(bool) (*zap.Logger, error) { return zap.NewNop(), nil },
	})
	root.SetOut(h.out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(append(args, "--config", cfgFile))
	return root.ExecuteContext(context.Background())
}

func storedReport() crawler.Report {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return crawler.Report{
		RunID:      "run-1",
		Target:     "http://example.com",
		Snapshot:   "http://web.archive.org/web/20150101000000/http://example.com/",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Stored:     7,
		Failed:     1,
		Skipped:    4,
		Items: []crawler.ItemResult{
			{URL: "http://web.archive.org/web/20150101000000/http://example.com/", Kind: crawler.KindPage,
				Path: "index.html", State: crawler.StateStored},
		},
	}
}

func TestMirrorCommand_Success(t *testing.T) {
	t.Parallel()

	// Arrange
	h := newHarness()
	h.mirror.On("Run", mock.Anything, "http://example.com").Return(storedReport(), nil).Once()
	h.mirror.On("Close", mock.Anything).Return(nil).Once()

	// Act
	err := h.execute(t, "mirror", "http://example.com",
		"--timestamp", "201501",
		"--out", "backup",
		"--manifest", "manifest.json",
		"--metrics-file", "metrics.prom",
		"--max-depth", "2",
	)

	// Assert
	require.NoError(t, err)
	h.mirror.AssertExpectations(t)
	assert.Equal(t, "201501", h.cfg.Mirror.Timestamp)
	assert.Equal(t, "backup", h.cfg.Mirror.OutputDir)
	assert.Equal(t, "manifest.json", h.cfg.Mirror.Manifest)
	assert.Equal(t, "metrics.prom", h.cfg.Metrics.Textfile)
	assert.Equal(t, 2, h.cfg.Mirror.MaxDepth)
	assert.Equal(t, config.ProviderLocal, h.cfg.Storage.Provider)
	assert.Contains(t, h.out.String(), "Backup:   backup")
	assert.Contains(t, h.out.String(), "Stored 7, failed 1, skipped 4 in 1.5s")
}

func TestMirrorCommand_DefaultsWithoutFlags(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.mirror.On("Run", mock.Anything, "http://example.com").Return(storedReport(), nil)
	h.mirror.On("Close", mock.Anything).Return(nil)

	require.NoError(t, h.execute(t, "mirror", "http://example.com"))
	assert.Equal(t, "website_backup", h.cfg.Mirror.OutputDir)
	assert.Empty(t, h.cfg.Mirror.Timestamp)
	assert.True(t, h.cfg.Mirror.CrossOriginAssets)
}

func TestMirrorCommand_NoSnapshot(t *testing.T) {
	t.Parallel()

	h := newHarness()
	notFound := fmt.Errorf("run mirror: %w", crawler.ErrSnapshotNotFound)
	h.mirror.On("Run", mock.Anything, "http://example.com").Return(crawler.Report{RunID: "run-1"}, notFound)
	h.mirror.On("Close", mock.Anything).Return(nil).Once()

	err := h.execute(t, "mirror", "http://example.com", "--timestamp", "1990")

	require.Error(t, err)
	assert.True(t, errors.Is(err, crawler.ErrSnapshotNotFound))
	assert.Equal(t, "No snapshot found for the specified date\n", h.out.String())
	h.mirror.AssertExpectations(t)
}

func TestMirrorCommand_RootNotStored(t *testing.T) {
	t.Parallel()

	h := newHarness()
	report := storedReport()
	report.Items[0].State = crawler.StateFailed
	h.mirror.On("Run", mock.Anything, "http://example.com").Return(report, nil)
	h.mirror.On("Close", mock.Anything).Return(nil)

	err := h.execute(t, "mirror", "http://example.com")

	require.ErrorIs(t, err, errRootNotMirrored)
	assert.Contains(t, h.out.String(), "Stored 7")
}

func TestMirrorCommand_CloseErrorSurfaces(t *testing.T) {
	t.Parallel()

	h := newHarness()
	closeErr := errors.New("flush failed")
	h.mirror.On("Run", mock.Anything, "http://example.com").Return(storedReport(), nil)
	h.mirror.On("Close", mock.Anything).Return(closeErr)

	err := h.execute(t, "mirror", "http://example.com")

	require.ErrorIs(t, err, closeErr)
}

func TestMirrorCommand_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing target", args: []string{"mirror"}},
		{name: "bad timestamp", args: []string{"mirror", "http://example.com", "--timestamp", "Jan2015"}},
		{name: "unknown store", args: []string{"mirror", "http://example.com", "--store", "s3"}},
		{name: "gcs without bucket", args: []string{"mirror", "http://example.com", "--store", "gcs"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness()

			err := h.execute(t, tt.args...)

			require.Error(t, err)
			assert.False(t, h.built, "app must not be built on invalid input")
		})
	}
}

func TestDestination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"local", config.Config{Storage: config.StorageConfig{Provider: config.ProviderLocal},
			Mirror: config.MirrorConfig{OutputDir: "site"}}, "site"},
		{"gcs", config.Config{Storage: config.StorageConfig{Provider: config.ProviderGCS, GCSBucket: "b"}}, "gs://b"},
		{"gcs prefix", config.Config{Storage: config.StorageConfig{Provider: config.ProviderGCS,
			GCSBucket: "b", Prefix: "mirrors"}}, "gs://b/mirrors"},
		{"memory", config.Config{Storage: config.StorageConfig{Provider: config.ProviderMemory}}, "memory (discarded)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, destination(tt.cfg))
		})
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out := new(bytes.Buffer)
	root := newRootCmd(defaultDeps())
	root.SetOut(out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "wayback-mirror ")
}
