package logger

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedFileWriter_Write(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "test.log")

	writer, err := NewBufferedFileWriter(logPath, WithFlushInterval(time.Hour))
	require.NoError(t, err)
	defer func() { _ = writer.Close() }()

	testData := "device invalidated\n"
	n, err := writer.Write([]byte(testData))
	require.NoError(t, err)
	assert.Equal(t, len(testData), n)
	assert.Positive(t, writer.Buffered())

	require.NoError(t, writer.Flush())
	assert.Equal(t, 0, writer.Buffered())

	content, err := os.ReadFile(logPath) //nolint:gosec // test file path from t.TempDir()
	require.NoError(t, err)
	assert.Equal(t, testData, string(content))
}

func TestBufferedFileWriter_AutoFlush(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "autoflush.log")

	writer, err := NewBufferedFileWriter(logPath, WithFlushInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer func() { _ = writer.Close() }()

	_, err = writer.Write([]byte("tick\n"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		content, readErr := os.ReadFile(logPath) //nolint:gosec // test file path from t.TempDir()
		return readErr == nil && string(content) == "tick\n"
	}, time.Second, 10*time.Millisecond)
}

func TestBufferedFileWriter_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	writer, err := NewBufferedFileWriter(filepath.Join(t.TempDir(), "close.log"))
	require.NoError(t, err)

	require.NoError(t, writer.Close())
	require.NoError(t, writer.Close())

	_, err = writer.Write([]byte("late"))
	require.Error(t, err)
}

func TestBufferedFileWriter_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	writer, err := NewBufferedFileWriter(logPath, WithBufferSize(64))
	require.NoError(t, err)

	const writers, lines = 8, 50
	var wg sync.WaitGroup
	for range writers {
		wg.Go(func() {
			for range lines {
				_, _ = writer.Write([]byte("x\n"))
			}
		})
	}
	wg.Wait()
	require.NoError(t, writer.Close())

	content, err := os.ReadFile(logPath) //nolint:gosec // test file path from t.TempDir()
	require.NoError(t, err)
	assert.Len(t, content, writers*lines*2)
}
