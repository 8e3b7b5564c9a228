package speech

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranscriber struct {
	gate  chan struct{}
	audio []byte
	text  string
	err   error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	f.audio = audio
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func TestRecorderLifecycle(t *testing.T) {
	tr := &fakeTranscriber{text: "went for a run"}
	r := NewRecorder(tr, nil)

	require.NoError(t, r.Start())
	assert.Equal(t, StateRecording, r.State())
	require.NoError(t, r.Write([]byte("ab")))

	require.NoError(t, r.Pause())
	assert.ErrorIs(t, r.Write([]byte("ignored")), ErrInvalidState)
	assert.ErrorIs(t, r.Pause(), ErrInvalidState)

	require.NoError(t, r.Resume())
	require.NoError(t, r.Write([]byte("cd")))

	text, err := r.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "went for a run", text)
	assert.Equal(t, "abcd", string(tr.audio))
	assert.Equal(t, StateIdle, r.State())
	assert.False(t, r.Transcribing())
}

func TestRecorderRejectsStartWhileTranscribing(t *testing.T) {
	tr := &fakeTranscriber{gate: make(chan struct{}), text: "ok"}
	r := NewRecorder(tr, nil)
	require.NoError(t, r.Start())
	require.NoError(t, r.Write([]byte("audio")))

	done := make(chan error, 1)
	go func() {
		_, err := r.Stop(context.Background())
		done <- err
	}()

	require.Eventually(t, r.Transcribing, time.Second, time.Millisecond)
	assert.Equal(t, StateStopping, r.State())
	assert.ErrorIs(t, r.Start(), ErrTranscribing)
	assert.ErrorIs(t, r.Cancel(), ErrTranscribing)

	close(tr.gate)
	require.NoError(t, <-done)
	require.NoError(t, r.Start())
}

func TestRecorderStopWithoutAudio(t *testing.T) {
	r := NewRecorder(&fakeTranscriber{}, nil)
	require.NoError(t, r.Start())

	_, err := r.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNoAudio)
	assert.Equal(t, StateIdle, r.State())
	assert.False(t, r.tickerRunning())
}

func TestRecorderStopReturnsToIdleOnFailure(t *testing.T) {
	r := NewRecorder(&fakeTranscriber{err: errors.New("boom")}, nil)
	require.NoError(t, r.Start())
	require.NoError(t, r.Write([]byte("a")))

	_, err := r.Stop(context.Background())
	assert.EqualError(t, err, "boom")
	assert.Equal(t, StateIdle, r.State())
	assert.False(t, r.Transcribing())
}

func TestRecorderTicksOnlyWhileRecording(t *testing.T) {
	var last atomic.Int64
	r := NewRecorder(&fakeTranscriber{}, func(seconds int) { last.Store(int64(seconds)) },
		WithTickInterval(5*time.Millisecond))

	require.NoError(t, r.Start())
	require.Eventually(t, func() bool { return last.Load() >= 2 }, time.Second, time.Millisecond)

	require.NoError(t, r.Pause())
	assert.False(t, r.tickerRunning())
	paused := r.Elapsed()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, paused, r.Elapsed())

	require.NoError(t, r.Resume())
	require.Eventually(t, func() bool { return r.Elapsed() > paused }, time.Second, time.Millisecond)
}

func TestRecorderStopsTickerOnEveryExit(t *testing.T) {
	opts := WithTickInterval(time.Millisecond)

	cancelled := NewRecorder(&fakeTranscriber{}, nil, opts)
	require.NoError(t, cancelled.Start())
	require.NoError(t, cancelled.Cancel())
	assert.False(t, cancelled.tickerRunning())
	assert.Equal(t, StateIdle, cancelled.State())

	stopped := NewRecorder(&fakeTranscriber{text: "x"}, nil, opts)
	require.NoError(t, stopped.Start())
	require.NoError(t, stopped.Write([]byte("a")))
	_, err := stopped.Stop(context.Background())
	require.NoError(t, err)
	assert.False(t, stopped.tickerRunning())

	closed := NewRecorder(&fakeTranscriber{}, nil, opts)
	require.NoError(t, closed.Start())
	closed.Close()
	assert.False(t, closed.tickerRunning())
	assert.ErrorIs(t, closed.Start(), ErrRecorderClosed)
}

func TestRecorderRestartResetsElapsed(t *testing.T) {
	r := NewRecorder(&fakeTranscriber{}, nil, WithTickInterval(20*time.Millisecond))
	require.NoError(t, r.Start())
	require.Eventually(t, func() bool { return r.Elapsed() > 0 }, time.Second, time.Millisecond)
	require.NoError(t, r.Cancel())

	require.NoError(t, r.Start())
	assert.LessOrEqual(t, r.Elapsed(), 1)
	r.Close()
}

func TestRecorderStopAsync(t *testing.T) {
	tr := &fakeTranscriber{gate: make(chan struct{}), text: "async"}
	r := NewRecorder(tr, nil)
	require.NoError(t, r.Start())
	require.NoError(t, r.Write([]byte("a")))

	results := make(chan string, 1)
	require.NoError(t, r.StopAsync(context.Background(), func(text string, err error) {
		assert.NoError(t, err)
		assert.Equal(t, StateIdle, r.State())
		results <- text
	}))

	// the transition happens before StopAsync returns
	assert.True(t, r.Transcribing())
	assert.ErrorIs(t, r.Start(), ErrTranscribing)

	close(tr.gate)
	assert.Equal(t, "async", <-results)
	assert.ErrorIs(t, r.StopAsync(context.Background(), nil), ErrInvalidState)
}
