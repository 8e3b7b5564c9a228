package speech

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"
)

// RecorderState 录音状态
type RecorderState string

const (
	StateIdle      RecorderState = "idle"
	StateRecording RecorderState = "recording"
	StatePaused    RecorderState = "paused"
	StateStopping  RecorderState = "stopping"
)

var (
	ErrTranscribing   = errors.New("transcription in progress")
	ErrNoAudio        = errors.New("no audio data provided")
	ErrInvalidState   = errors.New("invalid recorder state")
	ErrRecorderClosed = errors.New("recorder closed")
)

// Transcriber 将完整的音频转为文本
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// RecorderOption 配置 Recorder
type RecorderOption func(*Recorder)

// WithTickInterval 覆盖计时间隔，默认一秒
func WithTickInterval(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.interval = d
		}
	}
}

// Recorder 单个录音会话的状态机：
// idle -> recording -> (paused <-> recording) -> stopping -> idle。
// 录音期间每个间隔回调一次累计秒数，其余状态下不持有计时器。
type Recorder struct {
	mu           sync.Mutex
	state        RecorderState
	transcribing bool
	closed       bool
	chunks       [][]byte
	elapsed      int

	transcriber Transcriber
	onTick      func(seconds int)
	interval    time.Duration

	ticker   *time.Ticker
	tickDone chan struct{}
}

// NewRecorder 创建空闲状态的录音会话，onTick 可为 nil
func NewRecorder(transcriber Transcriber, onTick func(seconds int), opts ...RecorderOption) *Recorder {
	r := &Recorder{
		state:       StateIdle,
		transcriber: transcriber,
		onTick:      onTick,
		interval:    time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State 返回当前状态
func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Transcribing 表示是否有转写在进行
func (r *Recorder) Transcribing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcribing
}

// Elapsed 返回本次录音累计秒数，暂停期间不计时
func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Start 开始新的录音，转写未完成时拒绝
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecorderClosed
	}
	if r.transcribing {
		return ErrTranscribing
	}
	if r.state != StateIdle {
		return ErrInvalidState
	}

	r.chunks = nil
	r.elapsed = 0
	r.state = StateRecording
	r.startTickerLocked()
	return nil
}

// Pause 暂停录音并停止计时
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return ErrInvalidState
	}
	r.stopTickerLocked()
	r.state = StatePaused
	return nil
}

// Resume 从暂停恢复录音
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecorderClosed
	}
	if r.state != StatePaused {
		return ErrInvalidState
	}
	r.state = StateRecording
	r.startTickerLocked()
	return nil
}

// Write 追加一段音频，仅在录音中接受
func (r *Recorder) Write(chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return ErrInvalidState
	}
	if len(chunk) == 0 {
		return nil
	}
	r.chunks = append(r.chunks, bytes.Clone(chunk))
	return nil
}

// Stop 结束录音，拼接已缓存的音频并同步转写。
// 无论转写成功与否，返回时状态都回到 idle。
func (r *Recorder) Stop(ctx context.Context) (string, error) {
	audio, err := r.beginStop()
	if err != nil {
		return "", err
	}
	defer r.finishStop()
	return r.transcriber.Transcribe(ctx, audio)
}

// StopAsync 与 Stop 相同，但状态切换同步完成，转写在后台进行，
// 完成后先回到 idle 再调用 done。返回错误时 done 不会被调用。
func (r *Recorder) StopAsync(ctx context.Context, done func(text string, err error)) error {
	audio, err := r.beginStop()
	if err != nil {
		return err
	}
	go func() {
		text, err := r.transcriber.Transcribe(ctx, audio)
		r.finishStop()
		done(text, err)
	}()
	return nil
}

func (r *Recorder) beginStop() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording && r.state != StatePaused {
		return nil, ErrInvalidState
	}
	r.stopTickerLocked()
	audio := bytes.Join(r.chunks, nil)
	r.chunks = nil

	if len(audio) == 0 {
		r.state = StateIdle
		return nil, ErrNoAudio
	}
	r.state = StateStopping
	r.transcribing = true
	return audio, nil
}

func (r *Recorder) finishStop() {
	r.mu.Lock()
	r.state = StateIdle
	r.transcribing = false
	r.mu.Unlock()
}

// Cancel 丢弃当前录音，空闲时无操作
func (r *Recorder) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateIdle:
		return nil
	case StateStopping:
		return ErrTranscribing
	}
	r.stopTickerLocked()
	r.chunks = nil
	r.state = StateIdle
	return nil
}

// Close 释放计时器与缓存，之后不能再开始录音
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopTickerLocked()
	r.chunks = nil
	r.closed = true
	if r.state != StateStopping {
		r.state = StateIdle
	}
}

func (r *Recorder) tickerRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticker != nil
}

func (r *Recorder) startTickerLocked() {
	r.stopTickerLocked()

	ticker := time.NewTicker(r.interval)
	done := make(chan struct{})
	r.ticker = ticker
	r.tickDone = done

	go r.tickLoop(ticker, done)
}

func (r *Recorder) stopTickerLocked() {
	if r.ticker == nil {
		return
	}
	r.ticker.Stop()
	close(r.tickDone)
	r.ticker = nil
	r.tickDone = nil
}

func (r *Recorder) tickLoop(ticker *time.Ticker, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			// 计时器可能在等锁期间被停止
			select {
			case <-done:
				r.mu.Unlock()
				return
			default:
			}
			r.elapsed++
			seconds := r.elapsed
			r.mu.Unlock()

			if r.onTick != nil {
				r.onTick(seconds)
			}
		}
	}
}
