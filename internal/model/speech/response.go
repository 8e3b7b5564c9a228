package speech

// TranscriptionResponse 语音转写结果
type TranscriptionResponse struct {
	Text string `json:"text"`
}

// KeyCheckResponse API Key 校验结果
type KeyCheckResponse struct {
	IsValid bool   `json:"isValid"`
	Message string `json:"message"`
}

// EventType 录音 websocket 下行事件类型
type EventType string

const (
	EventState      EventType = "state"
	EventElapsed    EventType = "elapsed"
	EventTranscript EventType = "transcript"
	EventError      EventType = "error"
)

// RecorderEvent 服务端推送给录音客户端的事件
type RecorderEvent struct {
	Type    EventType `json:"type"`
	State   string    `json:"state,omitempty"`
	Seconds *int      `json:"seconds,omitempty"`
	Text    *string   `json:"text,omitempty"`
	Error   string    `json:"error,omitempty"`
}
