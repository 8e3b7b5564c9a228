package speech

// ControlType 录音控制帧类型
type ControlType string

const (
	ControlStart  ControlType = "start"
	ControlPause  ControlType = "pause"
	ControlResume ControlType = "resume"
	ControlStop   ControlType = "stop"
	ControlCancel ControlType = "cancel"
)

// ControlMessage 录音 websocket 上的 JSON 控制帧，音频数据走二进制帧
type ControlMessage struct {
	Type ControlType `json:"type"`
}

// TranscribeRequest 转写中继请求，audio 为 base64 编码的 webm 音频
type TranscribeRequest struct {
	Audio string `json:"audio" validate:"required"`
}

// KeyCheckRequest 校验转写服务 API Key
type KeyCheckRequest struct {
	Key string `json:"key"`
}
