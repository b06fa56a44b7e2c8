package speech

import "time"

// TranscribeRequest 语音识别请求
type TranscribeRequest struct {
	Audio       []byte
	ContentType string // audio/webm, audio/wav, ...
	Language    string // en-US, zh-CN, ...
}

// Transcript 语音识别结果
type Transcript struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	RequestID  string        `json:"requestId,omitempty"`
}

// SynthesizeRequest 语音合成请求
type SynthesizeRequest struct {
	Text     string
	Voice    string  // 留空使用服务默认音色
	Language string  // en-IN, ...
	Speed    float32 // 语速倍率 0.5-2.0，0 表示默认
	Volume   float32 // 音量倍率，0 表示默认
}

// Audio 语音合成结果
type Audio struct {
	Data        []byte
	Format      string // mp3
	ContentType string // audio/mpeg
	Duration    time.Duration
	RequestID   string
}
