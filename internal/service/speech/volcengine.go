package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vibe-companion/backend/internal/logging"
	speechmodel "github.com/vibe-companion/backend/internal/model/speech"
)

const (
	volcASRURL = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"
	volcTTSURL = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

	asrChunkSize = 6400 // 16kHz 16bit mono, 200ms
)

var errResourceMismatch = errors.New("resource ID is mismatched with speaker related resource")

// VolcengineOptions configures the Volcengine speech provider.
type VolcengineOptions struct {
	AppID          string
	AccessToken    string
	ConcurrentMode bool
	ASRLanguage    string
	TTSVoice       string
	TTSSpeed       float32
	TTSVolume      float32
	Timeout        time.Duration
}

// Volcengine calls Volcengine ASR and TTS over the binary socket protocol.
type Volcengine struct {
	opts   VolcengineOptions
	dialer *websocket.Dialer
	asrURL string
	ttsURL string
}

// NewVolcengineProvider validates credentials and returns a provider.
func NewVolcengineProvider(opts VolcengineOptions) (*Provider, error) {
	if strings.TrimSpace(opts.AppID) == "" || strings.TrimSpace(opts.AccessToken) == "" {
		return nil, fmt.Errorf("volcengine speech requires SPEECH_APP_ID and SPEECH_ACCESS_TOKEN")
	}
	v := newVolcengine(opts, volcASRURL, volcTTSURL)
	return &Provider{Name: "volcengine", Transcriber: v, Synthesizer: v}, nil
}

func newVolcengine(opts VolcengineOptions, asrURL, ttsURL string) *Volcengine {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts.Timeout = timeout
	return &Volcengine{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: timeout},
		asrURL: asrURL,
		ttsURL: ttsURL,
	}
}

func (v *Volcengine) header(resourceID, connectID string) http.Header {
	h := http.Header{}
	h.Set("X-Api-App-Key", v.opts.AppID)
	h.Set("X-Api-Access-Key", v.opts.AccessToken)
	h.Set("X-Api-Resource-Id", resourceID)
	h.Set("X-Api-Connect-Id", connectID)
	return h
}

type asrAudioParams struct {
	Language string `json:"language,omitempty"`
	Format   string `json:"format"`
	Codec    string `json:"codec,omitempty"`
	Rate     int    `json:"rate,omitempty"`
	Bits     int    `json:"bits,omitempty"`
	Channel  int    `json:"channel,omitempty"`
}

type asrRequestParams struct {
	ModelName      string `json:"model_name"`
	EnableITN      bool   `json:"enable_itn,omitempty"`
	EnablePunc     bool   `json:"enable_punc,omitempty"`
	ShowUtterances bool   `json:"show_utterances,omitempty"`
	ResultType     string `json:"result_type,omitempty"`
}

type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio   asrAudioParams   `json:"audio"`
	Request asrRequestParams `json:"request"`
}

type asrServerMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  struct {
		Text string `json:"text"`
	} `json:"result"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info"`
}

// Transcribe streams the recording in fixed-size gzip frames and waits for
// the final result.
func (v *Volcengine) Transcribe(ctx context.Context, req speechmodel.TranscribeRequest) (*speechmodel.Transcript, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("no audio data to send")
	}
	ctx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	defer cancel()

	resourceID := "volc.bigasr.sauc.duration"
	if v.opts.ConcurrentMode {
		resourceID = "volc.bigasr.sauc.concurrent"
	}
	connectID := uuid.NewString()

	conn, resp, err := v.dialer.DialContext(ctx, v.asrURL, v.header(resourceID, connectID))
	if err != nil {
		return nil, fmt.Errorf("connect ASR websocket: %w", err)
	}
	defer conn.Close()
	logger := logging.FromContext(ctx)
	if resp != nil {
		logger.Debug("volcengine asr connected", slog.String("logid", resp.Header.Get("X-Tt-Logid")))
	}

	language := req.Language
	if language == "" {
		language = v.opts.ASRLanguage
	}
	var body asrRequest
	body.User.UID = connectID
	body.Audio = asrAudioParams{Language: language, Format: inferAudioFormat(req.ContentType), Rate: 16000, Bits: 16, Channel: 1}
	switch body.Audio.Format {
	case "webm", "ogg":
		body.Audio.Format, body.Audio.Codec = "ogg", "opus"
	case "pcm":
		body.Audio.Codec = "raw"
	}
	body.Request = asrRequestParams{ModelName: "bigmodel", EnableITN: true, EnablePunc: true, ShowUtterances: true, ResultType: "full"}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal ASR request: %w", err)
	}
	if err := writeFrame(conn, payload, gzipCompression, newFullClientRequest); err != nil {
		return nil, fmt.Errorf("send ASR request: %w", err)
	}

	sendErr := make(chan error, 1)
	go func() { sendErr <- sendAudioFrames(ctx, conn, req.Audio) }()

	var result asrServerMessage
	for {
		select {
		case err := <-sendErr:
			if err != nil {
				return nil, fmt.Errorf("send audio: %w", err)
			}
			sendErr = nil
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read ASR response: %w", err)
		}
		f, err := decodeFrame(data)
		if err != nil {
			return nil, fmt.Errorf("decode ASR frame: %w", err)
		}
		payload, err := decompressPayload(f.payload, f.header.compression)
		if err != nil {
			return nil, fmt.Errorf("decompress ASR payload: %w", err)
		}

		switch f.header.kind {
		case errorMessage:
			return nil, fmt.Errorf("ASR error %d: %s", f.errorCode, string(payload))
		case fullServerResponse:
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &result); err != nil {
					return nil, fmt.Errorf("unmarshal ASR result: %w", err)
				}
				if result.Code != 0 && result.Code != 1000 {
					return nil, fmt.Errorf("ASR API error %d: %s", result.Code, result.Message)
				}
			}
			if f.isLast() {
				return &speechmodel.Transcript{
					Text:      strings.TrimSpace(result.Result.Text),
					Duration:  time.Duration(result.AudioInfo.Duration) * time.Millisecond,
					RequestID: connectID,
				}, nil
			}
		}
	}
}

func sendAudioFrames(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	// The full client request takes sequence 1; audio starts at 2.
	seq := int32(2)
	for i := 0; i < len(audio); i += asrChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(i+asrChunkSize, len(audio))
		packed, err := compressPayload(audio[i:end], gzipCompression)
		if err != nil {
			return err
		}
		f := newAudioRequest(packed, seq, end >= len(audio), gzipCompression)
		if err := conn.WriteMessage(websocket.BinaryMessage, f.encode()); err != nil {
			return err
		}
		seq++
	}
	return nil
}

func writeFrame(conn *websocket.Conn, payload []byte, c compression, build func([]byte, compression) *frame) error {
	packed, err := compressPayload(payload, c)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, build(packed, c).encode())
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

type ttsServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition"`
}

// Synthesize tries each resource id compatible with the voice until one
// accepts the speaker.
func (v *Volcengine) Synthesize(ctx context.Context, req speechmodel.SynthesizeRequest) (*speechmodel.Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	ctx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	defer cancel()

	speaker := strings.TrimSpace(req.Voice)
	if speaker == "" {
		speaker = v.opts.TTSVoice
	}

	var lastErr error
	for _, resourceID := range ttsResourceCandidates(speaker) {
		audio, err := v.synthesizeWith(ctx, req, speaker, resourceID)
		if err == nil {
			return audio, nil
		}
		if !errors.Is(err, errResourceMismatch) {
			return nil, err
		}
		logging.FromContext(ctx).Warn("volcengine tts resource mismatch",
			slog.String("speaker", speaker), slog.String("resource", resourceID))
		lastErr = err
	}
	return nil, fmt.Errorf("TTS synthesis failed for speaker %s: %w", speaker, lastErr)
}

func (v *Volcengine) synthesizeWith(ctx context.Context, req speechmodel.SynthesizeRequest, speaker, resourceID string) (*speechmodel.Audio, error) {
	connectID := uuid.NewString()
	conn, _, err := v.dialer.DialContext(ctx, v.ttsURL, v.header(resourceID, connectID))
	if err != nil {
		return nil, fmt.Errorf("connect TTS websocket: %w", err)
	}
	defer conn.Close()

	var body ttsRequest
	body.User.UID = connectID
	body.ReqParams.Speaker = speaker
	body.ReqParams.Text = req.Text
	body.ReqParams.AudioParams = ttsAudioParams{Format: "mp3", SampleRate: 24000}
	if speed := firstPositive(req.Speed, v.opts.TTSSpeed); speed > 0 && speed != 1 {
		body.ReqParams.AudioParams.SpeedRatio = speed
	}
	if volume := firstPositive(req.Volume, v.opts.TTSVolume); volume > 0 && volume != 1 {
		body.ReqParams.AudioParams.VolumeRatio = volume
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal TTS request: %w", err)
	}
	if err := writeFrame(conn, payload, noCompression, newFullClientRequest); err != nil {
		return nil, fmt.Errorf("send TTS request: %w", err)
	}

	var (
		audio    bytes.Buffer
		duration time.Duration
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read TTS response: %w", err)
		}
		f, err := decodeFrame(data)
		if err != nil {
			return nil, fmt.Errorf("decode TTS frame: %w", err)
		}
		payload, err := decompressPayload(f.payload, f.header.compression)
		if err != nil {
			return nil, fmt.Errorf("decompress TTS payload: %w", err)
		}

		switch f.header.kind {
		case errorMessage:
			if strings.Contains(string(payload), errResourceMismatch.Error()) {
				return nil, errResourceMismatch
			}
			return nil, fmt.Errorf("TTS error %d: %s", f.errorCode, string(payload))

		case audioOnlyServerResponse:
			audio.Write(payload)
			if f.isLast() {
				return finishTTS(&audio, duration, connectID)
			}

		case fullServerResponse:
			var msg ttsServerMessage
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &msg); err != nil {
					return nil, fmt.Errorf("unmarshal TTS response: %w", err)
				}
				if msg.Code != 0 && msg.Code != 3000 {
					if strings.Contains(msg.Message, errResourceMismatch.Error()) {
						return nil, errResourceMismatch
					}
					return nil, fmt.Errorf("TTS API error %d: %s", msg.Code, msg.Message)
				}
				if ms, err := strconv.ParseInt(msg.Addition.Duration, 10, 64); err == nil {
					duration = time.Duration(ms) * time.Millisecond
				}
				if msg.Data != "" {
					chunk, err := base64.StdEncoding.DecodeString(msg.Data)
					if err != nil {
						return nil, fmt.Errorf("decode base64 audio chunk: %w", err)
					}
					audio.Write(chunk)
				}
			}
			finishedByEvent := f.hasEvent() && f.event == eventSessionFinished
			if finishedByEvent || f.isLast() || msg.Sequence < 0 {
				return finishTTS(&audio, duration, connectID)
			}
		}
	}
}

func finishTTS(audio *bytes.Buffer, duration time.Duration, requestID string) (*speechmodel.Audio, error) {
	if audio.Len() == 0 {
		return nil, fmt.Errorf("TTS audio is empty")
	}
	return &speechmodel.Audio{
		Data:        audio.Bytes(),
		Format:      "mp3",
		ContentType: "audio/mpeg",
		Duration:    duration,
		RequestID:   requestID,
	}, nil
}

// ttsResourceCandidates lists resource ids that may serve voice, best first.
func ttsResourceCandidates(voice string) []string {
	const (
		defaultResource = "volc.service_type.10029"
		megaResource    = "volc.megatts.default"
		seedResource    = "seed-tts-2.0"
	)
	if strings.HasPrefix(voice, "S_") {
		return []string{megaResource}
	}
	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "jupiter", "uranus", "venus", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{seedResource, defaultResource}
		}
	}
	return []string{defaultResource, seedResource}
}

func firstPositive(values ...float32) float32 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
