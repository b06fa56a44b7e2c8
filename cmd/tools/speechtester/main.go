package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vibe-companion/backend/internal/config"
	speechmodel "github.com/vibe-companion/backend/internal/model/speech"
	"github.com/vibe-companion/backend/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: asr 或 tts")
	audioPath := flag.String("audio", "", "ASR 输入音频文件路径")
	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "TTS 输出音频文件路径 (默认自动生成)")
	contentType := flag.String("type", "", "ASR 输入 MIME 类型，默认按扩展名推断")
	language := flag.String("lang", "", "语言代码，默认使用配置中的语言")
	voice := flag.String("voice", "", "TTS 声音 ID，默认使用配置中的音色")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if *mode != "asr" && *mode != "tts" {
		flag.Usage()
		log.Fatal("请通过 -mode=asr 或 -mode=tts 指定测试模式")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	provider, err := speech.NewProvider(ctx, cfg.Speech)
	if err != nil {
		log.Fatalf("语音服务初始化失败: %v", err)
	}
	if provider == nil {
		log.Fatal("语音服务未启用，请配置 SPEECH_PROVIDER 及相应凭证")
	}
	defer provider.Close()

	log.Printf("使用语音服务: %s", provider.Name)

	switch *mode {
	case "asr":
		runASR(ctx, provider, cfg.Speech, *audioPath, *contentType, *language)
	case "tts":
		runTTS(ctx, provider, *text, *voice, *language, *outputPath)
	}
}

func runASR(ctx context.Context, p *speech.Provider, cfg config.SpeechConfig, audioPath, contentType, language string) {
	if audioPath == "" {
		log.Fatal("ASR 模式需要通过 -audio 指定音频文件路径")
	}
	if p.Transcriber == nil {
		log.Fatalf("%s 不支持语音识别", p.Name)
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}

	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(audioPath)))
		if contentType == "" {
			contentType = "audio/webm"
		}
	}
	if language == "" {
		language = cfg.STTLanguage
	}

	log.Printf("开始进行 ASR 测试: type=%s language=%s bytes=%d", contentType, language, len(data))

	start := time.Now()
	resp, err := p.Transcriber.Transcribe(ctx, speechmodel.TranscribeRequest{
		Audio:       data,
		ContentType: contentType,
		Language:    language,
	})
	if err != nil {
		log.Fatalf("ASR 调用失败: %v", err)
	}

	log.Printf("ASR 识别成功: text=%q confidence=%.2f duration=%s elapsed=%s",
		resp.Text, resp.Confidence, resp.Duration, time.Since(start))
}

func runTTS(ctx context.Context, p *speech.Provider, text, voice, language, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}
	if p.Synthesizer == nil {
		log.Fatalf("%s 不支持语音合成", p.Name)
	}

	log.Printf("开始进行 TTS 测试: voice=%s language=%s", voice, language)

	resp, err := p.Synthesizer.Synthesize(ctx, speechmodel.SynthesizeRequest{
		Text:     speech.PlainText(text),
		Voice:    voice,
		Language: language,
	})
	if err != nil {
		log.Fatalf("TTS 调用失败: %v", err)
	}

	if outputPath == "" {
		format := resp.Format
		if format == "" {
			format = "mp3"
		}
		outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), format)
	}
	if err := os.WriteFile(outputPath, resp.Data, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	log.Printf("TTS 合成成功: 输出文件 %s, bytes=%d, 时长=%s", outputPath, len(resp.Data), resp.Duration)
}
