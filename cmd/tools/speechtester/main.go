package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/daybook/backend/internal/config"
	"github.com/zhouzirui/daybook/backend/internal/logger"
	"github.com/zhouzirui/daybook/backend/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: transcribe 或 key")
	audioPath := flag.String("audio", "", "待转写的音频文件路径")
	key := flag.String("key", "", "待校验的 API key，默认使用 OPENAI_API_KEY")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if *mode != "transcribe" && *mode != "key" {
		flag.Usage()
		log.Fatal("请通过 -mode=transcribe 或 -mode=key 指定测试模式")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	svc := speech.NewService(cfg.Speech, logger.New(cfg.Log, os.Stderr))
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "transcribe":
		runTranscribe(ctx, svc, *audioPath)
	case "key":
		candidate := strings.TrimSpace(*key)
		if candidate == "" {
			candidate = cfg.Speech.APIKey
		}
		runKeyCheck(ctx, svc, candidate)
	}
}

func runTranscribe(ctx context.Context, svc *speech.Service, audioPath string) {
	if !svc.Enabled() {
		log.Fatal("语音服务未启用，请先配置 OPENAI_API_KEY")
	}
	if audioPath == "" {
		log.Fatal("transcribe 模式需要通过 -audio 指定音频文件")
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("读取音频失败: %v", err)
	}
	log.Printf("[INFO] 开始转写 %s (%d bytes)", audioPath, len(audio))

	start := time.Now()
	text, err := svc.Transcribe(ctx, audio)
	if err != nil {
		log.Fatalf("转写失败: %v", err)
	}
	log.Printf("[INFO] 转写完成，耗时 %s", time.Since(start).Round(time.Millisecond))
	log.Printf("[RESULT] %s", text)
}

func runKeyCheck(ctx context.Context, svc *speech.Service, key string) {
	if key == "" {
		log.Fatal("未提供 API key，请使用 -key 或配置 OPENAI_API_KEY")
	}

	valid, err := svc.ValidateKey(ctx, key)
	if err != nil {
		log.Fatalf("校验请求失败: %v", err)
	}
	if !valid {
		log.Fatal("[RESULT] API key 无效")
	}
	log.Println("[RESULT] API key 有效")
}
