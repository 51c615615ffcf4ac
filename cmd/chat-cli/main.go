// Command chat-cli normalizes a local file and, given a prompt or an audio
// clip, runs one chat turn against Gemini.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/room4-2/gemini-chat/audio"
	"github.com/room4-2/gemini-chat/chat"
	"github.com/room4-2/gemini-chat/config"
	"github.com/room4-2/gemini-chat/gemini"
	"github.com/room4-2/gemini-chat/ingest"
	"github.com/room4-2/gemini-chat/log"
	"github.com/room4-2/gemini-chat/prompts"
	"github.com/room4-2/gemini-chat/session"
)

func main() {
	file := flag.String("file", "", "file to attach to the turn")
	prompt := flag.String("prompt", "", "typed prompt")
	audioPath := flag.String("audio", "", "mp3 or wav clip to transcribe and send")
	model := flag.String("model", "", "model name (default from DEFAULT_MODEL)")
	preview := flag.Int("preview", 500, "characters of normalized text to print")
	timeout := flag.Duration("timeout", 2*time.Minute, "deadline for the remote calls")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	sess := session.New("cli-"+time.Now().Format("150405"), session.DefaultGenerationConfig(cfg), cfg.MaxBufferSize)
	if *model != "" {
		gen := sess.Config()
		gen.Model = *model
		if _, err := sess.SetConfig(gen); err != nil {
			log.Fatalf("%v", err)
		}
	}

	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", *file, err)
		}
		content, err := ingest.Normalize(ingest.Artifact{Name: filepath.Base(*file), Data: data})
		sess.SetContent(content)
		if err != nil {
			reason, _ := content.Reason()
			log.Warnf("⚠️ %s", reason)
		} else {
			fmt.Printf("📎 %s (%s)\n%s\n", *file, content.Kind(), content.Preview(*preview))
		}
	}

	if *prompt == "" && *audioPath == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, gemini.WithTranscriptionModel(cfg.TranscriptionModel))
	if err != nil {
		log.Fatalf("Failed to create Gemini client: %v", err)
	}
	transcriber := audio.NewTranscriber(client, cfg.TempDir, prompts.MustLoad().Transcription.Instruction)
	svc := chat.NewService(client, transcriber)

	var out chat.Outcome
	if *audioPath != "" {
		data, err := os.ReadFile(*audioPath)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", *audioPath, err)
		}
		clip := audio.Clip{Data: data, Origin: audio.OriginUpload, Filename: filepath.Base(*audioPath)}
		out = svc.HandleAudio(ctx, sess, clip)
	} else {
		out = svc.HandleText(ctx, sess, *prompt)
	}

	if out.Transcript != "" {
		fmt.Printf("%s%s\n", chat.AudioPrefix, out.Transcript)
	}
	if out.State == chat.Errored {
		fmt.Fprintln(os.Stderr, out.UserMessage)
		os.Exit(1)
	}
	fmt.Printf("🤖 %s\n", out.Reply)
}
