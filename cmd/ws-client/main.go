// Command ws-client streams a recording or a typed prompt to the chat
// server's /ws endpoint and prints the pushed messages.
package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-audio/wav"
	"github.com/gorilla/websocket"

	"github.com/room4-2/gemini-chat/audio"
	"github.com/room4-2/gemini-chat/log"
	"github.com/room4-2/gemini-chat/messages"
)

// 100ms of 16 kHz mono PCM16.
const chunkSize = 3200

type serverMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "WebSocket server URL")
	audioFile := flag.String("file", "", "audio file to stream (raw PCM16 or WAV)")
	text := flag.String("text", "", "send a typed prompt instead of audio")
	timeout := flag.Duration("timeout", 60*time.Second, "how long to wait for the reply")
	flag.Parse()

	if *audioFile == "" && *text == "" {
		log.Fatal("one of -file or -text is required")
	}

	log.Infof("🔌 Connecting to %s...", *serverURL)
	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	go readPushes(conn, done)

	if *text != "" {
		sendJSON(conn, messages.TypeClientText, messages.TextPayload{Text: *text})
	} else {
		pcm, err := loadPCM(*audioFile)
		if err != nil {
			log.Fatalf("Failed to load audio: %v", err)
		}
		streamPCM(conn, pcm)
		sendJSON(conn, messages.TypeClientControl, messages.ControlPayload{Action: messages.ActionEndTurn})
	}

	select {
	case <-done:
	case <-interrupt:
		log.Info("👋 Interrupted, closing...")
	case <-time.After(*timeout):
		log.Warn("⏰ Timeout waiting for response")
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func sendJSON(conn *websocket.Conn, msgType string, payload any) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		log.Fatalf("encode payload: %v", err)
	}
	data, err := sonic.Marshal(messages.ClientMessage{Type: msgType, Payload: body})
	if err != nil {
		log.Fatalf("encode message: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Fatalf("Send error: %v", err)
	}
}

// streamPCM sends pcm in real-time sized chunks.
func streamPCM(conn *websocket.Conn, pcm []byte) {
	total := (len(pcm) + chunkSize - 1) / chunkSize
	for i := 0; i < len(pcm); i += chunkSize {
		end := min(i+chunkSize, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[i:end]); err != nil {
			log.Errorf("Send error: %v", err)
			return
		}
		log.Debugf("📤 Sent chunk %d/%d (%d bytes)", i/chunkSize+1, total, end-i)
		time.Sleep(100 * time.Millisecond)
	}
	log.Infof("✅ Streamed %d bytes of audio", len(pcm))
}

// readPushes prints server messages until the turn completes or fails.
func readPushes(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("Read error: %v", err)
			return
		}
		var msg serverMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			log.Warnf("Parse error: %v", err)
			continue
		}

		switch msg.Type {
		case messages.TypeText:
			var p messages.TextResponsePayload
			_ = sonic.Unmarshal(msg.Payload, &p)
			fmt.Printf("🤖 %s\n", p.Text)
		case messages.TypeTranscript:
			var p messages.TextResponsePayload
			_ = sonic.Unmarshal(msg.Payload, &p)
			fmt.Printf("🎤 %s\n", p.Text)
		case messages.TypeStatus:
			var p messages.StatusPayload
			_ = sonic.Unmarshal(msg.Payload, &p)
			log.Infof("📊 Status: %s %s", p.Status, p.Message)
			if p.Status == messages.StatusTurnComplete {
				return
			}
		case messages.TypeError:
			var p messages.ErrorPayload
			_ = sonic.Unmarshal(msg.Payload, &p)
			log.Errorf("❌ %s: %s", p.Code, p.Message)
			return
		}
	}
}

// loadPCM returns 16-bit little-endian mono samples from a WAV or raw file.
func loadPCM(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !audio.IsRIFF(data) {
		return data, nil
	}

	d := wav.NewDecoder(bytes.NewReader(data))
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if d.BitDepth != 16 || d.NumChans != 1 {
		return nil, fmt.Errorf("need 16-bit mono wav, got %d-bit %d channel(s)", d.BitDepth, d.NumChans)
	}
	if d.SampleRate != audio.PCMSampleRate {
		log.Warnf("⚠️ %s is %d Hz, server expects %d Hz", path, d.SampleRate, audio.PCMSampleRate)
	}

	out := make([]byte, 2*len(buf.Data))
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s)))
	}
	return out, nil
}
