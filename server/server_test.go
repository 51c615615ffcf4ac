package server

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/gemini-chat/audio"
	"github.com/room4-2/gemini-chat/chat"
	"github.com/room4-2/gemini-chat/config"
	"github.com/room4-2/gemini-chat/gemini"
	"github.com/room4-2/gemini-chat/knowledge"
	"github.com/room4-2/gemini-chat/messages"
	"github.com/room4-2/gemini-chat/session"
)

type mockGenerator struct{ mock.Mock }

func (m *mockGenerator) Generate(ctx context.Context, req gemini.Request) (*gemini.Reply, error) {
	args := m.Called(ctx, req)
	reply, _ := args.Get(0).(*gemini.Reply)
	return reply, args.Error(1)
}

type mockTranscriber struct{ mock.Mock }

func (m *mockTranscriber) Transcribe(ctx context.Context, clip audio.Clip) (string, bool) {
	args := m.Called(ctx, clip)
	return args.String(0), args.Bool(1)
}

type testEnv struct {
	server   *httptest.Server
	sessions *session.Manager
	gen      *mockGenerator
	stt      *mockTranscriber
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Port:               0,
		MaxSessions:        4,
		SessionTimeout:     time.Minute,
		AllowedOrigins:     []string{"*"},
		MaxBufferSize:      64,
		MaxUploadSize:      1 << 20,
		DefaultModel:       config.DefaultModelName,
		DefaultTemperature: config.DefaultTemperature,
		DefaultMaxTokens:   config.DefaultMaxTokens,
	}
	sessions := session.NewManagerWithRedis(cfg, nil)
	kb, err := knowledge.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	env := &testEnv{sessions: sessions, gen: &mockGenerator{}, stt: &mockTranscriber{}}
	srv := New(cfg, sessions, chat.NewService(env.gen, env.stt), kb)
	env.server = httptest.NewServer(srv.Handler())
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	resp, err := http.Post(e.server.URL+"/api/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body sessionResponse
	decodeBody(t, resp, &body)
	require.NotEmpty(t, body.SessionID)
	return body.SessionID
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.NoError(t, sonic.Unmarshal(buf.Bytes(), v), buf.String())
}

func postFile(t *testing.T, url, name string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func doJSON(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.createSession(t)

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["sessions"])
}

func TestSession_NotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/sessions/missing/messages")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body errorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, messages.ErrCodeSessionNotFound, body.Code)
}

func TestSession_Delete(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	resp := doJSON(t, http.MethodDelete, env.server.URL+"/api/sessions/"+id, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, env.sessions.GetActiveSessionCount())
}

func TestConfig_PutAndGet(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)
	base := env.server.URL + "/api/sessions/" + id + "/config"

	resp := doJSON(t, http.MethodPut, base, `{"model":"gemini-pro","temperature":3,"maxOutputTokens":10}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body configResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "gemini-pro", body.Config.Model)
	assert.Equal(t, config.MaxTemperature, body.Config.Temperature)
	assert.Equal(t, config.MinMaxTokens, body.Config.MaxOutputTokens)
	assert.Len(t, body.Models, len(config.Models))

	bad := doJSON(t, http.MethodPut, base, `{"model":"gpt-4"}`)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	got, err := http.Get(base)
	require.NoError(t, err)
	defer got.Body.Close()
	var current configResponse
	decodeBody(t, got, &current)
	assert.Equal(t, "gemini-pro", current.Config.Model)
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)
	url := env.server.URL + "/api/sessions/" + id + "/upload"

	t.Run("text", func(t *testing.T) {
		resp := postFile(t, url, "notes.txt", []byte("hello world"))
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body uploadResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, "text", body.Kind)
		assert.Equal(t, "hello world", body.Preview)
	})

	t.Run("unsupported", func(t *testing.T) {
		resp := postFile(t, url, "setup.exe", []byte{0x4d, 0x5a})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})

	t.Run("corrupt image", func(t *testing.T) {
		resp := postFile(t, url, "photo.png", []byte("not a png"))
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		var body uploadResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, "error", body.Kind)
		assert.True(t, strings.HasPrefix(body.Error, "Error decoding image: "), body.Error)
	})
}

func TestChat_Rendered(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	env.gen.On("Generate", mock.Anything, mock.MatchedBy(func(req gemini.Request) bool {
		return req.Parts[0].Text == "hi"
	})).Return(&gemini.Reply{Text: "hello!"}, nil).Once()

	resp := doJSON(t, http.MethodPost, env.server.URL+"/api/sessions/"+id+"/chat", `{"message":"hi"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	decodeBody(t, resp, &out)
	assert.Equal(t, "rendered", out["state"])
	assert.Equal(t, "hello!", out["reply"])

	msgs, err := http.Get(env.server.URL + "/api/sessions/" + id + "/messages")
	require.NoError(t, err)
	defer msgs.Body.Close()
	var ledger messagesResponse
	decodeBody(t, msgs, &ledger)
	require.Len(t, ledger.Messages, 2)
	assert.Equal(t, session.RoleAssistant, ledger.Messages[1].Role)
	env.gen.AssertExpectations(t)
}

func TestChat_ImageNeedsVisionModel(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)
	base := env.server.URL + "/api/sessions/" + id

	cfg := doJSON(t, http.MethodPut, base+"/config", `{"model":"gemini-pro"}`)
	cfg.Body.Close()
	up := postFile(t, base+"/upload", "dot.png", pngBytes(t))
	up.Body.Close()
	require.Equal(t, http.StatusOK, up.StatusCode)

	resp := doJSON(t, http.MethodPost, base+"/chat", `{"message":"what is this?"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var out map[string]any
	decodeBody(t, resp, &out)
	assert.Equal(t, "errored", out["state"])
	assert.Equal(t, "Please select a vision model for images!", out["error"])
	env.gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestChat_SafetyBlock(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	env.gen.On("Generate", mock.Anything, mock.Anything).
		Return(nil, &gemini.SafetyBlockError{Reason: "SAFETY"}).Once()

	resp := doJSON(t, http.MethodPost, env.server.URL+"/api/sessions/"+id+"/chat", `{"message":"hi"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var out map[string]any
	decodeBody(t, resp, &out)
	assert.Equal(t, "The response was blocked for safety reasons: SAFETY", out["error"])
}

func TestAudioUpload(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)
	url := env.server.URL + "/api/sessions/" + id + "/audio"

	env.stt.On("Transcribe", mock.Anything, mock.MatchedBy(func(c audio.Clip) bool {
		return c.Origin == audio.OriginUpload && c.Filename == "voice.mp3"
	})).Return("nanga def", true).Once()
	env.gen.On("Generate", mock.Anything, mock.Anything).Return(&gemini.Reply{Text: "maa ngi fi"}, nil).Once()

	resp := postFile(t, url, "voice.mp3", []byte("ID3fake"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	decodeBody(t, resp, &out)
	assert.Equal(t, "nanga def", out["transcript"])
	assert.Equal(t, "maa ngi fi", out["reply"])

	ogg := postFile(t, url, "voice.ogg", []byte("OggS"))
	defer ogg.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, ogg.StatusCode)
}

func TestKnowledge(t *testing.T) {
	env := newTestEnv(t)
	url := env.server.URL + "/api/knowledge"

	resp := postFile(t, url, "faq.txt", []byte("Opening hours: 9 to 5"))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	csv := postFile(t, url, "data.csv", []byte("a,b"))
	csv.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, csv.StatusCode)

	list, err := http.Get(url)
	require.NoError(t, err)
	defer list.Body.Close()
	var docs []knowledge.Document
	decodeBody(t, list, &docs)
	require.Len(t, docs, 1)
	assert.Equal(t, "faq.txt", docs[0].Name)

	doc, err := http.Get(url + "/faq.txt")
	require.NoError(t, err)
	defer doc.Body.Close()
	var got knowledge.Document
	decodeBody(t, doc, &got)
	assert.Equal(t, "Opening hours: 9 to 5", got.Content)

	missing, err := http.Get(url + "/nope.txt")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func dialWS(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireMessage struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Payload   map[string]any `json:"payload"`
}

func readWire(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg wireMessage
	require.NoError(t, sonic.Unmarshal(data, &msg))
	return msg
}

func TestWebSocket_PingAndText(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env, "")

	hello := readWire(t, conn)
	assert.Equal(t, messages.TypeStatus, hello.Type)
	assert.Equal(t, messages.StatusConnected, hello.Payload["status"])
	assert.Equal(t, 1, env.sessions.GetActiveSessionCount())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"control","payload":{"action":"ping"}}`)))
	assert.Equal(t, messages.StatusPong, readWire(t, conn).Payload["status"])

	env.gen.On("Generate", mock.Anything, mock.Anything).Return(&gemini.Reply{Text: "pong!"}, nil).Once()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"text","payload":{"text":"ping?"}}`)))

	assert.Equal(t, messages.StatusProcessing, readWire(t, conn).Payload["status"])
	reply := readWire(t, conn)
	assert.Equal(t, messages.TypeText, reply.Type)
	assert.Equal(t, "pong!", reply.Payload["text"])
	assert.Equal(t, messages.StatusTurnComplete, readWire(t, conn).Payload["status"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	bad := readWire(t, conn)
	assert.Equal(t, messages.TypeError, bad.Type)
	assert.Equal(t, messages.ErrCodeInvalidMessage, bad.Payload["code"])
}

func TestWebSocket_AudioTurn(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env, "")
	readWire(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"control","payload":{"action":"end_turn"}}`)))
	empty := readWire(t, conn)
	assert.Equal(t, messages.ErrCodeEmptyAudio, empty.Payload["code"])

	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	env.stt.On("Transcribe", mock.Anything, mock.MatchedBy(func(c audio.Clip) bool {
		return c.Origin == audio.OriginMicrophone && bytes.Equal(c.Data, pcm)
	})).Return("salaam", true).Once()
	env.gen.On("Generate", mock.Anything, mock.Anything).Return(&gemini.Reply{Text: "aleikum salaam"}, nil).Once()

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pcm))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"control","payload":{"action":"end_turn"}}`)))

	assert.Equal(t, messages.StatusProcessing, readWire(t, conn).Payload["status"])
	transcript := readWire(t, conn)
	assert.Equal(t, messages.TypeTranscript, transcript.Type)
	assert.Equal(t, "salaam", transcript.Payload["text"])
	assert.Equal(t, "aleikum salaam", readWire(t, conn).Payload["text"])
	assert.Equal(t, messages.StatusTurnComplete, readWire(t, conn).Payload["status"])

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 128)))
	full := readWire(t, conn)
	assert.Equal(t, messages.ErrCodeBufferFull, full.Payload["code"])
}

func TestWebSocket_AttachAndDisconnect(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	conn := dialWS(t, env, "?sessionId="+id)
	hello := readWire(t, conn)
	assert.Equal(t, id, hello.SessionID)
	conn.Close()

	// An attached session outlives its connection.
	time.Sleep(50 * time.Millisecond)
	_, ok := env.sessions.GetSession(id)
	assert.True(t, ok)

	other := dialWS(t, env, "?sessionId=unknown")
	rejected := readWire(t, other)
	assert.Equal(t, messages.ErrCodeSessionNotFound, rejected.Payload["code"])
}

func TestWebSocket_OwnedSessionRemovedOnClose(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env, "")
	readWire(t, conn)
	require.Equal(t, 1, env.sessions.GetActiveSessionCount())

	conn.Close()
	assert.Eventually(t, func() bool {
		return env.sessions.GetActiveSessionCount() == 0
	}, 2*time.Second, 20*time.Millisecond)
}
