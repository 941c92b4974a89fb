package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/voxchat/internal/audio"
	"github.com/raphaelgruber/voxchat/internal/auth"
	"github.com/raphaelgruber/voxchat/internal/events"
	"github.com/raphaelgruber/voxchat/internal/graph"
	"github.com/raphaelgruber/voxchat/internal/metrics"
	"github.com/raphaelgruber/voxchat/internal/models"
	"github.com/raphaelgruber/voxchat/internal/speech"
	"github.com/raphaelgruber/voxchat/internal/storage"
)

// fakeStore keeps records in memory and enforces ownership like the database.
type fakeStore struct {
	mu    sync.Mutex
	seq   int
	convs map[string]models.Conversation
	msgs  []models.Message
	perf  []models.PerformanceRecord
	// failList makes ListPerformance fail like an unreachable database.
	failList bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{convs: make(map[string]models.Conversation)}
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

func (s *fakeStore) check(ownerID, id string) error {
	c, ok := s.convs[id]
	if !ok {
		return models.ErrNotFound
	}
	if c.OwnerID != ownerID {
		return models.ErrForbidden
	}
	return nil
}

func (s *fakeStore) CreateConversation(_ context.Context, ownerID string, in models.ConversationInput) (*models.Conversation, error) {
	name, err := models.ParseModelName(string(in.Model))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	title := in.Title
	if title == "" {
		title = name.DefaultTitle()
	}
	c := models.Conversation{ID: s.nextID("c"), OwnerID: ownerID, Title: title, Model: name, Language: in.Language, CreatedAt: time.Now()}
	s.convs[c.ID] = c
	return &c, nil
}

func (s *fakeStore) ListConversations(_ context.Context, ownerID string) ([]models.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ConversationSummary
	for _, c := range s.convs {
		if c.OwnerID == ownerID {
			n := 0
			for _, m := range s.msgs {
				if m.ConversationID == c.ID {
					n++
				}
			}
			out = append(out, models.ConversationSummary{Conversation: c, MessageCount: n})
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteConversation(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ownerID, id); err != nil {
		return err
	}
	delete(s.convs, id)
	return nil
}

func (s *fakeStore) CreateMessage(_ context.Context, ownerID string, in models.MessageInput) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ownerID, in.ConversationID); err != nil {
		return nil, err
	}
	m := models.Message{
		ID: s.nextID("m"), ConversationID: in.ConversationID, Content: in.Content, Transcript: in.Transcript,
		AudioURL: in.AudioURL, IsUser: in.IsUser, LatencyMs: in.LatencyMs, CreatedAt: time.Now(),
	}
	s.msgs = append(s.msgs, m)
	return &m, nil
}

func (s *fakeStore) ListMessages(_ context.Context, ownerID, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ownerID, conversationID); err != nil {
		return nil, err
	}
	var out []models.Message
	for _, m := range s.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) CreatePerformance(_ context.Context, ownerID string, in models.PerformanceInput) (*models.PerformanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := models.PerformanceRecord{
		ID: s.nextID("p"), OwnerID: ownerID, Model: in.Model, Language: in.Language,
		LatencyMs: in.LatencyMs, QualityScore: in.QualityScore, ExpressivityScore: in.ExpressivityScore,
	}
	s.perf = append(s.perf, r)
	return &r, nil
}

func (s *fakeStore) ListPerformance(_ context.Context, ownerID string) ([]models.PerformanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errors.New("connection refused")
	}
	var out []models.PerformanceRecord
	for _, r := range s.perf {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

type testEnv struct {
	srv   *httptest.Server
	store *fakeStore
	auth  *auth.Authenticator
	hub   *events.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	blobs, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	mc := metrics.NewCollector()
	audioStore := storage.NewAudioStore(blobs, "http://voxchat.test", mc)
	registry, err := speech.NewStubRegistry(speech.DefaultCatalog(), audioStore, speech.StubConfig{})
	require.NoError(t, err)

	env := &testEnv{
		store: newFakeStore(),
		auth:  auth.NewAuthenticator("test-secret", "voxchat"),
		hub:   events.NewHub(nil),
	}
	s := New(Deps{
		Store:   env.store,
		Gateway: speech.NewGateway(registry, audioStore, mc, nil),
		Audio:   audioStore,
		Auth:    env.auth,
		Hub:     env.hub,
		Metrics: mc,
	})
	env.srv = httptest.NewServer(s.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) token(t *testing.T, owner string) string {
	t.Helper()
	tok, err := e.auth.Issue(owner, time.Hour)
	require.NoError(t, err)
	return tok
}

type gqlError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path"`
	Extensions map[string]any `json:"extensions"`
}

type gqlResult struct {
	Status int
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// code returns the extension code of the first error, or "".
func (r gqlResult) code() string {
	if len(r.Errors) == 0 {
		return ""
	}
	code, _ := r.Errors[0].Extensions["code"].(string)
	return code
}

func (r gqlResult) decode(t *testing.T, out any) {
	t.Helper()
	require.Empty(t, r.Errors)
	require.NoError(t, json.Unmarshal(r.Data, out))
}

// gql posts a GraphQL operation as owner. An empty owner sends no token.
func (e *testEnv) gql(t *testing.T, owner, query string, vars map[string]any) gqlResult {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+QueryPath, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, owner))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	res := gqlResult{Status: resp.StatusCode}
	if resp.StatusCode != http.StatusUnauthorized {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	}
	return res
}

func (e *testEnv) createConversation(t *testing.T, owner string, model models.ModelName, language string) models.ConversationSummary {
	t.Helper()
	res := e.gql(t, owner, `
		mutation($input: CreateConversationInput!) {
			createConversation(input: $input) { id ownerId title model language messageCount createdAt }
		}`, map[string]any{"input": map[string]any{"model": model, "language": language}})
	var out struct {
		CreateConversation models.ConversationSummary `json:"createConversation"`
	}
	res.decode(t, &out)
	return out.CreateConversation
}

func gatewayForm(t *testing.T, fields map[string]string, withAudio bool) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if withAudio {
		part, err := w.CreateFormFile(speech.FieldAudio, "recording.wav")
		require.NoError(t, err)
		_, err = part.Write(audio.EncodeWAV(make([]byte, 640), audio.L16Mono16K))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

// postGateway sends a gateway upload as owner. An empty owner sends no token.
func (e *testEnv) postGateway(t *testing.T, owner string, fields map[string]string, withAudio bool) *http.Response {
	t.Helper()
	body, ct := gatewayForm(t, fields, withAudio)
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+speech.GatewayPath, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)
	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, owner))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// =============================================================================
// GATEWAY
// =============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGatewayPreflight(t *testing.T) {
	env := newTestEnv(t)
	req, err := http.NewRequest(http.MethodOptions, env.srv.URL+speech.GatewayPath, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "content-type")
}

func TestGatewayRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	fields := map[string]string{"model": "moshi", "language": "en"}

	resp := env.postGateway(t, "", fields, true)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	var out speech.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Error)

	body, ct := gatewayForm(t, fields, true)
	req, err := http.NewRequest(http.MethodPost, env.srv.URL+speech.GatewayPath, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)
	forged, err := auth.NewAuthenticator("other-secret", "voxchat").Issue("alice", time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+forged)
	forgedResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	forgedResp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, forgedResp.StatusCode)
}

func TestGatewayRejectsOversizedUpload(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(speech.FieldAudio, "recording.wav")
	require.NoError(t, err)
	_, err = part.Write(make([]byte, maxUploadBytes+1))
	require.NoError(t, err)
	require.NoError(t, w.WriteField(speech.FieldModel, "moshi"))
	require.NoError(t, w.WriteField(speech.FieldLanguage, "en"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, speech.GatewayPath, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	_, err = readGatewayRequest(httptest.NewRecorder(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestGatewayValidation(t *testing.T) {
	tests := []struct {
		name      string
		fields    map[string]string
		withAudio bool
		wantError string
	}{
		{"missing audio", map[string]string{"model": "moshi", "language": "en"}, false, "missing parameter: audio"},
		{"missing model", map[string]string{"language": "en"}, true, "missing parameter: model"},
		{"missing language", map[string]string{"model": "moshi"}, true, "missing parameter: language"},
		{"unsupported model", map[string]string{"model": "gpt-voice", "language": "en"}, true, "unsupported model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp := env.postGateway(t, "alice", tt.fields, tt.withAudio)

			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
			var out speech.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.False(t, out.Success)
			assert.Contains(t, out.Error, tt.wantError)
		})
	}
}

func TestGatewayProcessesAndServesAudio(t *testing.T) {
	env := newTestEnv(t)
	resp := env.postGateway(t, "alice", map[string]string{"model": "ultravox", "language": "pt"}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out speech.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.Transcript)
	assert.Equal(t, "ultravox", out.Model)
	assert.Equal(t, "pt", out.Language)
	assert.Greater(t, out.Latency, 0.0)

	u, err := url.Parse(out.AudioURL)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.Path, storage.AudioRoute+storage.PrefixSynthesized+"/"))

	audioResp, err := http.Get(env.srv.URL + u.Path)
	require.NoError(t, err)
	defer audioResp.Body.Close()
	require.Equal(t, http.StatusOK, audioResp.StatusCode)
	assert.Equal(t, audio.MIMETypeWAV, audioResp.Header.Get("Content-Type"))
	data, err := io.ReadAll(audioResp.Body)
	require.NoError(t, err)
	_, pcm, err := audio.ParseWAV(data)
	require.NoError(t, err)
	assert.NotEmpty(t, pcm)
}

func TestGatewayLanguageFallback(t *testing.T) {
	env := newTestEnv(t)
	resp := env.postGateway(t, "alice", map[string]string{"model": "moshi", "language": "xx"}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out speech.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, models.DefaultLanguage, out.Language)
}

func TestAudioNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.srv.URL + "/audio/synthesized/missing.wav")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// GRAPHQL
// =============================================================================

func TestQueryRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	res := env.gql(t, "", `{ conversations { id } }`, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Status)

	body := strings.NewReader(`{"query":"{ conversations { id } }"}`)
	req, err := http.NewRequest(http.MethodPost, env.srv.URL+QueryPath, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	forged, err := auth.NewAuthenticator("other-secret", "voxchat").Issue("alice", time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+forged)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t)

	conv := env.createConversation(t, "alice", models.ModelMoshi, "")
	assert.Equal(t, "alice", conv.OwnerID)
	assert.Equal(t, "Chat with Moshi", conv.Title)
	assert.Equal(t, models.DefaultLanguage, conv.Language)
	assert.Zero(t, conv.MessageCount)

	var created struct {
		CreateMessage models.Message `json:"createMessage"`
	}
	env.gql(t, "alice", `
		mutation($input: CreateMessageInput!) {
			createMessage(input: $input) { id conversationId content isUser transcript }
		}`, map[string]any{"input": map[string]any{
		"conversationId": conv.ID, "content": "hello", "isUser": true, "transcript": "hello",
	}}).decode(t, &created)
	assert.Equal(t, conv.ID, created.CreateMessage.ConversationID)
	require.NotNil(t, created.CreateMessage.Transcript)
	assert.Equal(t, "hello", *created.CreateMessage.Transcript)

	var list struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	env.gql(t, "alice", `{ conversations { id messageCount } }`, nil).decode(t, &list)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, 1, list.Conversations[0].MessageCount)

	const messagesQuery = `query($id: ID!) { messages(conversationId: $id) { id content isUser } }`
	var msgs struct {
		Messages []models.Message `json:"messages"`
	}
	env.gql(t, "alice", messagesQuery, map[string]any{"id": conv.ID}).decode(t, &msgs)
	require.Len(t, msgs.Messages, 1)
	assert.True(t, msgs.Messages[0].IsUser)

	// Bob sees nothing and cannot touch Alice's conversation.
	var bobList struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	env.gql(t, "bob", `{ conversations { id } }`, nil).decode(t, &bobList)
	assert.Empty(t, bobList.Conversations)
	assert.NotNil(t, bobList.Conversations, "empty lists are [] not null")

	const deleteMutation = `mutation($id: ID!) { deleteConversation(id: $id) }`
	assert.Equal(t, graph.CodeForbidden, env.gql(t, "bob", deleteMutation, map[string]any{"id": conv.ID}).code())
	assert.Equal(t, graph.CodeForbidden, env.gql(t, "bob", messagesQuery, map[string]any{"id": conv.ID}).code())

	var deleted struct {
		DeleteConversation bool `json:"deleteConversation"`
	}
	env.gql(t, "alice", deleteMutation, map[string]any{"id": conv.ID}).decode(t, &deleted)
	assert.True(t, deleted.DeleteConversation)

	res := env.gql(t, "alice", deleteMutation, map[string]any{"id": conv.ID})
	assert.Equal(t, graph.CodeNotFound, res.code())
	assert.JSONEq(t, "null", string(res.Data), "a failed non-null root field nulls the data")
}

func TestQueryReturnsSelectedFieldsInOrder(t *testing.T) {
	env := newTestEnv(t)
	conv := env.createConversation(t, "alice", models.ModelCSM, "en")

	res := env.gql(t, "alice", `{
		__typename
		chats: conversations { title __typename id }
	}`, nil)
	require.Empty(t, res.Errors)
	assert.Equal(t,
		`{"__typename":"Query","chats":[{"title":"Chat with CSM 1B","__typename":"Conversation","id":"`+conv.ID+`"}]}`,
		string(res.Data))
}

func TestQueryValidationFails(t *testing.T) {
	env := newTestEnv(t)
	res := env.gql(t, "alice", `{ conversations { id secret } }`, nil)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, "GRAPHQL_VALIDATION_FAILED", res.code())
}

func TestCreateConversationRejectsUnknownModel(t *testing.T) {
	env := newTestEnv(t)
	res := env.gql(t, "alice", `
		mutation { createConversation(input: {model: "gpt-voice", language: "en"}) { id } }`, nil)
	assert.Equal(t, graph.CodeBadInput, res.code())
	assert.Contains(t, res.Errors[0].Message, "unsupported model")
}

func TestCreateMessageRequiresConversation(t *testing.T) {
	env := newTestEnv(t)
	res := env.gql(t, "alice", `
		mutation { createMessage(input: {conversationId: "", content: "x", isUser: true}) { id } }`, nil)
	assert.Equal(t, graph.CodeBadInput, res.code())

	res = env.gql(t, "alice", `
		mutation { createMessage(input: {conversationId: "c404", content: "x", isUser: true}) { id } }`, nil)
	assert.Equal(t, graph.CodeNotFound, res.code())
}

func TestPerformanceAndStats(t *testing.T) {
	env := newTestEnv(t)

	const record = `mutation($input: RecordPerformanceInput!) { recordPerformance(input: $input) { id model } }`
	for _, in := range []map[string]any{
		{"model": "moshi", "language": "en", "latencyMs": 100, "qualityScore": 4, "expressivityScore": 4},
		{"model": "moshi", "language": "en", "latencyMs": 200.0, "qualityScore": 2, "expressivityScore": 2},
	} {
		res := env.gql(t, "alice", record, map[string]any{"input": in})
		require.Empty(t, res.Errors)
	}

	bad := map[string]any{"model": "moshi", "language": "en", "latencyMs": 1, "qualityScore": 7, "expressivityScore": 1}
	res := env.gql(t, "alice", record, map[string]any{"input": bad})
	assert.Equal(t, graph.CodeBadInput, res.code())
	assert.Contains(t, res.Errors[0].Message, "invalid score")

	const statsQuery = `{ stats { model avgLatency avgQuality avgExpressivity usageCount } }`
	var stats struct {
		Stats []models.ModelStats `json:"stats"`
	}
	env.gql(t, "alice", statsQuery, nil).decode(t, &stats)
	require.Len(t, stats.Stats, 1)
	assert.Equal(t, models.ModelMoshi, stats.Stats[0].Model)
	assert.InDelta(t, 150.0, stats.Stats[0].AvgLatencyMs, 1e-9)
	assert.InDelta(t, 3.0, stats.Stats[0].AvgQuality, 1e-9)
	assert.Equal(t, 2, stats.Stats[0].UsageCount)

	var bobStats struct {
		Stats []models.ModelStats `json:"stats"`
	}
	env.gql(t, "bob", statsQuery, nil).decode(t, &bobStats)
	assert.Empty(t, bobStats.Stats)
}

func TestStoreFailureIsInternal(t *testing.T) {
	env := newTestEnv(t)
	env.store.failList = true

	res := env.gql(t, "alice", `{ performance { id } }`, nil)
	assert.Equal(t, graph.CodeInternal, res.code())
	assert.Equal(t, "internal server error", res.Errors[0].Message)
	assert.Equal(t, []any{"performance"}, res.Errors[0].Path)
}

func TestServerStats(t *testing.T) {
	env := newTestEnv(t)
	resp := env.postGateway(t, "alice", map[string]string{"model": "csm-1b", "language": "en"}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		ServerStats struct {
			Gateway  *metrics.OperationSnapshot `json:"gateway"`
			Backends []struct {
				Model string                     `json:"model"`
				Stats *metrics.OperationSnapshot `json:"stats"`
			} `json:"backends"`
		} `json:"serverStats"`
	}
	env.gql(t, "alice", `{
		serverStats {
			gateway { count errors }
			backends { model stats { count } }
		}
	}`, nil).decode(t, &out)
	require.NotNil(t, out.ServerStats.Gateway)
	assert.Equal(t, int64(1), out.ServerStats.Gateway.Count)
	require.Len(t, out.ServerStats.Backends, 1)
	assert.Equal(t, "csm-1b", out.ServerStats.Backends[0].Model)
	assert.Equal(t, int64(1), out.ServerStats.Backends[0].Stats.Count)
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// subscribeChanges opens a graphql-transport-ws subscription to changes,
// authenticated with the access_token query parameter.
func (e *testEnv) subscribeChanges(t *testing.T, owner string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + QueryPath + "?access_token=" + e.token(t, owner)
	dialer := websocket.Dialer{Subprotocols: []string{"graphql-transport-ws"}}
	conn, _, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "connection_init"}))
	var ack wsMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "connection_ack", ack.Type)

	payload, err := json.Marshal(map[string]any{
		"query": `subscription { changes { type conversationId conversation { id title messageCount } message { id } } }`,
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wsMessage{ID: "1", Type: "subscribe", Payload: payload}))
	return conn
}

// nextChange reads until the next "next" message and returns its changes field.
func nextChange(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type != "next" {
			continue
		}
		var payload struct {
			Data struct {
				Changes map[string]any `json:"changes"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		return payload.Data.Changes
	}
}

func TestChangesDeliveredToOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	conn := env.subscribeChanges(t, "alice")
	require.Eventually(t, func() bool { return env.hub.Subscribers("alice") == 1 }, 2*time.Second, 10*time.Millisecond)

	// Bob's write must not reach Alice.
	env.createConversation(t, "bob", models.ModelMoshi, "en")
	conv := env.createConversation(t, "alice", models.ModelUltravox, "de")

	change := nextChange(t, conn)
	assert.Equal(t, string(events.ConversationCreated), change["type"])
	assert.Equal(t, conv.ID, change["conversationId"])
	assert.Equal(t, map[string]any{"id": conv.ID, "title": "Chat with Ultravox", "messageCount": float64(0)}, change["conversation"])
	assert.Nil(t, change["message"])

	conn.Close()
	assert.Eventually(t, func() bool { return env.hub.Subscribers("alice") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestChangesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + QueryPath
	dialer := websocket.Dialer{Subprotocols: []string{"graphql-transport-ws"}}
	_, resp, err := dialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
