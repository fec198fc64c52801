package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/door-lock/internal/config"
	"github.com/wfunc/door-lock/internal/control"
	"github.com/wfunc/door-lock/internal/database"
	"github.com/wfunc/door-lock/internal/models"
	"github.com/wfunc/door-lock/internal/repository"
	"github.com/wfunc/door-lock/internal/sequencer"
	"github.com/wfunc/door-lock/internal/service"
	ws "github.com/wfunc/door-lock/internal/websocket"
	"go.uber.org/zap"
)

type fakeNode struct {
	status control.Status
}

func (f *fakeNode) Status() control.Status {
	return f.status
}

// RouterTestSuite 维护接口测试
type RouterTestSuite struct {
	suite.Suite
	repos  *repository.Manager
	hub    *ws.Hub
	router *Router
	cancel context.CancelFunc
}

func (s *RouterTestSuite) SetupTest() {
	db, err := database.Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	}, zap.NewNop())
	s.Require().NoError(err)
	s.Require().NoError(database.AutoMigrate(db, zap.NewNop()))

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.hub = ws.NewHub(zap.NewNop())
	go s.hub.Run(ctx)

	s.repos = repository.NewManager(db)
	node := &fakeNode{status: control.Status{
		Node:      "control",
		State:     control.StateReady,
		SessionID: "s-1",
		FirstUse:  true,
		Sequence:  sequencer.State{Phase: sequencer.PhaseLocked, Chain: sequencer.ChainDoor},
	}}
	s.router = NewRouter(&config.APIConfig{Mode: gin.TestMode}, Deps{
		DB:       db,
		Node:     node,
		Services: service.NewServices(s.repos, zap.NewNop()),
		Hub:      s.hub,
	}, zap.NewNop())
}

func (s *RouterTestSuite) TearDownTest() {
	s.cancel()
	database.Close(s.repos.DB())
}

func (s *RouterTestSuite) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func (s *RouterTestSuite) decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func (s *RouterTestSuite) seed() {
	ctx := context.Background()
	for _, e := range []*models.AccessEvent{
		{SessionID: "s-1", Kind: models.AccessEventHandshake, Result: models.AccessResultOK},
		{SessionID: "s-1", Kind: models.AccessEventVerify, Result: models.AccessResultMismatch},
		{SessionID: "s-1", Kind: models.AccessEventVerify, Result: models.AccessResultMatch},
		{SessionID: "s-2", Kind: models.AccessEventDoor, Result: models.AccessResultOK},
	} {
		s.Require().NoError(s.repos.AccessEvents().Create(ctx, e))
	}
}

func (s *RouterTestSuite) TestHealth() {
	w := s.do(http.MethodGet, "/health")
	s.Equal(http.StatusOK, w.Code)
	body := s.decode(w)
	s.Equal("healthy", body["status"])
	s.Equal("ready", body["state"])
}

func (s *RouterTestSuite) TestStatus() {
	w := s.do(http.MethodGet, "/api/v1/status")
	s.Equal(http.StatusOK, w.Code)

	body := s.decode(w)
	s.Equal("ready", body["state"])
	s.Equal(true, body["first_use"])
	seq := body["sequence"].(map[string]interface{})
	s.Equal("LOCKED", seq["phase"])
	s.Equal("door", seq["chain"])
}

func (s *RouterTestSuite) TestQueryEvents() {
	s.seed()

	w := s.do(http.MethodGet, "/api/v1/events?kind=verify&limit=1")
	s.Equal(http.StatusOK, w.Code)
	body := s.decode(w)
	s.Equal(float64(2), body["total"])
	s.Len(body["data"], 1)

	w = s.do(http.MethodGet, "/api/v1/events/session/s-2")
	s.Equal(http.StatusOK, w.Code)
	s.Len(s.decode(w)["data"], 1)
}

func (s *RouterTestSuite) TestStats() {
	s.seed()

	w := s.do(http.MethodGet, "/api/v1/events/stats?hours=1")
	s.Equal(http.StatusOK, w.Code)
	body := s.decode(w)
	s.Equal(float64(4), body["total_count"])
	s.Equal(float64(1), body["total_mismatch"])

	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/events/stats?hours=x").Code)
}

func (s *RouterTestSuite) TestCleanup() {
	s.seed()
	w := s.do(http.MethodPost, "/api/v1/events/cleanup?days=1")
	s.Equal(http.StatusOK, w.Code)
	s.Equal(float64(0), s.decode(w)["deleted"])

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/events/cleanup?days=0").Code)
}

func (s *RouterTestSuite) TestNotFound() {
	w := s.do(http.MethodGet, "/api/v1/wallet")
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("NOT_FOUND", s.decode(w)["code"])
}

func (s *RouterTestSuite) TestEventStream() {
	srv := httptest.NewServer(s.router.GetEngine())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/events", nil)
	s.Require().NoError(err)
	defer conn.Close()

	read := func() *ws.Message {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		s.Require().NoError(err)
		var msg ws.Message
		s.Require().NoError(json.Unmarshal(data, &msg))
		return &msg
	}

	s.Equal(ws.MessageTypeConnected, read().Type)
	s.hub.PublishEvent(&models.AccessEvent{Kind: models.AccessEventAlarm, SessionID: "s-1"})
	msg := read()
	s.Equal(ws.MessageTypeAccessEvent, msg.Type)
	s.Contains(string(msg.Data), `"kind":"alarm"`)
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func TestWithoutDatabase(t *testing.T) {
	r := NewRouter(&config.APIConfig{Mode: gin.TestMode}, Deps{}, zap.NewNop())

	for path, code := range map[string]int{
		"/health":        http.StatusOK,
		"/api/v1/status": http.StatusServiceUnavailable,
		"/api/v1/events": http.StatusServiceUnavailable,
		"/ws/events":     http.StatusNotFound,
	} {
		w := httptest.NewRecorder()
		r.GetEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != code {
			t.Errorf("%s: got %d, want %d", path, w.Code, code)
		}
	}
}
