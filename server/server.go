// Package server exposes the orchestrator over HTTP and WebSocket.
package server

import (
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"schedbot"
	"schedbot/models"
	"schedbot/stores"
)

type Server struct {
	orch   *schedbot.Orchestrator
	store  stores.MessageStore
	logger *log.Logger
	engine *gin.Engine

	upgrader websocket.Upgrader
}

func NewServer(orch *schedbot.Orchestrator, store stores.MessageStore) *Server {
	s := &Server{
		orch:   orch,
		store:  store,
		logger: log.New(os.Stdout, "[HTTP] ", log.LstdFlags),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	router := gin.Default()

	api := router.Group("/api/v1")
	api.POST("/chat/:userID", s.handleChat)
	api.POST("/calendar/:userID", s.handleCalendar)
	api.DELETE("/history/:userID", s.handleClearHistory)
	api.GET("/stats", s.handleStats)

	router.GET("/healthz", s.handleHealth)
	router.GET("/ws/:userID", s.handleWebSocket)

	s.engine = router
	return s
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.engine
}

func (s *Server) Run(addr string) error {
	s.logger.Printf("listening on %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) handleChat(c *gin.Context) {
	userID := c.Param("userID")

	var req models.Chat_Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	reply := s.orch.Process(userID, req.Message)
	c.JSON(http.StatusOK, models.ChatResponse{UserID: userID, Reply: reply})
}

func (s *Server) handleCalendar(c *gin.Context) {
	userID := c.Param("userID")

	var req models.Chat_Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	reply := s.orch.ProcessCalendar(userID, req.Message)
	c.JSON(http.StatusOK, models.ChatResponse{UserID: userID, Reply: reply})
}

func (s *Server) handleClearHistory(c *gin.Context) {
	userID := c.Param("userID")
	c.JSON(http.StatusOK, gin.H{"message": s.orch.ClearHistory(userID)})
}

func (s *Server) handleStats(c *gin.Context) {
	c.String(http.StatusOK, s.orch.Stats())
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type wsMessage struct {
	Message string `json:"message"`
}

// handleWebSocket runs a chat loop over one connection. Each incoming JSON
// message produces exactly one JSON reply.
func (s *Server) handleWebSocket(c *gin.Context) {
	userID := c.Param("userID")

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Printf("websocket read error (user %s): %v", userID, err)
			}
			return
		}
		if msg.Message == "" {
			if err := conn.WriteJSON(gin.H{"error": "message is required"}); err != nil {
				return
			}
			continue
		}

		reply := s.orch.Process(userID, msg.Message)
		if err := conn.WriteJSON(models.ChatResponse{UserID: userID, Reply: reply}); err != nil {
			s.logger.Printf("websocket write error (user %s): %v", userID, err)
			return
		}
	}
}
