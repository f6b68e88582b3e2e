// Package api exposes the management REST API over gin.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/campaigns"
	"whatsapp-suite/internal/chatbot"
	"whatsapp-suite/internal/contacts"
	"whatsapp-suite/internal/dispatch"
	"whatsapp-suite/internal/history"
	"whatsapp-suite/internal/providers"
	"whatsapp-suite/internal/templates"
	"whatsapp-suite/internal/threads"
	"whatsapp-suite/internal/ws"
)

// Deps are the services behind the API. Hub may be nil.
type Deps struct {
	Providers  *providers.Service
	Templates  *templates.Service
	Dispatcher *dispatch.Dispatcher
	History    *history.Store
	Contacts   *contacts.Resolver
	Campaigns  *campaigns.Service
	Lists      *campaigns.Lists
	Chatbots   *chatbot.Store
	Threads    *threads.Service
	Hub        *ws.Hub
}

type Server struct {
	Deps
	log *zap.Logger
}

func NewServer(d Deps, log *zap.Logger) *Server {
	return &Server{Deps: d, log: log.Named("api")}
}

// Register mounts every route under r.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.Hub != nil {
		r.GET("/ws", func(c *gin.Context) { s.Hub.ServeWs(c.Writer, c.Request) })
	}

	api := r.Group("/api")
	s.registerProviders(api)
	s.registerTemplates(api)
	s.registerMessages(api)
	s.registerContacts(api)
	s.registerCampaigns(api)
	s.registerChatbots(api)
}

func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindConfig, apperr.KindValidation, apperr.KindPayload:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindRemote:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// idParam parses a numeric path parameter, answering 400 when it is not one.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// queryUint reads an optional numeric query parameter. Garbage reads as zero.
func queryUint(c *gin.Context, name string) uint {
	v, _ := strconv.ParseUint(c.Query(name), 10, 64)
	return uint(v)
}

func queryInt(c *gin.Context, name string) int {
	v, _ := strconv.Atoi(c.Query(name))
	return v
}
