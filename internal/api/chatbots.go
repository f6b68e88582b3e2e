package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-suite/internal/models"
)

type chatbotRequest struct {
	Name        string                 `json:"name" binding:"required"`
	ProviderID  uint                   `json:"provider_id" binding:"required"`
	OperatorIDs []uint                 `json:"operator_ids"`
	Scripts     []models.ChatbotScript `json:"scripts"`
}

type activeRequest struct {
	ChatbotID uint `json:"chatbot_id"`
}

func (s *Server) registerChatbots(r *gin.RouterGroup) {
	g := r.Group("/chatbots")
	g.GET("", s.listChatbots)
	g.POST("", s.createChatbot)
	g.GET("/active", s.activeChatbot)
	g.PUT("/active", s.setActiveChatbot)
	g.GET("/:id", s.getChatbot)
	g.PUT("/:id", s.updateChatbot)
	g.DELETE("/:id", s.deleteChatbot)
	g.POST("/:id/scripts", s.addScript)
	g.PUT("/:id/scripts/:script_id", s.updateScript)
	g.DELETE("/:id/scripts/:script_id", s.deleteScript)
}

func (s *Server) operatorsByID(c *gin.Context, ids []uint) ([]models.Operator, bool) {
	if len(ids) == 0 {
		return nil, true
	}
	all, err := s.Providers.ListOperators(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	want := make(map[uint]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Operator
	for _, op := range all {
		if want[op.ID] {
			out = append(out, op)
		}
	}
	return out, true
}

func (s *Server) respondChatbot(c *gin.Context, id uint, status int) {
	bot, err := s.Chatbots.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(status, bot)
}

func (s *Server) listChatbots(c *gin.Context) {
	list, err := s.Chatbots.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) createChatbot(c *gin.Context) {
	var req chatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ops, ok := s.operatorsByID(c, req.OperatorIDs)
	if !ok {
		return
	}
	bot := &models.Chatbot{Name: req.Name, ProviderID: req.ProviderID, Operators: ops, Scripts: req.Scripts}
	for i := range bot.Scripts {
		bot.Scripts[i].ID = 0
	}
	if err := s.Chatbots.Create(c.Request.Context(), bot); err != nil {
		s.fail(c, err)
		return
	}
	s.respondChatbot(c, bot.ID, http.StatusCreated)
}

func (s *Server) getChatbot(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	s.respondChatbot(c, id, http.StatusOK)
}

func (s *Server) updateChatbot(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req chatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	bot, err := s.Chatbots.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	ops, ok := s.operatorsByID(c, req.OperatorIDs)
	if !ok {
		return
	}
	bot.Name, bot.ProviderID, bot.Operators = req.Name, req.ProviderID, ops
	if err := s.Chatbots.Update(ctx, bot); err != nil {
		s.fail(c, err)
		return
	}
	s.respondChatbot(c, id, http.StatusOK)
}

func (s *Server) deleteChatbot(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.Chatbots.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addScript(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var sc models.ChatbotScript
	if err := c.ShouldBindJSON(&sc); err != nil {
		badRequest(c, err)
		return
	}
	sc.ID, sc.ChatbotID = 0, id
	if err := s.Chatbots.AddScript(c.Request.Context(), &sc); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sc)
}

func (s *Server) updateScript(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	scriptID, ok := idParam(c, "script_id")
	if !ok {
		return
	}
	var sc models.ChatbotScript
	if err := c.ShouldBindJSON(&sc); err != nil {
		badRequest(c, err)
		return
	}
	sc.ID, sc.ChatbotID = scriptID, id
	if err := s.Chatbots.UpdateScript(c.Request.Context(), &sc); err != nil {
		s.fail(c, err)
		return
	}
	s.respondChatbot(c, id, http.StatusOK)
}

func (s *Server) deleteScript(c *gin.Context) {
	scriptID, ok := idParam(c, "script_id")
	if !ok {
		return
	}
	if err := s.Chatbots.DeleteScript(c.Request.Context(), scriptID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) activeChatbot(c *gin.Context) {
	bot, err := s.Chatbots.Active(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatbot": bot})
}

// setActiveChatbot selects the chatbot that intercepts inbound messages.
// A zero id turns the overlay off.
func (s *Server) setActiveChatbot(c *gin.Context) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.Chatbots.SetActive(c.Request.Context(), req.ChatbotID); err != nil {
		s.fail(c, err)
		return
	}
	s.activeChatbot(c)
}
