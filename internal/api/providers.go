package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-suite/internal/models"
)

type providerRequest struct {
	Name              string `json:"name" binding:"required"`
	APIURL            string `json:"api_url"`
	PhoneNumberID     string `json:"phone_number_id" binding:"required"`
	BusinessAccountID string `json:"business_account_id" binding:"required"`
	AccessToken       string `json:"access_token" binding:"required"`
	AppID             string `json:"app_id"`
	OperatorIDs       []uint `json:"operator_ids"`
}

type idsRequest struct {
	IDs []uint `json:"ids"`
}

func (s *Server) registerProviders(r *gin.RouterGroup) {
	g := r.Group("/providers")
	g.GET("", s.listProviders)
	g.POST("", s.createProvider)
	g.GET("/:id", s.getProvider)
	g.POST("/:id/verify", s.providerAction(s.Providers.Verify))
	g.POST("/:id/phone", s.providerAction(s.Providers.FetchPhoneDetails))
	g.POST("/:id/profile", s.providerAction(s.Providers.FetchBusinessProfile))
	g.POST("/:id/webhook-token", s.providerAction(s.Providers.RegenerateWebhookToken))
	g.POST("/:id/reset", s.providerAction(s.Providers.ResetToDraft))
	g.GET("/:id/operators", s.providerOperators)
	g.PUT("/:id/operators", s.assignOperators)
	g.POST("/:id/templates/sync", s.syncTemplates)

	r.GET("/operators", s.listOperators)
	r.POST("/operators", s.createOperator)
}

// providerView adds the webhook callback address the Meta dashboard needs.
func (s *Server) providerView(p *models.ProviderConfig) gin.H {
	return gin.H{"provider": p, "webhook_url": s.Providers.WebhookURL(p)}
}

func (s *Server) listProviders(c *gin.Context) {
	list, err := s.Providers.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) createProvider(c *gin.Context) {
	var req providerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	p := &models.ProviderConfig{
		Name:              req.Name,
		APIURL:            req.APIURL,
		PhoneNumberID:     req.PhoneNumberID,
		BusinessAccountID: req.BusinessAccountID,
		AccessToken:       req.AccessToken,
		AppID:             req.AppID,
	}
	if err := s.Providers.Create(ctx, p); err != nil {
		s.fail(c, err)
		return
	}
	if len(req.OperatorIDs) > 0 {
		if err := s.Providers.AssignOperators(ctx, p.ID, req.OperatorIDs); err != nil {
			s.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, s.providerView(p))
}

func (s *Server) getProvider(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	p, err := s.Providers.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.providerView(p))
}

// providerAction adapts the provider operations that return the refreshed
// configuration.
func (s *Server) providerAction(fn func(context.Context, uint) (*models.ProviderConfig, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		p, err := fn(c.Request.Context(), id)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, s.providerView(p))
	}
}

func (s *Server) providerOperators(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ops, err := s.Providers.Operators(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ops)
}

func (s *Server) assignOperators(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.Providers.AssignOperators(c.Request.Context(), id, req.IDs); err != nil {
		s.fail(c, err)
		return
	}
	s.providerOperators(c)
}

func (s *Server) syncTemplates(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	n, err := s.Templates.Sync(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": n})
}

func (s *Server) listOperators(c *gin.Context) {
	ops, err := s.Providers.ListOperators(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ops)
}

func (s *Server) createOperator(c *gin.Context) {
	var op models.Operator
	if err := c.ShouldBindJSON(&op); err != nil {
		badRequest(c, err)
		return
	}
	op.ID = 0
	if err := s.Providers.CreateOperator(c.Request.Context(), &op); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, op)
}
