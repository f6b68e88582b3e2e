package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-suite/internal/models"
)

func (s *Server) registerTemplates(r *gin.RouterGroup) {
	g := r.Group("/templates")
	g.GET("", s.listTemplates)
	g.POST("", s.saveTemplate)
	g.GET("/fields", s.templateFields)
	g.GET("/:id", s.getTemplate)
	g.PUT("/:id", s.saveTemplate)
	g.DELETE("/:id", s.removeTemplate)
	g.PUT("/:id/mappings", s.setMappings)
	g.POST("/:id/submit", s.templateAction(s.Templates.Create))
	g.POST("/:id/resubmit", s.templateAction(s.Templates.Resubmit))
	g.POST("/:id/status", s.templateAction(s.Templates.RefreshStatus))
}

func (s *Server) listTemplates(c *gin.Context) {
	list, err := s.Templates.List(c.Request.Context(), queryUint(c, "provider_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// templateFields lists the record fields a parameter can be mapped to.
func (s *Server) templateFields(c *gin.Context) {
	model := c.DefaultQuery("model", "contacts")
	c.JSON(http.StatusOK, gin.H{"model": model, "fields": s.Templates.Registry().Fields(model)})
}

func (s *Server) getTemplate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	t, err := s.Templates.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) saveTemplate(c *gin.Context) {
	var t models.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		badRequest(c, err)
		return
	}
	status := http.StatusCreated
	t.ID = 0
	if c.Param("id") != "" {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		if _, err := s.Templates.Get(c.Request.Context(), id); err != nil {
			s.fail(c, err)
			return
		}
		t.ID = id
		status = http.StatusOK
	}
	if err := s.Templates.Save(c.Request.Context(), &t); err != nil {
		s.fail(c, err)
		return
	}
	saved, err := s.Templates.Get(c.Request.Context(), t.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(status, saved)
}

// removeTemplate deletes the template at Meta and locally.
func (s *Server) removeTemplate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.Templates.Remove(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) setMappings(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var mappings []models.ParameterMapping
	if err := c.ShouldBindJSON(&mappings); err != nil {
		badRequest(c, err)
		return
	}
	t, err := s.Templates.SetMappings(c.Request.Context(), id, mappings)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) templateAction(fn func(context.Context, uint) (*models.Template, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		t, err := fn(c.Request.Context(), id)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}
