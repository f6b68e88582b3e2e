package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-suite/internal/models"
)

type contactRequest struct {
	Name   string `json:"name" binding:"required"`
	Phone  string `json:"phone"`
	Mobile string `json:"mobile"`
	Email  string `json:"email"`
	Tags   string `json:"tags"`
}

func (r contactRequest) apply(c *models.Contact) {
	c.Name = r.Name
	c.Phone = r.Phone
	c.Mobile = r.Mobile
	c.Email = r.Email
	c.Tags = r.Tags
}

func (s *Server) registerContacts(r *gin.RouterGroup) {
	g := r.Group("/contacts")
	g.GET("", s.listContacts)
	g.POST("", s.createContact)
	g.GET("/:id", s.getContact)
	g.PUT("/:id", s.updateContact)
	g.DELETE("/:id", s.deleteContact)
}

func (s *Server) listContacts(c *gin.Context) {
	list, err := s.Contacts.List(c.Request.Context(), c.Query("q"), queryInt(c, "limit"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) createContact(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var contact models.Contact
	req.apply(&contact)
	if err := s.Contacts.Save(c.Request.Context(), &contact); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, contact)
}

func (s *Server) getContact(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	contact, err := s.Contacts.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (s *Server) updateContact(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	contact, err := s.Contacts.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	req.apply(contact)
	if err := s.Contacts.Save(ctx, contact); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (s *Server) deleteContact(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.Contacts.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
