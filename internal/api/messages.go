package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-suite/internal/dispatch"
	"whatsapp-suite/internal/history"
	"whatsapp-suite/internal/templates"
	"whatsapp-suite/internal/whatsapp"
)

type attachmentRequest struct {
	Name     string `json:"name" binding:"required"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data" binding:"required"` // base64
}

type sendRequest struct {
	ProviderID  uint                `json:"provider_id" binding:"required"`
	OperatorID  uint                `json:"operator_id"`
	ContactID   uint                `json:"contact_id"`
	Number      string              `json:"number"`
	NumberField string              `json:"number_field"`
	Text        string              `json:"text"`
	TemplateID  uint                `json:"template_id"`
	Model       string              `json:"model"`
	RecordID    uint                `json:"record_id"`
	Report      string              `json:"report"`
	ReplyTo     string              `json:"reply_to"`
	Attachments []attachmentRequest `json:"attachments"`
}

func (r sendRequest) toDispatch() dispatch.Request {
	req := dispatch.Request{
		ProviderID:  r.ProviderID,
		OperatorID:  r.OperatorID,
		ContactID:   r.ContactID,
		Number:      r.Number,
		NumberField: r.NumberField,
		Text:        r.Text,
		TemplateID:  r.TemplateID,
		Report:      r.Report,
		ReplyTo:     r.ReplyTo,
	}
	switch {
	case r.Model != "" && r.RecordID != 0:
		req.Record = &dispatch.Record{Model: r.Model, ID: r.RecordID}
	case r.ContactID != 0:
		req.Record = &dispatch.Record{Model: templates.ModelContacts, ID: r.ContactID}
	}
	for _, a := range r.Attachments {
		req.Attachments = append(req.Attachments, whatsapp.Attachment{Name: a.Name, MimeType: a.MimeType, Data: a.Data})
	}
	return req
}

func (s *Server) registerMessages(r *gin.RouterGroup) {
	r.POST("/messages", s.sendMessage)
	r.GET("/messages", s.listHistory)

	g := r.Group("/threads")
	g.GET("", s.listThreads)
	g.GET("/:id", s.getThread)
	g.GET("/:id/messages", s.threadMessages)
}

// sendMessage answers 200 when at least one channel went out, listing the
// failed ones in errors.
func (s *Server) sendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.Dispatcher.Send(c.Request.Context(), req.toDispatch())
	if err != nil {
		body := gin.H{"error": err.Error()}
		if res != nil {
			body["history"] = res.History
			body["errors"] = res.Errors
		}
		c.JSON(statusOf(err), body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": res.History, "sent": res.Sent, "errors": res.Errors})
}

func (s *Server) listHistory(c *gin.Context) {
	rows, err := s.History.List(c.Request.Context(), history.Filter{
		ProviderID: queryUint(c, "provider_id"),
		ContactID:  queryUint(c, "contact_id"),
		CampaignID: queryUint(c, "campaign_id"),
		Status:     c.Query("status"),
		Limit:      queryInt(c, "limit"),
		Offset:     queryInt(c, "offset"),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) listThreads(c *gin.Context) {
	list, err := s.Threads.List(c.Request.Context(), queryUint(c, "provider_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) getThread(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	t, err := s.Threads.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) threadMessages(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	msgs, err := s.Threads.Messages(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}
