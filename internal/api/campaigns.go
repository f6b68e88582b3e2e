package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"whatsapp-suite/internal/models"
)

type campaignRequest struct {
	Name            string `json:"name" binding:"required"`
	RecipientSource string `json:"recipient_source"`
	ContactIDs      []uint `json:"contact_ids"`
	MessagingListID *uint  `json:"messaging_list_id"`
	Filter          string `json:"filter"`
	TemplateID      *uint  `json:"template_id"`
	ProviderID      *uint  `json:"provider_id"`
}

type scheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

type noteRequest struct {
	Body string `json:"body" binding:"required"`
}

type listRequest struct {
	Name    string               `json:"name" binding:"required"`
	Kind    string               `json:"kind"`
	Entries []models.ListContact `json:"entries"`
}

func (s *Server) registerCampaigns(r *gin.RouterGroup) {
	g := r.Group("/campaigns")
	g.GET("", s.listCampaigns)
	g.POST("", s.createCampaign)
	g.POST("/sweep", s.sweepCampaigns)
	g.GET("/:id", s.getCampaign)
	g.DELETE("/:id", s.deleteCampaign)
	g.POST("/:id/queue", s.queueCampaign)
	g.POST("/:id/schedule", s.scheduleCampaign)
	g.POST("/:id/cancel", s.cancelCampaign)
	g.POST("/:id/notes", s.addCampaignNote)
	g.GET("/:id/recipients", s.campaignRecipients)
	g.GET("/:id/stats", s.campaignStats)
	g.GET("/:id/contacts", s.campaignContacts)

	l := r.Group("/lists")
	l.GET("", s.listLists)
	l.POST("", s.createList)
	l.GET("/:id", s.getList)
	l.DELETE("/:id", s.deleteList)
	l.POST("/:id/entries", s.addListEntries)
	l.PUT("/:id/contacts", s.setListContacts)
}

func (s *Server) listCampaigns(c *gin.Context) {
	list, err := s.Campaigns.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) createCampaign(c *gin.Context) {
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	campaign := &models.Campaign{
		Name:            req.Name,
		RecipientSource: req.RecipientSource,
		MessagingListID: req.MessagingListID,
		Filter:          req.Filter,
		TemplateID:      req.TemplateID,
		ProviderID:      req.ProviderID,
	}
	for _, id := range req.ContactIDs {
		contact, err := s.Contacts.Get(ctx, id)
		if err != nil {
			s.fail(c, err)
			return
		}
		campaign.Contacts = append(campaign.Contacts, *contact)
	}
	if err := s.Campaigns.Create(ctx, campaign); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

func (s *Server) getCampaign(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	campaign, err := s.Campaigns.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (s *Server) deleteCampaign(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.Campaigns.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) queueCampaign(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	campaign, err := s.Campaigns.Queue(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (s *Server) scheduleCampaign(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	campaign, err := s.Campaigns.Schedule(c.Request.Context(), id, req.ScheduledAt)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (s *Server) cancelCampaign(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	campaign, err := s.Campaigns.Cancel(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (s *Server) addCampaignNote(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := s.Campaigns.Get(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.Campaigns.AddNote(ctx, id, req.Body); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) campaignRecipients(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	campaign, err := s.Campaigns.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	recipients, err := s.Campaigns.Recipients(ctx, campaign)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(recipients))
	for _, r := range recipients {
		row := gin.H{"name": r.Name, "number": r.Number}
		if r.Contact != nil {
			row["contact_id"] = r.Contact.ID
		}
		out = append(out, row)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) campaignStats(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	st, err := s.Campaigns.Stats(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) campaignContacts(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	summary, err := s.Campaigns.ContactSummary(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// sweepCampaigns runs the scheduler job on demand.
func (s *Server) sweepCampaigns(c *gin.Context) {
	n, err := s.Campaigns.Sweep(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": n})
}

func (s *Server) listLists(c *gin.Context) {
	list, err := s.Lists.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) createList(c *gin.Context) {
	var req listRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	list := &models.MessagingList{Name: req.Name, Kind: req.Kind}
	if err := s.Lists.Create(ctx, list); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.Lists.AddEntries(ctx, list.ID, req.Entries); err != nil {
		s.fail(c, err)
		return
	}
	s.respondList(c, list.ID, http.StatusCreated)
}

func (s *Server) respondList(c *gin.Context, id uint, status int) {
	list, err := s.Lists.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(status, list)
}

func (s *Server) getList(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	s.respondList(c, id, http.StatusOK)
}

func (s *Server) deleteList(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.Lists.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addListEntries(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var entries []models.ListContact
	if err := c.ShouldBindJSON(&entries); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.Lists.AddEntries(c.Request.Context(), id, entries); err != nil {
		s.fail(c, err)
		return
	}
	s.respondList(c, id, http.StatusOK)
}

func (s *Server) setListContacts(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.Lists.SetContacts(c.Request.Context(), id, req.IDs); err != nil {
		s.fail(c, err)
		return
	}
	s.respondList(c, id, http.StatusOK)
}
