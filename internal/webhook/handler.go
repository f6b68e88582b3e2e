package webhook

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/chatbot"
	"whatsapp-suite/internal/models"
	"whatsapp-suite/internal/providers"
)

// Handler exposes the Ingester on /whatsapp/webhook/:provider_id. Meta only
// needs a 200, so failures are reported in the JSON body.
type Handler struct {
	ingester  *Ingester
	providers *providers.Service
	chatbots  *chatbot.Store
	log       *zap.Logger
}

func NewHandler(ingester *Ingester, providers *providers.Service, chatbots *chatbot.Store, log *zap.Logger) *Handler {
	return &Handler{
		ingester:  ingester,
		providers: providers,
		chatbots:  chatbots,
		log:       log.Named("webhook"),
	}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/whatsapp/webhook/:provider_id", h.VerifyWebhook)
	r.POST("/whatsapp/webhook/:provider_id", h.HandleMessage)
}

func (h *Handler) provider(c *gin.Context) *models.ProviderConfig {
	id, err := strconv.ParseUint(c.Param("provider_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid configuration"})
		return nil
	}
	p, err := h.providers.Get(c.Request.Context(), uint(id))
	if err != nil {
		h.log.Error("WhatsApp configuration not found", zap.Uint64("provider_id", id), zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid configuration"})
		return nil
	}
	return p
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	defer h.recover(c)
	p := h.provider(c)
	if p == nil {
		return
	}
	challenge, err := h.ingester.Verify(p, c.Query("hub.mode"), c.Query("hub.challenge"), c.Query("hub.verify_token"))
	if err != nil {
		h.log.Warn("Webhook verification failed", zap.Uint("provider_id", p.ID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, challenge)
}

func (h *Handler) HandleMessage(c *gin.Context) {
	defer h.recover(c)
	p := h.provider(c)
	if p == nil {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}

	var opts Options
	if h.chatbots != nil {
		bot, err := h.chatbots.Active(c.Request.Context())
		if err != nil {
			h.log.Error("Failed to load active chatbot", zap.Error(err))
		}
		opts.Chatbot = bot
	}

	if err := h.ingester.Process(c.Request.Context(), p, body, opts); err != nil {
		if apperr.Is(err, apperr.KindPayload) {
			h.log.Warn("Rejected webhook payload", zap.Uint("provider_id", p.ID), zap.Error(err))
		} else {
			h.log.Error("Error processing webhook notification", zap.Uint("provider_id", p.ID), zap.Error(err))
		}
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func (h *Handler) recover(c *gin.Context) {
	if r := recover(); r != nil {
		h.log.Error("Panic while handling webhook", zap.Any("panic", r), zap.Stack("stack"))
		c.JSON(http.StatusOK, gin.H{"error": fmt.Sprint(r)})
	}
}
