package public

import (
	"errors"
	"io"
	"strings"

	"github.com/partner-ledger/internal/http/response"
	"github.com/partner-ledger/internal/payout"
	"github.com/partner-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	webhookLogValueLimit = 256
	webhookMaxBodyBytes  = 1 << 20
)

// PayoutWebhook 打款渠道回调，验签后投递到队列处理
func (h *Handler) PayoutWebhook(c *gin.Context) {
	log := requestLog(c)
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookMaxBodyBytes))
	if err != nil {
		log.Warnw("payout_webhook_body_read_failed", "provider", provider, "error", err)
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	log.Infow("payout_webhook_received",
		"provider", provider,
		"client_ip", c.ClientIP(),
		"body_size", len(body),
		"signature", truncateWebhookLogValue(c.GetHeader("Stripe-Signature")),
	)

	event, err := h.CommissionService.ParsePayoutWebhook(provider, body, c.Request.Header)
	if err != nil {
		if errors.Is(err, payout.ErrEventIgnored) {
			log.Infow("payout_webhook_ignored", "provider", provider, "reason", err.Error())
			response.Success(c, gin.H{
				"accepted": true,
				"updated":  false,
			})
			return
		}
		log.Warnw("payout_webhook_parse_failed", "provider", provider, "error", err)
		respondServiceError(c, err, "error.bad_request")
		return
	}

	if err := h.CommissionService.DispatchProcessorEvent(c.Request.Context(), event); err != nil {
		// 无对应记录或回调已失效时渠道重试也无法成功，按已接收应答
		if errors.Is(err, service.ErrCommissionNotFound) || errors.Is(err, service.ErrStatusConflict) || errors.Is(err, payout.ErrEventIgnored) {
			log.Warnw("payout_webhook_unmatched",
				"provider", provider,
				"event_id", event.EventID,
				"processor_ref", event.ProcessorRef,
				"error", err,
			)
			response.Success(c, gin.H{
				"accepted": true,
				"updated":  false,
			})
			return
		}
		log.Warnw("payout_webhook_dispatch_failed",
			"provider", provider,
			"event_id", event.EventID,
			"processor_ref", event.ProcessorRef,
			"error", err,
		)
		respondServiceError(c, err, "error.internal")
		return
	}
	log.Infow("payout_webhook_accepted",
		"provider", provider,
		"event_id", event.EventID,
		"outcome", event.Outcome,
		"processor_ref", event.ProcessorRef,
	)
	response.Success(c, gin.H{
		"accepted": true,
		"event_id": event.EventID,
		"outcome":  event.Outcome,
	})
}

func truncateWebhookLogValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) <= webhookLogValueLimit {
		return raw
	}
	return raw[:webhookLogValueLimit] + "...(truncated)"
}
