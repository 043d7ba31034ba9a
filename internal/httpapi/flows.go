package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"brokerage-gateway/internal/logging"
	"brokerage-gateway/internal/onboarding/domain"
)

// challengeView is a challenge as shown to the client. The backend request id is not exposed.
type challengeView struct {
	Channel         domain.Channel `json:"channel"`
	Target          string         `json:"target"`
	SentAt          time.Time      `json:"sent_at"`
	Verified        bool           `json:"verified"`
	CanSendOTP      bool           `json:"can_send_otp"`
	CanVerify       bool           `json:"can_verify"`
	ResendInSeconds int            `json:"resend_in_seconds"`
}

type flowView struct {
	ID           string                           `json:"id"`
	Kind         domain.Kind                      `json:"kind"`
	Phase        domain.Phase                     `json:"phase"`
	Draft        domain.Draft                     `json:"draft"`
	DraftVersion int                              `json:"draft_version"`
	Channels     map[domain.Channel]challengeView `json:"channels"`
	Notice       string                           `json:"notice,omitempty"`
	FieldErrors  domain.FieldErrors               `json:"field_errors,omitempty"`
	Submitting   bool                             `json:"submitting"`
	CanSubmit    bool                             `json:"can_submit"`
	ClientID     string                           `json:"client_id,omitempty"`
	UpdatedAt    time.Time                        `json:"updated_at"`
}

func snapshot(f *domain.Flow, now time.Time) flowView {
	v := flowView{
		ID:           f.ID,
		Kind:         f.Kind,
		Phase:        f.Phase,
		Draft:        f.Draft,
		DraftVersion: f.DraftVersion,
		Channels:     make(map[domain.Channel]challengeView, 2),
		Notice:       f.Notice,
		FieldErrors:  f.FieldErrors,
		Submitting:   f.Submitting,
		CanSubmit:    f.CanSubmit(),
		UpdatedAt:    f.UpdatedAt,
	}
	if f.Bootstrap != nil {
		v.ClientID = f.Bootstrap.ClientID
	}
	for _, ch := range f.RequiredChannels() {
		c := f.Challenges[ch]
		left := f.ResendRemaining(ch, now)
		v.Channels[ch] = challengeView{
			Channel:         ch,
			Target:          maskTarget(ch, c.Target),
			SentAt:          c.SentAt,
			Verified:        c.Verified,
			CanSendOTP:      f.CanSendOTP(ch, now),
			CanVerify:       f.AwaitingVerification(ch) && f.Phase != domain.PhaseSignedIn,
			ResendInSeconds: int((left + time.Second - 1) / time.Second),
		}
	}
	return v
}

func maskTarget(ch domain.Channel, t string) string {
	if t == "" || ch == domain.ChannelEmail {
		return t
	}
	return logging.MaskMobile(t)
}

// flowBody returns the snapshot of f for error responses, or nil when there is no flow.
func (a *api) flowBody(f *domain.Flow) gin.H {
	if f == nil {
		return nil
	}
	return gin.H{"flow": snapshot(f, a.Flows.Now())}
}

func (a *api) respondFlow(c *gin.Context, f *domain.Flow, err error) {
	if err != nil {
		a.writeError(c, err, a.flowBody(f))
		return
	}
	c.JSON(http.StatusOK, gin.H{"flow": snapshot(f, a.Flows.Now())})
}

type startFlowRequest struct {
	Kind domain.Kind `json:"kind" binding:"required"`
}

func (a *api) startFlow(c *gin.Context) {
	var req startFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	f, err := a.Flows.Start(c.Request.Context(), req.Kind)
	if err != nil {
		a.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"flow": snapshot(f, a.Flows.Now())})
}

func (a *api) getFlow(c *gin.Context) {
	f, err := a.Flows.Get(c.Request.Context(), c.Param("id"))
	a.respondFlow(c, f, err)
}

func (a *api) abandonFlow(c *gin.Context) {
	if err := a.Flows.Abandon(c.Request.Context(), c.Param("id")); err != nil {
		a.writeError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *api) updateDraft(c *gin.Context) {
	var d domain.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		badBody(c, err)
		return
	}
	f, err := a.Flows.UpdateDraft(c.Request.Context(), c.Param("id"), d)
	a.respondFlow(c, f, err)
}

func (a *api) checkIdentity(c *gin.Context) {
	f, err := a.Flows.CheckIdentity(c.Request.Context(), c.Param("id"))
	a.respondFlow(c, f, err)
}

func (a *api) sendOTP(c *gin.Context) {
	ch, err := domain.ParseChannel(c.Param("channel"))
	if err != nil {
		a.writeError(c, err, nil)
		return
	}
	f, err := a.Flows.SendOTP(c.Request.Context(), c.Param("id"), ch)
	a.respondFlow(c, f, err)
}

type verifyOTPRequest struct {
	Code string `json:"code"`
}

func (a *api) verifyOTP(c *gin.Context) {
	ch, err := domain.ParseChannel(c.Param("channel"))
	if err != nil {
		a.writeError(c, err, nil)
		return
	}
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	f, err := a.Flows.VerifyOTP(c.Request.Context(), c.Param("id"), ch, req.Code)
	a.respondFlow(c, f, err)
}

func (a *api) submit(c *gin.Context) {
	id := c.Param("id")
	res, err := a.Flows.Submit(c.Request.Context(), id)
	if err != nil {
		// The flow carries the submit notice.
		f, _ := a.Flows.Get(c.Request.Context(), id)
		a.writeError(c, err, a.flowBody(f))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"flow":         snapshot(res.Flow, a.Flows.Now()),
		"access_token": res.AccessToken,
		"token_type":   "Bearer",
		"expires_at":   res.ExpiresAt,
	})
}

const defaultEventLimit = 50

func (a *api) flowEvents(c *gin.Context) {
	limit := defaultEventLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}
	id := c.Param("id")
	if _, err := a.Flows.Get(c.Request.Context(), id); err != nil {
		a.writeError(c, err, nil)
		return
	}
	events, err := a.Events.ListByFlow(c.Request.Context(), id, int32(limit))
	if err != nil {
		a.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
