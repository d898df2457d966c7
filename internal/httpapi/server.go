package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/resonance/internal/webhook"
	"github.com/MarkoPoloResearchLab/resonance/pkg/resonance"
)

// SignatureHeader carries the gateway's hex-encoded HMAC over the raw body.
const SignatureHeader = "X-Resonance-Signature"

// Run boots the HTTP surface and blocks until ctx is cancelled or the
// listener fails.
func Run(ctx context.Context, cfg Config, service *resonance.Service, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	settlements, err := webhook.NewHandler(service, cfg.WebhookSecret, logger)
	if err != nil {
		return err
	}

	router := NewRouter(cfg, service, settlements, logger)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("resonance api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter wires all routes onto a gin engine.
func NewRouter(cfg Config, service *resonance.Service, settlements *webhook.Handler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		logger:      logger,
		service:     service,
		settlements: settlements,
		cfg:         cfg,
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/accounts", handler.handleRegisterAccount)
	api.POST("/moments", handler.handlePublishMoment)
	api.POST("/subscribe", handler.handleSubscribe)
	api.POST("/unlock", handler.handleUnlock)
	api.POST("/tip", handler.handleTip)
	api.POST("/withdraw", handler.handleWithdraw)
	api.POST("/boost", handler.handleBoost)
	api.GET("/accounts/:id/balance", handler.handleBalance)
	api.GET("/accounts/:id/entries", handler.handleEntries)
	api.GET("/moments/:id/access", handler.handleAccess)

	router.POST("/webhooks/resonance", handler.handleSettlement)

	return router
}

type httpHandler struct {
	logger      *zap.Logger
	service     *resonance.Service
	settlements *webhook.Handler
	cfg         Config
}

func (handler *httpHandler) handleRegisterAccount(ctx *gin.Context) {
	var request registerAccountRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	accountID, err := resonance.NewAccountID(request.AccountID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	persona, err := resonance.ParsePersona(request.Persona)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	account := resonance.Account{
		ID:      accountID,
		Persona: persona,
		Balance: resonance.ZeroAmount,
	}
	if request.ReferredBy != "" {
		referrerID, referrerErr := resonance.NewAccountID(request.ReferredBy)
		if referrerErr != nil {
			handler.respondError(ctx, referrerErr)
			return
		}
		account.ReferredBy = &referrerID
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.RegisterAccount(requestCtx, account); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"account_id": accountID.String()})
}

func (handler *httpHandler) handlePublishMoment(ctx *gin.Context) {
	var request publishMomentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	momentID, err := resonance.NewMomentID(request.MomentID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	creatorID, err := resonance.NewAccountID(request.CreatorID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	price, err := resonance.ParseAmount(request.Price)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	tier, err := resonance.ParseTier(request.RequiredTier)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	kind, err := resonance.ParseMomentKind(request.Kind)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	moment := resonance.Moment{
		ID:           momentID,
		CreatorID:    creatorID,
		Price:        price,
		RequiredTier: tier,
		Kind:         kind,
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.PublishMoment(requestCtx, moment); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"moment_id": momentID.String()})
}

func (handler *httpHandler) handleSubscribe(ctx *gin.Context) {
	var request subscribeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	fanID, err := resonance.NewAccountID(request.FanID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	creatorID, err := resonance.NewAccountID(request.CreatorID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	price, err := resonance.ParseAmount(request.Price)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	key, err := resonance.NewIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	metadata, err := resonance.NewMetadataJSON(request.Metadata)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.Subscribe(requestCtx, fanID, creatorID, request.TierLabel, price, key, metadata); err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithBalance(ctx, fanID)
}

func (handler *httpHandler) handleUnlock(ctx *gin.Context) {
	var request unlockRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	fanID, err := resonance.NewAccountID(request.FanID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	momentID, err := resonance.NewMomentID(request.MomentID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	key, err := resonance.NewIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	metadata, err := resonance.NewMetadataJSON(request.Metadata)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.Unlock(requestCtx, fanID, momentID, key, metadata); err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithBalance(ctx, fanID)
}

func (handler *httpHandler) handleTip(ctx *gin.Context) {
	var request tipRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	fanID, err := resonance.NewAccountID(request.FanID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	creatorID, err := resonance.NewAccountID(request.CreatorID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	amount, err := resonance.ParseAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	key, err := resonance.NewIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	metadata, err := resonance.NewMetadataJSON(request.Metadata)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.Tip(requestCtx, fanID, creatorID, amount, key, metadata); err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithBalance(ctx, fanID)
}

func (handler *httpHandler) handleWithdraw(ctx *gin.Context) {
	var request withdrawRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	creatorID, err := resonance.NewAccountID(request.CreatorID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	amount, err := resonance.ParseAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	key, err := resonance.NewIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	metadata, err := resonance.NewMetadataJSON(request.Metadata)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.Withdraw(requestCtx, creatorID, amount, key, metadata); err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithBalance(ctx, creatorID)
}

func (handler *httpHandler) handleBoost(ctx *gin.Context) {
	var request boostRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	creatorID, err := resonance.NewAccountID(request.CreatorID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	momentID, err := resonance.NewMomentID(request.MomentID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	amount, err := resonance.ParseAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	key, err := resonance.NewIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	metadata, err := resonance.NewMetadataJSON(request.Metadata)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.Boost(requestCtx, creatorID, momentID, amount, key, metadata); err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithBalance(ctx, creatorID)
}

func (handler *httpHandler) handleBalance(ctx *gin.Context) {
	accountID, err := resonance.NewAccountID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithBalance(ctx, accountID)
}

func (handler *httpHandler) handleEntries(ctx *gin.Context) {
	accountID, err := resonance.NewAccountID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	before := time.Now().UTC().Add(time.Second).Unix()
	if raw := ctx.Query("before"); raw != "" {
		parsed, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_before", "before must be a unix timestamp"))
			return
		}
		before = parsed
	}
	limit := defaultHistoryLimit
	if raw := ctx.Query("limit"); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed <= 0 {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_limit", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entries, err := handler.service.Entries(requestCtx, accountID, before, limit)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, entryPayload{
			EntryID:        entry.EntryID,
			SenderID:       entry.SenderID.String(),
			ReceiverID:     entry.ReceiverID.String(),
			Amount:         entry.Amount.String(),
			CreatorCut:     entry.CreatorCut.String(),
			PlatformCut:    entry.PlatformCut.String(),
			ReferralCut:    entry.ReferralCut.String(),
			Type:           entry.Type.String(),
			Status:         entry.Status.String(),
			IdempotencyKey: entry.IdempotencyKey.String(),
			Metadata:       entry.Metadata.String(),
			CreatedUnixUTC: entry.CreatedUnixUTC,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": payload})
}

func (handler *httpHandler) handleAccess(ctx *gin.Context) {
	momentID, err := resonance.NewMomentID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	viewerID, err := resonance.NewAccountID(ctx.Query("viewer"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	decision, err := handler.service.Access(requestCtx, viewerID, momentID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"locked":      decision.Locked,
		"viewer_tier": decision.ViewerTier.String(),
	})
}

func (handler *httpHandler) handleSettlement(ctx *gin.Context) {
	body, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "unreadable body"))
		return
	}
	signature := ctx.GetHeader(SignatureHeader)
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.settlements.Handle(requestCtx, body, signature); err != nil {
		if errors.Is(err, webhook.ErrMalformedNotification) {
			ctx.JSON(http.StatusBadRequest, errorResponse("malformed_notification", "unparseable notification"))
			return
		}
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) respondWithBalance(ctx *gin.Context, accountID resonance.AccountID) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	balance, err := handler.service.Balance(requestCtx, accountID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account_id": accountID.String(),
		"balance":    balance.String(),
	})
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.Error(err))
		ctx.JSON(status, errorResponse(code, "unexpected failure"))
		return
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

type registerAccountRequest struct {
	AccountID  string `json:"account_id"`
	Persona    string `json:"persona"`
	ReferredBy string `json:"referred_by"`
}

type publishMomentRequest struct {
	MomentID     string `json:"moment_id"`
	CreatorID    string `json:"creator_id"`
	Price        string `json:"price"`
	RequiredTier string `json:"required_tier"`
	Kind         string `json:"kind"`
}

type subscribeRequest struct {
	FanID          string `json:"fan_id"`
	CreatorID      string `json:"creator_id"`
	TierLabel      string `json:"tier_label"`
	Price          string `json:"price"`
	IdempotencyKey string `json:"idempotency_key"`
	Metadata       string `json:"metadata"`
}

type unlockRequest struct {
	FanID          string `json:"fan_id"`
	MomentID       string `json:"moment_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Metadata       string `json:"metadata"`
}

type tipRequest struct {
	FanID          string `json:"fan_id"`
	CreatorID      string `json:"creator_id"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
	Metadata       string `json:"metadata"`
}

type withdrawRequest struct {
	CreatorID      string `json:"creator_id"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
	Metadata       string `json:"metadata"`
}

type boostRequest struct {
	CreatorID      string `json:"creator_id"`
	MomentID       string `json:"moment_id"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
	Metadata       string `json:"metadata"`
}

type entryPayload struct {
	EntryID        string `json:"entry_id"`
	SenderID       string `json:"sender_id"`
	ReceiverID     string `json:"receiver_id"`
	Amount         string `json:"amount"`
	CreatorCut     string `json:"creator_cut"`
	PlatformCut    string `json:"platform_cut"`
	ReferralCut    string `json:"referral_cut"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	IdempotencyKey string `json:"idempotency_key"`
	Metadata       string `json:"metadata"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}
