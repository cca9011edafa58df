package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type listRequestsQuery struct {
	ListOptions
	SortRaw string `form:"sort"`
	Topic   string `form:"topic"`
	Status  string `form:"status"`
}

type developerModeBody struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type errorBody struct {
	Error string `json:"error"`
}

// AdminAPI is the operator facing HTTP API.
type AdminAPI struct {
	requests  *RequestStore
	sessions  *SessionStore
	networks  *NetworkStore
	state     *WalletState
	processor *RequestProcessor
	logger    Logger
}

func NewAdminAPI(requests *RequestStore, sessions *SessionStore, networks *NetworkStore, state *WalletState, processor *RequestProcessor, logger Logger) *AdminAPI {
	return &AdminAPI{
		requests:  requests,
		sessions:  sessions,
		networks:  networks,
		state:     state,
		processor: processor,
		logger:    logger.NewSystem("admin-api"),
	}
}

// Router builds the gin engine serving the API.
func (a *AdminAPI) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", a.handleHealth)

	v1 := router.Group("/api/v1")
	v1.GET("/requests", a.handleListRequests)
	v1.GET("/requests/pending", a.handlePendingRequests)
	v1.GET("/sessions", a.handleListSessions)
	v1.GET("/networks", a.handleListNetworks)
	v1.GET("/settings", a.handleGetSettings)
	v1.PUT("/settings/developer-mode", a.handleSetDeveloperMode)

	return router
}

func (a *AdminAPI) handleHealth(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *AdminAPI) handleListRequests(ctx *gin.Context) {
	var query listRequestsQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		ctx.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	sort, err := ParseSortType(query.SortRaw)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	options := query.ListOptions
	options.Sort = sort

	records, err := a.requests.List(RequestFilter{Topic: query.Topic, Status: RequestStatus(query.Status)}, &options)
	if err != nil {
		a.internalError(ctx, "failed to list requests", err)
		return
	}
	if records == nil {
		records = []RequestRecord{}
	}
	ctx.JSON(http.StatusOK, gin.H{"requests": records})
}

func (a *AdminAPI) handlePendingRequests(ctx *gin.Context) {
	records, err := a.requests.Pending()
	if err != nil {
		a.internalError(ctx, "failed to load pending requests", err)
		return
	}
	if records == nil {
		records = []RequestRecord{}
	}
	ctx.JSON(http.StatusOK, gin.H{
		"requests":   records,
		"requestIds": a.processor.PendingApprovals(),
	})
}

func (a *AdminAPI) handleListSessions(ctx *gin.Context) {
	var options ListOptions
	if err := ctx.ShouldBindQuery(&options); err != nil {
		ctx.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	records, err := a.sessions.List(&options)
	if err != nil {
		a.internalError(ctx, "failed to list sessions", err)
		return
	}
	if records == nil {
		records = []SessionRecord{}
	}
	ctx.JSON(http.StatusOK, gin.H{"sessions": records})
}

func (a *AdminAPI) handleListNetworks(ctx *gin.Context) {
	networks, err := a.networks.List()
	if err != nil {
		a.internalError(ctx, "failed to list networks", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"networks": networks})
}

func (a *AdminAPI) handleGetSettings(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"settings":      a.state.Settings(),
		"activeAccount": a.state.ActiveAccount(),
	})
}

func (a *AdminAPI) handleSetDeveloperMode(ctx *gin.Context) {
	var body developerModeBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := a.state.SetDeveloperMode(*body.Enabled); err != nil {
		a.internalError(ctx, "failed to update developer mode", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"settings": a.state.Settings()})
}

func (a *AdminAPI) internalError(ctx *gin.Context, msg string, err error) {
	a.logger.Error(msg, "path", ctx.FullPath(), "error", err)
	ctx.JSON(http.StatusInternalServerError, errorBody{Error: msg})
}
