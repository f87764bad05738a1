package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trash2cash/trash2cash-api/internal/middleware"
	"github.com/trash2cash/trash2cash-api/internal/models"
)

// Handlers groups everything mounted under the API prefix.
type Handlers struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Submissions *SubmissionHandler
	Uploads     *UploadHandler
	Rewards     *RewardHandler
	Stats       *StatsHandler
	Zones       *ZoneHandler
	Challenges  *ChallengeHandler
}

// RouteDeps carries the middleware collaborators.
type RouteDeps struct {
	Auth   middleware.Authenticator
	Audit  middleware.AuditWriter
	Logger *zap.Logger
}

// RegisterRoutes mounts the API on api.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, deps RouteDeps) {
	citizen := middleware.RequireRoles(models.RoleCitizen)
	worker := middleware.RequireRoles(models.RoleMunicipalWorker)
	reviewer := middleware.RequireRoles(models.RoleMunicipalWorker, models.RoleAdmin)
	admin := middleware.RequireRoles(models.RoleAdmin)

	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)
	api.GET("/uploads/:token", h.Uploads.Serve)

	authed := api.Group("")
	authed.Use(middleware.JWT(deps.Auth))

	authed.POST("/auth/logout", h.Auth.Logout)
	authed.GET("/auth/me", h.Auth.Me)
	authed.PATCH("/auth/me", h.Auth.UpdateMe)
	authed.POST("/auth/change-password", h.Auth.ChangePassword)

	authed.POST("/uploads", citizen, h.Uploads.Upload)

	authed.POST("/submissions", citizen, h.Submissions.Submit)
	authed.GET("/submissions/mine", citizen, h.Submissions.Mine)
	authed.GET("/submissions/queue", reviewer, h.Submissions.Queue)
	authed.GET("/submissions/verified", worker, h.Submissions.Verified)
	authed.GET("/submissions", admin, h.Submissions.List)
	authed.GET("/submissions/:id", h.Submissions.Get)
	authed.POST("/submissions/:id/verify", worker, h.Submissions.Verify)
	authed.POST("/submissions/:id/dispute", citizen, h.Submissions.Dispute)

	authed.GET("/rewards/transactions", citizen, h.Rewards.Transactions)
	authed.GET("/rewards/statement", citizen,
		middleware.Audit(deps.Audit, deps.Logger, models.AuditActionStatement, "reward_transactions"),
		h.Rewards.Statement)
	authed.GET("/vouchers", h.Rewards.Vouchers)
	authed.POST("/vouchers/:id/redeem", citizen, h.Rewards.Redeem)

	authed.GET("/stats/citizen", citizen, h.Stats.Citizen)
	authed.GET("/stats/municipal", worker, h.Stats.Municipal)
	authed.GET("/stats/global", h.Stats.Global)
	authed.GET("/leaderboard", h.Stats.Leaderboard)

	authed.GET("/zones", h.Zones.List)
	authed.GET("/zones/mine", middleware.RequireRoles(models.RoleCitizen, models.RoleMunicipalWorker), h.Zones.Mine)
	authed.POST("/zones/:id/adopt", citizen, h.Zones.Adopt)

	authed.GET("/challenges", h.Challenges.List)
	authed.POST("/challenges/:id/join", citizen, h.Challenges.Join)

	adm := authed.Group("/admin", admin)
	adm.GET("/users", h.Users.List)
	adm.GET("/workers/pending", h.Users.PendingWorkers)
	adm.POST("/workers/:id/approve", h.Users.ApproveWorker)
	adm.POST("/vouchers", h.Rewards.CreateVoucher)
	adm.POST("/zones", h.Zones.Create)
	adm.POST("/zones/:id/assign", h.Zones.Assign)
	adm.POST("/challenges", h.Challenges.Create)
	adm.POST("/rewards/adjust", h.Rewards.Adjust)
	adm.GET("/rewards/reconcile/:userId", h.Rewards.Reconcile)
}
