package router

import (
	"log/slog"
	"net/http"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/attendance"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/config"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/handler"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/middleware"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter configures the Gin engine and the JSON API.
func SetupRouter(cfg *config.Config, db *gorm.DB, svc *attendance.Service, log *slog.Logger) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestLogger(log),
		middleware.Timeout(cfg.Server.RequestTimeout()),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ====== API ======
	api := r.Group("/api")

	jwtSecret := cfg.JWT.Secret
	// login endpoints (no auth)
	authHandler := handler.NewAuthHandler(db, jwtSecret, cfg.JWT.Issuer, cfg.JWT.ExpireHours)
	api.POST("/login/admin", authHandler.LoginAdmin)
	api.POST("/login/student", authHandler.LoginStudent)
	api.POST("/login/juror", authHandler.LoginJuror)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(jwtSecret, db))
	protected.GET("/me", handler.GetMe(db))
	protected.POST("/logout", authHandler.Logout)

	// admin
	adminHandler := handler.NewAdminHandler(db)
	admin := protected.Group("/admin", middleware.RequireRole(models.RoleAdmin))
	admin.PUT("/password", handler.ChangePassword(db, cfg.Security.BcryptCost))
	admin.GET("/students", adminHandler.ListStudents)
	admin.POST("/students", adminHandler.CreateStudent)
	admin.GET("/students/:id", adminHandler.GetStudent)
	admin.PUT("/students/:id", adminHandler.UpdateStudent)
	admin.DELETE("/students/:id", adminHandler.DeleteStudent)
	admin.GET("/jurors", adminHandler.ListJurors)
	admin.POST("/jurors", adminHandler.CreateJuror)
	admin.GET("/jurors/:id", adminHandler.GetJuror)
	admin.PUT("/jurors/:id", adminHandler.UpdateJuror)
	admin.DELETE("/jurors/:id", adminHandler.DeleteJuror)
	admin.GET("/articles", adminHandler.ListArticles)
	admin.POST("/articles", adminHandler.CreateArticle)
	admin.GET("/articles/:id", adminHandler.GetArticle)
	admin.PUT("/articles/:id", adminHandler.UpdateArticle)
	admin.DELETE("/articles/:id", adminHandler.DeleteArticle)
	admin.POST("/articles/:id/jurors", adminHandler.AssignJurors)

	// juror
	evalHandler := handler.NewEvaluationHandler(db)
	juror := protected.Group("/juror", middleware.RequireRole(models.RoleJuror))
	juror.GET("/my-articles", evalHandler.MyArticles)
	juror.GET("/articles/:id", evalHandler.ArticleDetail)
	juror.GET("/my-evaluations", evalHandler.MyEvaluations)
	juror.POST("/evaluations", evalHandler.Create)
	juror.PUT("/evaluations/:id", evalHandler.Update)
	juror.DELETE("/evaluations/:id", evalHandler.Delete)

	// student: speakers and listeners
	qrHandler := handler.NewQRHandler(db, svc)
	studentHandler := handler.NewStudentHandler(db, svc)
	student := protected.Group("/student", middleware.RequireRole(models.RoleStudent))
	student.GET("/my-article", studentHandler.MyArticle)
	student.GET("/available-articles", studentHandler.AvailableArticles)
	student.GET("/my-attendances", studentHandler.MyAttendances)

	student.POST("/articles/:id/qr", qrHandler.IssueToken)
	student.GET("/articles/:id/qr-status", qrHandler.Status)
	student.POST("/generate-qr", qrHandler.GenerateQR)
	student.GET("/qr-status", qrHandler.MyStatus)
	student.POST("/scan-qr", qrHandler.Scan)
	student.GET("/my-attendees", qrHandler.MyAttendees)

	return r
}
