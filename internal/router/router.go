package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/dyaksa-edu/cbt-portal/internal/config"
	"github.com/dyaksa-edu/cbt-portal/internal/handler"
	"github.com/dyaksa-edu/cbt-portal/internal/middleware"
	"github.com/dyaksa-edu/cbt-portal/internal/response"
	"github.com/dyaksa-edu/cbt-portal/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	Exam          *handler.ExamHandler
	Question      *handler.QuestionHandler
	StudentPortal *handler.StudentPortalHandler
	WS            *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/student/register", handlers.Auth.RegisterStudent)
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.GetStudentProfile)
		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/dashboard", handlers.StudentPortal.Dashboard)
		studentAPI.POST("/exams/:exam_id/attempts", handlers.StudentPortal.StartAttempt)
		studentAPI.GET("/attempts/:attempt_id/paper", handlers.StudentPortal.GetExamPaper)
		studentAPI.GET("/attempts/:attempt_id/state", handlers.StudentPortal.GetState)
		studentAPI.PUT("/attempts/:attempt_id/answers", handlers.StudentPortal.SaveAnswer)
		studentAPI.POST("/attempts/:attempt_id/submit", handlers.StudentPortal.Submit)
		studentAPI.GET("/attempts/:attempt_id/result", handlers.StudentPortal.GetResult)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		// Exam lifecycle
		adminAPI.GET("/exams", handlers.Exam.List)
		adminAPI.POST("/exams", handlers.Exam.Create)
		adminAPI.GET("/exams/:exam_id", handlers.Exam.Get)
		adminAPI.PUT("/exams/:exam_id", handlers.Exam.Update)
		adminAPI.DELETE("/exams/:exam_id", handlers.Exam.Delete)
		adminAPI.POST("/exams/:exam_id/schedule", handlers.Exam.Schedule)
		adminAPI.POST("/exams/:exam_id/activate", handlers.Exam.Activate)
		adminAPI.POST("/exams/:exam_id/complete", handlers.Exam.Complete)

		// Question management
		adminAPI.GET("/exams/:exam_id/questions", handlers.Question.ListByExam)
		adminAPI.POST("/exams/:exam_id/questions", handlers.Question.Add)
		adminAPI.PUT("/exams/:exam_id/questions", handlers.Question.ReplaceAll)

		// Results and analytics
		adminAPI.GET("/exams/:exam_id/results", handlers.Exam.ListResults)
		adminAPI.GET("/exams/:exam_id/analytics", handlers.Exam.GetAnalytics)
		adminAPI.GET("/exams/:exam_id/security-counts", handlers.Exam.GetSecurityCounts)
		adminAPI.GET("/attempts/:attempt_id/security-events", handlers.Exam.GetSecurityEvents)

		// Session administration
		adminAPI.POST("/students/:student_id/reset-session", handlers.Auth.ResetStudentSession)
	}

	return router
}
