package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"qbank-server/cache"
	"qbank-server/config"
	"qbank-server/db"
	"qbank-server/exam"
	"qbank-server/handlers"
	"qbank-server/ingestion"
	"qbank-server/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	// Initialize database connection pool
	pool, err := db.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()
	if err := db.CreateSchema(pool); err != nil {
		log.Fatalf("Error creating database schema: %v", err)
	}

	store := exam.NewPgStore(pool)
	var source exam.QuestionSource = store
	invalidate := func(context.Context) error { return nil }
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// Generation works without the cache, only slower
			log.Printf("Question cache disabled: %v", err)
		} else {
			defer client.Close()
			questionCache := cache.NewQuestionCache(store, client, cfg.Redis.TTL)
			source = questionCache
			invalidate = questionCache.Invalidate
		}
	}
	generator := exam.NewGenerator(source, cfg.Generation.AttemptsPerVersion)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger())

	// Load HTML templates for admin UI
	renderer := multitemplate.NewRenderer()
	renderer.AddFromFiles("admin_dashboard", "templates/layout.html", "templates/admin_dashboard.html")
	router.HTMLRender = renderer

	authMiddleware := middleware.AuthMiddleware(cfg.JWT.SigningKey, cfg.JWT.Issuer)
	editors := middleware.RoleCheckMiddleware([]string{middleware.RoleAdmin, middleware.RoleEntry})
	logEvent := func(actor, action, target, notes string) {
		db.LogAdminEvent(pool, actor, action, target, notes)
	}

	// API Routes (version 1)
	apiV1 := router.Group("/api/v1")
	apiV1.Use(authMiddleware)
	{
		apiV1.POST("/generate-exam-versions", editors,
			handlers.GenerateExamVersions(generator, cfg.Generation.Timeout, maxVersions(pool, cfg.Generation.MaxVersions)))
		apiV1.POST("/save-generated-exams", editors, handlers.SaveGeneratedExams(store, logEvent))
		apiV1.GET("/saved-subjects", handlers.ListSavedSubjects(store))
		apiV1.GET("/saved-subjects/:id", handlers.GetSavedSubject(store))
		apiV1.GET("/questions", handlers.ListQuestions(store))
		apiV1.POST("/questions/for-oral", editors, handlers.QuestionsForOral(source))
	}

	// Admin UI Routes
	admin := router.Group("/admin")
	admin.Use(authMiddleware)
	admin.Use(middleware.RoleCheckMiddleware([]string{middleware.RoleAdmin}))
	{
		admin.GET("/dashboard", handlers.AdminDashboard(pool))
		admin.POST("/ingest/:subject_code", handlers.TriggerIngestion(pool, cfg.BanksPath, invalidate))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.IngestionInterval > 0 {
		go runScheduledIngestion(ctx, pool, cfg.BanksPath, cfg.IngestionInterval, invalidate)
	}

	srv := &http.Server{
		Addr:    cfg.ServerPort,
		Handler: router,
	}
	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("Question bank server starting on %s", cfg.ServerPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server startup error: %v", err)
	}
	log.Println("Server exited gracefully.")
}

// maxVersions reads the per-request cap from the settings table so it can be
// changed without a restart, falling back to the configured value.
func maxVersions(pool *pgxpool.Pool, fallback int) func() int {
	return func() int {
		raw, err := db.GetSetting(pool, "max_versions_per_request")
		if err != nil {
			return fallback
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			log.Printf("Ignoring invalid max_versions_per_request setting %q", raw)
			return fallback
		}
		return n
	}
}

// runScheduledIngestion re-imports every subject bank found on disk until ctx ends.
func runScheduledIngestion(ctx context.Context, pool *pgxpool.Pool, banksPath string, interval time.Duration, invalidate handlers.CacheInvalidator) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		log.Println("Running scheduled ingestion...")
		subjectCodes, err := ingestion.ListSubjectCodes(banksPath)
		if err != nil {
			log.Printf("Error listing subject banks for scheduled ingestion: %v", err)
			continue
		}
		changed := false
		for _, subjectCode := range subjectCodes {
			imported, err := ingestion.ProcessSubjectBank(ctx, pool, subjectCode, banksPath)
			if err != nil {
				log.Printf("Error during scheduled ingestion for %s: %v", subjectCode, err)
				db.LogAdminEvent(pool, "system", "ingestion_failed", subjectCode, fmt.Sprintf("Error: %v", err))
				continue
			}
			changed = true
			db.LogAdminEvent(pool, "system", "ingestion_success", subjectCode, fmt.Sprintf("%d question(s) imported.", imported))
		}
		if changed {
			if err := invalidate(ctx); err != nil {
				log.Printf("Question cache not invalidated after scheduled ingestion: %v", err)
			}
		}
	}
}
