package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"qbank-server/db"
	"qbank-server/ingestion"
)

// CacheInvalidator drops cached question pools after the bank changes.
type CacheInvalidator func(ctx context.Context) error

// AdminDashboard renders the admin dashboard with bank counts and recent activity.
// GET /admin/dashboard
func AdminDashboard(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := db.CountRows(pool)
		if err != nil {
			log.Printf("Error counting bank rows: %v", err)
			counts = map[string]int{}
		}

		recentAdminEvents, err := db.RecentAdminEvents(pool, 10)
		if err != nil {
			log.Printf("Error fetching recent admin events: %v", err)
		}

		recentErrors, err := db.RecentErrors(pool, 10)
		if err != nil {
			log.Printf("Error fetching recent import errors: %v", err)
		}

		c.HTML(http.StatusOK, "admin_dashboard", gin.H{
			"Title":             "Question Bank Admin Dashboard",
			"Subjects":          counts["subjects"],
			"Chapters":          counts["chapters"],
			"Questions":         counts["questions"],
			"SavedSubjects":     counts["saved_subjects"],
			"RecentAdminEvents": recentAdminEvents,
			"RecentErrors":      recentErrors,
			"UserEmail":         c.GetString("user_email"),
		})
	}
}

// TriggerIngestion allows admin to manually import one subject bank.
// POST /admin/ingest/:subject_code
func TriggerIngestion(pool *pgxpool.Pool, banksPath string, invalidate CacheInvalidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectCode := c.Param("subject_code")
		actor := c.GetString("user_email")

		// Only directories present in the bank checkout can be imported
		subjectCodes, err := ingestion.ListSubjectCodes(banksPath)
		if err != nil {
			log.Printf("Error listing subject banks: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list subject banks"})
			return
		}
		if !slices.Contains(subjectCodes, subjectCode) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No bank found for subject '%s'", subjectCode)})
			return
		}

		imported, err := ingestion.ProcessSubjectBank(c.Request.Context(), pool, subjectCode, banksPath)
		if err != nil {
			log.Printf("Manual ingestion failed for %s: %v", subjectCode, err)
			db.LogAdminEvent(pool, actor, "manual_ingestion_failed", subjectCode, fmt.Sprintf("Error: %v", err))
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("Ingestion failed: %v", err)})
			return
		}
		if err := invalidate(c.Request.Context()); err != nil {
			log.Printf("Question cache not invalidated after importing %s: %v", subjectCode, err)
		}

		db.LogAdminEvent(pool, actor, "manual_ingestion_success", subjectCode, fmt.Sprintf("%d question(s) imported.", imported))
		c.JSON(http.StatusOK, gin.H{
			"message":  fmt.Sprintf("Subject '%s' imported successfully.", subjectCode),
			"imported": imported,
		})
	}
}
