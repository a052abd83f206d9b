package main

import (
	"database/sql"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/rafaaw/ActivityPro-sub000/broadcast"
	"github.com/rafaaw/ActivityPro-sub000/engine"
	"github.com/rafaaw/ActivityPro-sub000/handlers"
	"github.com/rafaaw/ActivityPro-sub000/initializers"
	"github.com/rafaaw/ActivityPro-sub000/middleware"
	"github.com/rafaaw/ActivityPro-sub000/pkg/appenv"
	"github.com/rafaaw/ActivityPro-sub000/pkg/notify"
	"github.com/rafaaw/ActivityPro-sub000/repository"
	"github.com/rafaaw/ActivityPro-sub000/websocket"
)

func main() {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if len(jwtSecret) < 32 {
		log.Fatal("JWT_SECRET must be set and at least 32 characters")
	}

	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("postgres", dbURL)
		if err == nil {
			err = db.Ping()
			if err == nil {
				break
			}
		}
		log.Printf("DB connection failed: %v, retrying in 2s...", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		log.Fatal("Could not connect to database:", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatal("Migration driver error:", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		log.Fatal("Migration init error:", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatal("Migration failed:", err)
	}

	if err := initializers.InitDefaults(db); err != nil {
		log.Fatal("Failed to initialize default data:", err)
	}

	// Evidence storage is optional; without MINIO_ENDPOINT the upload
	// endpoints report the feature as unavailable.
	if os.Getenv("MINIO_ENDPOINT") != "" {
		if err := initializers.InitMinio(); err != nil {
			log.Fatal("Failed to initialize Minio:", err)
		}
	}

	store := repository.NewStore(db)
	usersRepo := repository.NewUsersRepository(db)

	hub := broadcast.New()
	notifier := &notify.BroadcastNotifier{Hub: hub}
	eng := engine.New(store, notifier)

	if appenv.IsProduction() || os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(gin.Recovery())

	// Configure trusted proxies for correct client IP handling in production
	trustedProxies := os.Getenv("TRUSTED_PROXIES")
	if trustedProxies != "" {
		parts := strings.Split(trustedProxies, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if err := r.SetTrustedProxies(parts); err != nil {
			log.Fatalf("Invalid TRUSTED_PROXIES: %v", err)
		}
	} else {
		_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	}

	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.RateLimitMiddleware())

	authHandler := handlers.NewAuthHandler(usersRepo)
	activitiesHandler := handlers.NewActivitiesHandler(eng, usersRepo)
	evidenceHandler := handlers.NewEvidenceHandler(eng)

	r.GET("/health", handlers.HealthCheck)
	r.GET("/sectors", authHandler.ListSectors)

	authPublic := r.Group("/", middleware.RateLimitAuthMiddleware())
	authPublic.POST("/register", authHandler.Register)
	authPublic.POST("/login", func(c *gin.Context) {
		c.Set("jwtSecret", jwtSecret)
		authHandler.Login(c)
	})

	auth := r.Group("/", handlers.AuthMiddleware(jwtSecret))
	{
		auth.GET("/ws", websocket.ServeWS(hub, usersRepo))

		auth.POST("/activities", activitiesHandler.CreateActivity)
		auth.GET("/activities", activitiesHandler.ListActivities)
		auth.GET("/activities/:activityId", activitiesHandler.GetActivity)
		auth.PATCH("/activities/:activityId", activitiesHandler.UpdateActivity)

		auth.POST("/activities/:activityId/start", activitiesHandler.StartActivity)
		auth.POST("/activities/:activityId/pause", activitiesHandler.PauseActivity)
		auth.POST("/activities/:activityId/complete", activitiesHandler.CompleteActivity)
		auth.POST("/activities/:activityId/cancel", activitiesHandler.CancelActivity)
		auth.POST("/activities/:activityId/revert", activitiesHandler.RevertActivity)
		auth.POST("/activities/:activityId/adjust-time", activitiesHandler.AdjustTime)

		auth.GET("/activities/:activityId/subtasks", activitiesHandler.ListSubtasks)
		auth.GET("/activities/:activityId/sessions", activitiesHandler.ListSessions)
		auth.GET("/activities/:activityId/log", activitiesHandler.ListActivityLog)
		auth.GET("/activities/:activityId/adjustments", activitiesHandler.ListTimeAdjustments)

		auth.PATCH("/subtasks/:subtaskId", activitiesHandler.ToggleSubtask)
		auth.GET("/sectors/:sectorId/activities", activitiesHandler.ListBySector)

		auth.POST("/activities/:activityId/evidence", evidenceHandler.UploadEvidence)
		auth.GET("/activities/:activityId/evidence", evidenceHandler.GetEvidence)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Server failed:", err)
	}
}
