package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	Auth      *AuthHandlers
	Trips     *TripHandlers
	Chat      *ChatHandlers
	WebSocket *WebSocketHandlers
	UploadDir string
}

// NewRouter creates the emulator's gin engine with every route registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))
	router.MaxMultipartMemory = maxUploadSize

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws", deps.WebSocket.HandleWebSocket)
	if deps.UploadDir != "" {
		router.Static("/files", deps.UploadDir)
	}

	api := router.Group("/api")
	api.POST("/auth/login", deps.Auth.Login)

	authed := api.Group("", deps.Auth.RequireAuth())
	{
		users := authed.Group("/users")
		{
			users.GET("/drivers", deps.Trips.Drivers)
			users.GET("/:id", deps.Trips.User)
			users.GET("/:id/children", deps.Trips.Children)
		}

		authed.GET("/bookings/student/:studentId", deps.Trips.StudentBookings)
		authed.GET("/trips", deps.Trips.DriverTrips)
		authed.GET("/bus/:busId", deps.Trips.Bus)
		authed.GET("/routes/:routeId", deps.Trips.Route)

		chats := authed.Group("/chats")
		{
			chats.GET("/:busId/:tripId", deps.Chat.History)
			chats.POST("/:busId/:tripId", deps.Chat.PostMessage)
		}

		authed.POST("/uploads", deps.Chat.Upload)
	}

	return router
}
