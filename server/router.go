package server

import (
	"fmt"
	"os"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) setupRouter() *gin.Engine {
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "test" || gin.Mode() == gin.TestMode {
		r := gin.New()
		s.defineRoutes(r)
		return r
	}

	r := gin.New()

	// LoggerWithFormatter middleware will write the logs to gin.DefaultWriter
	// By default gin.DefaultWriter = os.Stdout
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	r.Use(gin.Recovery())
	r.Use(cors.New(s.corsConfig()))
	s.defineRoutes(r)

	return r
}

func (s *Server) corsConfig() cors.Config {
	conf := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if s.Config.AllowAllOrigins() {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = s.Config.AllowedOrigins
		conf.AllowCredentials = true
	}
	return conf
}

func (s *Server) defineRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth())
	router.GET("/ws", s.handleWebsocket())

	apirouter := router.Group("/api")

	auth := apirouter.Group("/auth")
	if s.Config.AuthRateLimit > 0 {
		store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
			Rate:  time.Minute,
			Limit: s.Config.AuthRateLimit,
		})
		auth.Use(limitRateByIP(store))
	}
	auth.POST("/register", s.handleRegister())
	auth.POST("/login", s.handleLogin())

	authorized := apirouter.Group("/")
	authorized.Use(s.Authorize())
	authorized.POST("/auth/logout", s.handleLogout())
	authorized.GET("/users", s.handleListUsers())
	authorized.GET("/conversations", s.handleListConversations())
	authorized.GET("/messages/:otherUserId", s.handleGetMessages())
	authorized.POST("/messages", s.handleSendMessage())
	authorized.PUT("/messages/:messageId", s.handleEditMessage())
	authorized.DELETE("/messages/:messageId", s.handleDeleteMessage())
	authorized.POST("/devices", s.handleRegisterDevice())
}
