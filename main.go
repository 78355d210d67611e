package main

import (
	"context"
	"log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/subosito/gotenv"

	"characterchat/adapters/diffusion"
	"characterchat/adapters/hasher"
	httpadapter "characterchat/adapters/http"
	"characterchat/adapters/message_broker"
	"characterchat/adapters/ollama"
	"characterchat/adapters/store"
	"characterchat/adapters/watcher"
	"characterchat/adapters/websocket"
	"characterchat/config"
	"characterchat/usecase"
)

func main() {
	gotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	fileStore, err := store.NewFileStore(cfg.StoreRoot, cfg.BackupRoot)
	if err != nil {
		log.Fatal(err)
	}
	sessionTracker := store.NewFileSessionTracker(cfg.SessionFile)

	chatBackend := ollama.NewClient(cfg.Ollama.BaseURL,
		ollama.WithChatModel(cfg.Ollama.ChatModel),
		ollama.WithPrompterModel(cfg.Ollama.PrompterModel),
	)
	imageBackend := diffusion.NewClient(cfg.Diffusion.BaseURL)

	broker := message_broker.NewChannelMessageBroker()
	defer broker.Close()

	svc := usecase.NewChatService(usecase.Storage{
		Characters:    fileStore,
		Conversations: fileStore,
		Assets:        fileStore,
		Session:       sessionTracker,
	}, chatBackend, imageBackend, broker, cfg.Generation)

	// Restore the last active session before serving.
	if ch, _, err := svc.StartSession(context.Background()); err != nil {
		log.Fatal(err)
	} else {
		log.Printf("Active character: %s", ch.Name)
	}

	server := websocket.NewServer(broker)
	go server.RunWebsocketHub()

	storeWatcher, err := watcher.New(cfg.StoreRoot, broker, hasher.New())
	if err != nil {
		log.Fatal(err)
	}
	if err := storeWatcher.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	defer storeWatcher.Stop()

	chatHandler := httpadapter.NewChatHandler(svc)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20))) // 20 requests per minute
	e.Use(middleware.BodyLimit("1MB"))

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"}, // In production, specify exact origins
		AllowMethods: []string{echo.GET, echo.POST, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
		},
	}))

	e.GET("/ws", server.Handler)
	e.Static("/assets", cfg.StoreRoot)

	api := e.Group("/api/v1")
	chatHandler.Register(api)

	log.Printf("Starting server on %s", cfg.ListenAddr)
	log.Println("Available endpoints:")
	log.Println("  GET    /api/v1/health                      - Health check")
	log.Println("  GET    /api/v1/session                     - Active character + conversation")
	log.Println("  GET    /api/v1/characters                  - List characters")
	log.Println("  POST   /api/v1/characters                  - Create character")
	log.Println("  DELETE /api/v1/characters/:name            - Remove character (backed up)")
	log.Println("  POST   /api/v1/characters/:name/activate   - Switch character")
	log.Println("  GET    /api/v1/characters/:name/history    - Conversation history")
	log.Println("  POST   /api/v1/chat/send                   - Send a message")
	log.Println("  GET    /ws                                 - WebSocket (snapshots + character events)")
	log.Fatal(e.Start(cfg.ListenAddr))
}
