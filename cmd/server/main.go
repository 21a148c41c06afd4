package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Nexavor/yidongwagnpan/internal/config"
	"github.com/Nexavor/yidongwagnpan/internal/database"
	"github.com/Nexavor/yidongwagnpan/internal/handlers"
	"github.com/Nexavor/yidongwagnpan/internal/middleware"
	"github.com/Nexavor/yidongwagnpan/internal/services"
	"github.com/Nexavor/yidongwagnpan/internal/storage"
	"github.com/Nexavor/yidongwagnpan/pkg/logger"
	"github.com/Nexavor/yidongwagnpan/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	utils.ConfigureEncryption(cfg.Secret.EncryptionKey)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageManager := config.NewStorageManager(db)
	backends := storage.NewProvider(storageManager)

	lifecycle := services.NewLifecycle(db, backends)
	quota := services.NewQuota(db)
	shares := services.NewShares(db)
	catalog := services.NewCatalog(db)
	importer := services.NewImporter(db, backends, storageManager)

	authHandler := handlers.NewAuthHandler(db, lifecycle, quota)
	foldersHandler := handlers.NewFoldersHandler(db, lifecycle, catalog, shares)
	filesHandler := handlers.NewFilesHandler(db, lifecycle, quota, catalog, backends, storageManager)
	trashHandler := handlers.NewTrashHandler(lifecycle, catalog)
	sharesHandler := handlers.NewSharesHandler(shares, catalog, backends)
	adminHandler := handlers.NewAdminHandler(db, quota, importer, storageManager)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: cfg.Server.BodyLimit})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/logout", authMiddleware.RequireAuth, authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	folderRoutes := api.Group("/folders", authMiddleware.RequireAuth)
	folderRoutes.Post("/", foldersHandler.Create)
	folderRoutes.Get("/", foldersHandler.All)
	folderRoutes.Get("/:id/contents", foldersHandler.Contents)
	folderRoutes.Get("/:id/path", foldersHandler.Path)
	folderRoutes.Put("/:id/rename", foldersHandler.Rename)
	folderRoutes.Put("/:id/password", foldersHandler.SetPassword)
	folderRoutes.Post("/:id/unlock", foldersHandler.VerifyPassword)
	folderRoutes.Post("/:id/share", sharesHandler.CreateFolderShare)
	folderRoutes.Delete("/:id/share", sharesHandler.CancelFolderShare)

	fileRoutes := api.Group("/files", authMiddleware.RequireAuth)
	fileRoutes.Post("/upload", filesHandler.Upload)
	fileRoutes.Get("/search", filesHandler.Search)
	fileRoutes.Post("/move", filesHandler.Move)
	fileRoutes.Get("/:id/download", filesHandler.Download)
	fileRoutes.Put("/:id/rename", filesHandler.Rename)
	fileRoutes.Post("/:id/share", sharesHandler.CreateFileShare)
	fileRoutes.Delete("/:id/share", sharesHandler.CancelFileShare)

	trashRoutes := api.Group("/trash", authMiddleware.RequireAuth)
	trashRoutes.Get("/", trashHandler.List)
	trashRoutes.Post("/delete", trashHandler.Delete)
	trashRoutes.Post("/restore", trashHandler.Restore)
	trashRoutes.Post("/purge", trashHandler.Purge)
	trashRoutes.Post("/empty", trashHandler.Empty)

	api.Get("/shares", authMiddleware.RequireAuth, sharesHandler.List)

	publicRoutes := api.Group("/public")
	publicRoutes.Get("/files/:token", sharesHandler.PublicFileMeta)
	publicRoutes.Get("/files/:token/download", sharesHandler.PublicFileDownload)
	publicRoutes.Post("/files/:token/download", sharesHandler.PublicFileDownload)
	publicRoutes.Get("/folders/:token", sharesHandler.PublicFolderListing)
	publicRoutes.Post("/folders/:token", sharesHandler.PublicFolderListing)
	publicRoutes.Get("/folders/:token/archive", sharesHandler.PublicFolderArchive)
	publicRoutes.Post("/folders/:token/archive", sharesHandler.PublicFolderArchive)

	adminRoutes := api.Group("/admin", authMiddleware.RequireAuth, middleware.AdminOnly)
	adminRoutes.Get("/users", adminHandler.ListUsers)
	adminRoutes.Put("/users/:id/quota", adminHandler.SetQuota)
	adminRoutes.Delete("/users/:id", adminHandler.DeleteUser)
	adminRoutes.Get("/storage", adminHandler.GetStorageConfig)
	adminRoutes.Put("/storage", adminHandler.UpdateStorageConfig)
	adminRoutes.Post("/storage/scan", adminHandler.ScanImport)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
