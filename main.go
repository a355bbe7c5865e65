package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/clipstash/clipstash/internal/database"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
)

// objectStorageClient is the slice of the S3 API the handlers use.
// *s3.Client satisfies it; tests substitute a fake.
type objectStorageClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type apiConfig struct {
	db               database.Client
	jwtSecret        string
	port             string
	assetsRoot       string
	tempDir          string
	platform         string
	s3Bucket         string
	s3Region         string
	s3Client         objectStorageClient
	cloudFrontDomain string
	media            mediaProcessor
	uploadLimit      int64
}

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Fatal("Error loading .env file")
	}

	dbDriver := os.Getenv("DB_DRIVER")
	if dbDriver == "" {
		dbDriver = "sqlite3"
	}
	dbURL := os.Getenv("DB_URL")
	jwtSecret := os.Getenv("JWT_SECRET")
	port := os.Getenv("PORT")
	assetsRoot := os.Getenv("ASSETS_ROOT")
	platform := os.Getenv("PLATFORM")
	s3Bucket := os.Getenv("S3_BUCKET")
	s3Region := os.Getenv("S3_REGION")
	cloudFrontDomain := os.Getenv("CLOUDFRONT_DOMAIN")
	if cloudFrontDomain == "" {
		log.Fatal("CLOUDFRONT_DOMAIN not set in .env")
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(s3Region))
	if err != nil {
		log.Fatal("Error loading AWS config:", err)
	}
	s3Client := s3.NewFromConfig(awsCfg)

	db, err := database.NewClient(dbDriver, dbURL)
	if err != nil {
		log.Fatal("Error connecting to database:", err)
	}

	apiCfg := apiConfig{
		db:               db,
		jwtSecret:        jwtSecret,
		port:             port,
		assetsRoot:       assetsRoot,
		tempDir:          os.TempDir(),
		platform:         platform,
		s3Bucket:         s3Bucket,
		s3Region:         s3Region,
		s3Client:         s3Client,
		cloudFrontDomain: cloudFrontDomain,
		media:            ffmpegProcessor{},
		uploadLimit:      maxUploadSize,
	}

	if err := apiCfg.ensureAssetsDir(); err != nil {
		log.Fatal("Couldn't create assets directory:", err)
	}

	r := chi.NewRouter()

	// Public routes (no auth middleware)
	r.Post("/api/users", apiCfg.handlerUsersCreate)
	r.Post("/api/login", apiCfg.handlerLogin)
	r.Post("/admin/reset", apiCfg.handlerReset)
	r.Get("/app/*", apiCfg.appHandler)
	r.With(noCacheMiddleware).Get("/assets/*", apiCfg.assetsHandler)

	// Protected routes (with auth middleware)
	r.Group(func(r chi.Router) {
		r.Use(apiCfg.authMiddleware)
		r.Get("/api/videos", apiCfg.handlerVideosRetrieve)
		r.Get("/api/videos/{videoID}", apiCfg.handlerVideoGet)
		r.Post("/api/videos", apiCfg.handlerVideoMetaCreate)
		r.Post("/api/thumbnail_upload/{videoID}", apiCfg.handlerUploadThumbnail)
		r.Post("/api/video_upload/{videoID}", apiCfg.handlerUploadVideo)
		r.Delete("/api/videos/{videoID}", apiCfg.handlerVideoMetaDelete)
	})

	fmt.Printf("Server starting on port %s...\n", port)
	err = http.ListenAndServe(":"+port, r)
	if err != nil {
		log.Fatal("Server failed to start:", err)
	}
}

func (cfg *apiConfig) appHandler(w http.ResponseWriter, r *http.Request) {
	http.StripPrefix("/app/", http.FileServer(http.Dir("./app"))).ServeHTTP(w, r)
}

func (cfg *apiConfig) assetsHandler(w http.ResponseWriter, r *http.Request) {
	http.StripPrefix("/assets/", http.FileServer(http.Dir(cfg.assetsRoot))).ServeHTTP(w, r)
}
