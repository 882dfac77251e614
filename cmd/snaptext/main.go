package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/tuanvc/snaptext/internal/app"
	"github.com/tuanvc/snaptext/internal/config"
	"github.com/tuanvc/snaptext/internal/engine"
	"github.com/tuanvc/snaptext/internal/imaging"
	"github.com/tuanvc/snaptext/internal/record"
)

var (
	configPath  = flag.String("config", "", "Path to config file")
	dataDir     = flag.String("data", "", "Path to data directory")
	serveMode   = flag.Bool("serve", false, "Run the web server even when image files are given")
	language    = flag.String("lang", "", "Recognition language override")
	pageSegMode = flag.Int("psm", -1, "Page segmentation mode override (0-13)")
	enhanceText = flag.Bool("enhance", false, "Run extracted text through the enhancement service")
	outDir      = flag.String("out", "", "Directory for extracted .txt files (batch mode)")
	mockEngine  = flag.Bool("mock-engine", false, "Use the canned engine instead of tesseract")
	showVersion = flag.Bool("version", false, "Print version and exit")
	version     = "dev"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			fmt.Printf("SnapText version %s\n", version)
			return
		case "help":
			printHelp()
			return
		}
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("SnapText version %s\n", version)
		return
	}

	application := initApp()
	defer application.Logger.Sync()

	files := flag.Args()
	if len(files) > 0 && !*serveMode {
		if err := application.RunBatch(files, *outDir, *enhanceText); err != nil {
			application.Logger.Fatal("Batch failed", zap.Error(err))
		}
		application.Store.Teardown()
		return
	}

	application.RunServer()
}

func initApp() *app.App {
	if err := config.LoadEnvFiles(); err != nil {
		log.Printf("Warning: could not load .env files: %v", err)
	}

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *language != "" {
		cfg.OCR.Language = *language
	}
	if *pageSegMode >= 0 {
		cfg.OCR.PageSegMode = *pageSegMode
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Info("Starting SnapText",
		zap.String("version", version),
		zap.String("mode", getMode()),
	)

	factory, err := imaging.NewPreviewFactory(cfg.Preview.Dir, cfg.Preview.MaxEdge)
	if err != nil {
		logger.Fatal("Failed to initialize preview storage", zap.Error(err))
	}

	st := record.NewStore(factory, logger)

	application := app.New(cfg, st, logger, version)
	if *mockEngine {
		application.SetEngine(&engine.Mock{TextResult: "canned recognition output"})
	}
	return application
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

func getMode() string {
	if len(flag.Args()) > 0 && !*serveMode {
		return "batch"
	}
	return "server"
}

func printHelp() {
	fmt.Println("SnapText extracts text from screenshots and scanned images.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  snaptext [flags]              Start the web server")
	fmt.Println("  snaptext [flags] <image>...   Recognize the given images and exit")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  SNAPTEXT_ENHANCE_API_KEY   Enables text enhancement (OPENAI_API_KEY works too)")
	fmt.Println("  SNAPTEXT_OCR_LANGUAGE      Default recognition language")
	fmt.Println("  SNAPTEXT_OCR_DATA_PATH     Tesseract traineddata directory (TESSDATA_PREFIX works too)")
}
