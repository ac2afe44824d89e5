package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"webclassifier/internal/app"
	"webclassifier/internal/config"
	"webclassifier/internal/logger"
	"webclassifier/internal/models"
	"webclassifier/internal/repository/sqlite"
	"webclassifier/internal/service/ai"
	"webclassifier/internal/service/decode"
	"webclassifier/internal/state"
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

type options struct {
	imagesDir string
	dbPath    string
	sessionID string
	modelName string
}

func main() {
	cfg := config.Load()

	opts := options{modelName: cfg.ModelName}
	flag.StringVar(&opts.imagesDir, "images", "images", "Directory containing images to classify")
	flag.StringVar(&opts.dbPath, "db", cfg.DBPath, "Database path")
	flag.StringVar(&opts.sessionID, "session", "batch", "Session id recorded with each result")
	flag.Parse()

	log.Printf("Classifying images from %s into %s", opts.imagesDir, opts.dbPath)

	factory := app.NewModelFactory(cfg, logger.NewNop())
	if err := run(context.Background(), opts, factory, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// run classifies every image in opts.imagesDir and stores the results.
// The database and the model are closed on every return path.
func run(ctx context.Context, opts options, factory ai.Factory, out io.Writer) error {
	db, err := sqlite.New(opts.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	repo := sqlite.NewClassificationRepository(db)

	loader := ai.NewLoader(factory, 1, logger.NewNop())
	loader.Start(ctx)
	if err := loader.Wait(ctx); err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	defer loader.Close()
	model := loader.Models()[0]

	files, err := os.ReadDir(opts.imagesDir)
	if err != nil {
		return fmt.Errorf("failed to read images directory: %w", err)
	}

	classified, skipped := 0, 0
	for _, file := range files {
		if file.IsDir() || !imageExts[strings.ToLower(filepath.Ext(file.Name()))] {
			continue
		}

		path := filepath.Join(opts.imagesDir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Skipping %s: %v", file.Name(), err)
			skipped++
			continue
		}

		in, err := decode.Decode(ctx, data)
		if err != nil {
			log.Printf("Skipping %s: %v", file.Name(), err)
			skipped++
			continue
		}

		start := time.Now()
		preds, err := model.Classify(ctx, in)
		if err != nil {
			log.Printf("Failed to classify %s: %v", file.Name(), err)
			skipped++
			continue
		}

		entry := &models.Classification{
			SessionID:   opts.sessionID,
			Generation:  uint64(classified + 1),
			Filename:    file.Name(),
			ContentType: http.DetectContentType(data),
			FileSize:    int64(len(data)),
			ModelName:   opts.modelName,
			Predictions: preds,
			Rendered:    state.Render(preds),
			DurationMS:  time.Since(start).Milliseconds(),
		}
		if _, err := repo.Insert(entry); err != nil {
			return fmt.Errorf("failed to store result for %s: %w", file.Name(), err)
		}

		classified++
		if len(preds) > 0 {
			fmt.Fprintf(out, "%-40s %s (%.2f)\n", file.Name(), preds[0].Label, preds[0].Probability)
		}
	}

	fmt.Fprintf(out, "\nClassified %d image(s)", classified)
	if skipped > 0 {
		fmt.Fprintf(out, ", skipped %d", skipped)
	}
	fmt.Fprintln(out)

	stats, err := repo.GetStats(opts.sessionID)
	if err == nil && stats.Total > 0 {
		fmt.Fprintf(out, "\nSession %s statistics:\n", opts.sessionID)
		fmt.Fprintf(out, "   Total: %d\n", stats.Total)
		fmt.Fprintf(out, "   Average inference: %.1f ms\n", stats.AvgDuration)
		for label, count := range stats.TopLabels {
			fmt.Fprintf(out, "      - %s: %d\n", label, count)
		}
	}
	return nil
}
