// Command schema validates a schema document and uploads it to the bucket
// the workers load it from.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/OFFIS-RIT/leech/internal/storage"
	"github.com/OFFIS-RIT/leech/internal/util"
	"github.com/OFFIS-RIT/leech/pkg/logger"
	"github.com/OFFIS-RIT/leech/pkg/logger/console"
	"github.com/OFFIS-RIT/leech/pkg/schema"
)

func main() {
	util.LoadEnv()

	file := flag.String("file", "", "schema document to upload")
	name := flag.String("name", util.GetEnvString("SCHEMA_NAME", schema.DefaultSchemaName), "object name within the schema folder")
	master := flag.String("master", "", "optional master schema to upload before the document")
	flag.Parse()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		Format: util.GetEnv("LOG_FORMAT"),
		Prefix: "schema",
	})
	logger.Init(consoleLogger)

	if *file == "" && *master == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	cfg, err := storage.LoadAWSConfig(ctx)
	if err != nil {
		logger.Fatal("Failed to load AWS config", "err", err)
	}
	bucket := storage.NewBucket(storage.NewS3Client(cfg), util.GetEnv("LEECH_BUCKET_NAME"))
	loader := schema.NewLoader(bucket, util.GetEnvString("SCHEMA_FOLDER", schema.DefaultFolder))

	if *master != "" {
		doc, err := os.ReadFile(*master)
		if err != nil {
			logger.Fatal("Failed to read master schema", "file", *master, "err", err)
		}
		if err := loader.PutValidationSchema(ctx, doc); err != nil {
			logger.Fatal("Failed to upload master schema", "err", err)
		}
		logger.Info("Master schema uploaded", "bucket", bucket.Name())
	}

	if *file != "" {
		doc, err := os.ReadFile(*file)
		if err != nil {
			logger.Fatal("Failed to read schema", "file", *file, "err", err)
		}
		if err := loader.PutSchema(ctx, *name, doc); err != nil {
			logger.Fatal("Failed to upload schema", "err", err)
		}
		logger.Info("Schema uploaded", "bucket", bucket.Name(), "name", *name)
	}
}
