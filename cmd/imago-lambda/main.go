package main

import (
	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/camshaft/imago"
	"github.com/camshaft/imago/lambda"
)

func main() {
	plainLogger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	logger := plainLogger.Sugar()

	// a missing .env is normal in Lambda
	_ = godotenv.Load()

	cfg, err := imago.LoadConfig(imago.Config{})
	if err != nil {
		logger.Fatalw("Could not read configuration",
			"error", err.Error(),
		)
	}

	im, err := imago.New(cfg, imago.WithLogger(logger))
	if err != nil {
		logger.Fatalw("Could not initialize imago",
			"error", err.Error(),
		)
	}

	awslambda.Start(lambda.NewHandler(im, logger).Handle)
}
