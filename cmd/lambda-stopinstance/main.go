package main

import (
	"context"
	"os"
	"zipfinder/automation"
	"zipfinder/cnf"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	conf := cnf.LoadConfig(os.Getenv("ZIPFINDER_CONFIG"))
	logging.SetupLogging(conf.LogFile, conf.LogLevel)
	if err := conf.AWS.ValidateAndDefaults(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	stopper, err := automation.NewInstanceStopper(context.Background(), conf.AWS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize EC2 client")
	}
	lambda.Start(stopper.HandleEvent)
}
