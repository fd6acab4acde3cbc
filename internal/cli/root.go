// Package cli implements the docqa command line.
package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"docqa-service/internal/app"
	"docqa-service/internal/model"
)

type QAService interface {
	Run(ctx context.Context, documentURL string, questions []string) (*app.QAResult, error)
	ExtractText(ctx context.Context, documentURL string) (model.ExtractedText, error)
	Purge(ctx context.Context, documentURL string) error
}

// ServiceFactory builds the pipeline on first use; the returned func releases it.
type ServiceFactory func(ctx context.Context) (QAService, func() error, error)

var (
	serviceFactory ServiceFactory
	jwtSecret      string
	jwtTTL         = 24 * time.Hour
)

var rootCmd = &cobra.Command{
	Use:           "docqa",
	Short:         "Ask questions about remote PDF documents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func SetServiceFactory(f ServiceFactory) {
	serviceFactory = f
}

func SetJWT(secret string, ttl time.Duration) {
	jwtSecret = secret
	if ttl > 0 {
		jwtTTL = ttl
	}
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func withService(ctx context.Context, fn func(QAService) error) error {
	if serviceFactory == nil {
		return errors.New("qa service not configured")
	}
	svc, release, err := serviceFactory(ctx)
	if err != nil {
		return err
	}
	if release != nil {
		defer func() { _ = release() }()
	}
	return fn(svc)
}
