package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const heartbeatInterval = time.Minute

type runner interface {
	Run(ctx context.Context) error
}

type pinger func(context.Context) error

type ServiceParams struct {
	Logger               *logger.Logger
	InstanceID           string
	NotificationConsumer runner
	Dependencies         map[string]pinger
}

type Service struct {
	logg         *logger.Logger
	instanceID   string
	consumer     runner
	dependencies map[string]pinger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.NotificationConsumer == nil {
		return nil, errors.New("notification consumer is required")
	}
	return &Service{
		logg:         params.Logger,
		instanceID:   params.InstanceID,
		consumer:     params.NotificationConsumer,
		dependencies: params.Dependencies,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for name, ping := range s.dependencies {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

// Run blocks until the consumer stops or the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := s.consumer.Run(groupCtx)
		if err == nil {
			return errors.New("notification consumer exited")
		}
		return err
	})
	group.Go(func() error {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case <-ticker.C:
				s.logg.Info(s.logg.WithField(groupCtx, "instance", s.instanceID), "worker heartbeat")
			}
		}
	})

	err := group.Wait()
	if ctx.Err() != nil {
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	}
	return err
}
