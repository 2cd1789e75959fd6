package telegram

import (
	"context"
	"fmt"
)

// GotdSessionClient abstracts gotd/td session execution.
type GotdSessionClient interface {
	// Run starts the session and executes fn within the connected lifecycle.
	Run(ctx context.Context, fn func(runCtx context.Context) error) error
}

// GotdSource wires gotd session updates into UpdateSource.
type GotdSource struct {
	client GotdSessionClient
	stream GotdRawUpdateStream
	mapper GotdUpdateMapper
}

// NewGotdSource creates a source backed by gotd session APIs.
func NewGotdSource(
	client GotdSessionClient,
	stream GotdRawUpdateStream,
	mapper GotdUpdateMapper,
) (*GotdSource, error) {
	if client == nil {
		return nil, fmt.Errorf("new gotd source: nil client")
	}
	if stream == nil {
		return nil, fmt.Errorf("new gotd source: nil stream")
	}
	if mapper == nil {
		return nil, fmt.Errorf("new gotd source: nil mapper")
	}

	return &GotdSource{
		client: client,
		stream: stream,
		mapper: mapper,
	}, nil
}

// Consume runs a gotd session and forwards mapped updates to the handler.
func (s *GotdSource) Consume(ctx context.Context, handler UpdateHandler) error {
	if handler == nil {
		return fmt.Errorf("consume gotd updates: nil handler")
	}

	err := s.client.Run(ctx, func(runCtx context.Context) error {
		updates, err := s.stream.Updates(runCtx)
		if err != nil {
			return fmt.Errorf("get gotd updates stream: %w", err)
		}

		for {
			select {
			case <-runCtx.Done():
				return nil
			case rawUpdate, ok := <-updates:
				if !ok {
					return nil
				}

				mapped, accepted, mapErr := s.mapUpdateSafely(runCtx, rawUpdate)
				if mapErr != nil {
					return fmt.Errorf("map gotd update: %w", mapErr)
				}
				if !accepted {
					continue
				}
				if err := handler(runCtx, mapped); err != nil {
					return fmt.Errorf("consume gotd update %s: %w", mapped.Type, err)
				}
			}
		}
	})
	if err != nil {
		return fmt.Errorf("consume gotd updates: %w", err)
	}

	return nil
}

// mapUpdateSafely isolates mapper panics so a bad mapping path cannot crash the process.
func (s *GotdSource) mapUpdateSafely(ctx context.Context, rawUpdate any) (mapped Update, accepted bool, err error) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		err = fmt.Errorf("map gotd update panic: %v", recovered)
	}()

	mapped, accepted, err = s.mapper.Map(ctx, rawUpdate)
	if err != nil {
		return Update{}, false, fmt.Errorf("map gotd raw update: %w", err)
	}

	return mapped, accepted, nil
}
