// Package service runs the long-lived parts of mastolinks side by side.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Service is a long-running component of the application.
type Service interface {
	// Name returns the name of the service.
	Name() string

	// Run executes the service and blocks until the context gets cancelled
	// or an error occurs.
	Run(context.Context) error
}

// Group is a list of Service instances that execute in parallel.
type Group []Service

// Execute runs every service in the group with a shared context and blocks
// until all of them return. The first service to return, with or without an
// error, cancels the context of the others. Errors from all services are
// accumulated into a multierror.
func (g Group) Execute(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if len(g) == 0 {
		return nil
	}

	execCtx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	var wg sync.WaitGroup
	wg.Add(len(g))
	errChan := make(chan error, len(g))

	for _, s := range g {
		go func(s Service) {
			defer wg.Done()
			defer cancelFn()

			if err := s.Run(execCtx); err != nil {
				errChan <- fmt.Errorf("%s: %w", s.Name(), err)
			}
		}(s)
	}

	wg.Wait()
	close(errChan)

	var err error
	for srvErr := range errChan {
		err = multierror.Append(err, srvErr)
	}

	return err
}
