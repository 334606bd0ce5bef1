package batch

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/wesleywu/kroute/internal/logger"
	"github.com/wesleywu/kroute/internal/routing/entities"
	"github.com/wesleywu/kroute/internal/routing/metrics"
	"github.com/wesleywu/kroute/internal/routing/types"
)

// Result summarizes a batch run
type Result struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int // repeats of a request with no change to the route in between
	Errors    []error
	Stats     metrics.Stats
}

// Process applies requests with up to concurrencyLimit workers. A modifier is not safe
// for concurrent use, so every worker checks out its own modifier from factory and no
// two requests share one at the same time. A request repeated with no opposite action
// for the same route in between is submitted once.
//
// Independent requests run concurrently. A request starts only after every earlier
// request it depends on has finished: one for the same destination, netmask and device,
// or one whose destination network contains its gateway.
func Process(requests []*types.RouteRequest, factory entities.ModifierFactory, concurrencyLimit int, log *logger.Logger) (*Result, error) {
	start := time.Now()

	set := entities.NewRequestSet()
	unique := make([]*types.RouteRequest, 0, len(requests))
	for _, req := range requests {
		if !set.Add(req) {
			continue
		}
		unique = append(unique, req)

		// After this request changes the route, repeating the opposite one is not a duplicate
		reverse := *req
		reverse.Action = types.RouteActionAdd
		if req.Action == types.RouteActionAdd {
			reverse.Action = types.RouteActionDelete
		}
		set.Remove(&reverse)
	}

	result := &Result{
		Total:   len(requests),
		Skipped: len(requests) - len(unique),
	}
	if len(unique) == 0 {
		return result, nil
	}

	workers := concurrencyLimit
	if workers < 1 {
		workers = 1
	}
	if workers > len(unique) {
		workers = len(unique)
	}

	modifiers := make(chan entities.RouteModifier, workers)
	opened := make([]entities.RouteModifier, 0, workers)
	defer func() {
		for _, m := range opened {
			result.Stats = result.Stats.Add(m.Stats())
			_ = m.Close()
		}
	}()
	for i := 0; i < workers; i++ {
		m, err := factory()
		if err != nil {
			return result, fmt.Errorf("failed to open route modifier: %w", err)
		}
		opened = append(opened, m)
		modifiers <- m
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return result, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg    sync.WaitGroup
		mutex sync.Mutex
	)
	done := make([]chan struct{}, len(unique))
	for i := range done {
		done[i] = make(chan struct{})
	}
	for i, req := range unique {
		i, req := i, req
		deps := dependencies(unique, i)
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer close(done[i])
			for _, j := range deps {
				<-done[j]
			}

			m := <-modifiers
			err := m.ModifyRoute(req)
			modifiers <- m

			mutex.Lock()
			defer mutex.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, err)
				return
			}
			result.Succeeded++
		}
		if err := pool.Submit(task); err != nil {
			close(done[i])
			wg.Done()
			mutex.Lock()
			result.Failed++
			result.Errors = append(result.Errors, fmt.Errorf("submit %s: %w", req, err))
			mutex.Unlock()
		}
	}
	wg.Wait()

	log.BatchOperation(result.Total, result.Succeeded, result.Failed, result.Skipped, time.Since(start).Milliseconds())

	if result.Failed > 0 {
		return result, fmt.Errorf("batch operation failed: %d errors: %w", result.Failed, errors.Join(result.Errors...))
	}
	return result, nil
}

// dependencies returns the indexes of earlier requests that must finish before reqs[i].
// Tasks are submitted in order and only wait on earlier ones, so the oldest unfinished
// task can always run.
func dependencies(reqs []*types.RouteRequest, i int) []int {
	req := reqs[i]
	network := req.Network()
	gw := req.Gateway.To4()
	hasGateway := gw != nil && !gw.Equal(net.IPv4zero)

	var deps []int
	for j := 0; j < i; j++ {
		earlier := reqs[j]
		earlierNet := earlier.Network()
		switch {
		case earlier.Device == req.Device && earlierNet.String() == network.String():
			deps = append(deps, j)
		case hasGateway && earlierNet.Contains(gw):
			deps = append(deps, j)
		}
	}
	return deps
}
