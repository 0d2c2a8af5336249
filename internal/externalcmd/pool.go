package externalcmd

import (
	"sync"

	"go.uber.org/atomic"
)

// Pool tracks the external commands launched by hooks.
type Pool struct {
	wg      sync.WaitGroup
	running atomic.Int64
}

// Initialize initializes a Pool.
func (p *Pool) Initialize() {
}

// Close waits for all external commands to exit.
func (p *Pool) Close() {
	p.wg.Wait()
}

// Running returns the number of commands that have not been closed yet.
func (p *Pool) Running() int64 {
	return p.running.Load()
}

func (p *Pool) add() {
	p.wg.Add(1)
	p.running.Inc()
}

func (p *Pool) done() {
	p.running.Dec()
	p.wg.Done()
}
