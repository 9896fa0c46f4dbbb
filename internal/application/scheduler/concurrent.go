package scheduler

// concurrent.go: worker pool por símbolo.
//
// El feeder reparte los símbolos en el orden configurado y respeta el delay
// entre símbolos. Cuando un worker pide cortar el ciclo (broker perdido sin
// reconexión) o llega un stop, los símbolos que quedan no se procesan.
// proceed se consulta antes de entregar y antes de arrancar cada símbolo:
// bloquea mientras hay una reconexión en curso y da false si el ciclo se cortó.

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// symbolResult es lo que devuelve el pipeline de un símbolo.
type symbolResult struct {
	symbol string
	status string // processed | skipped | failed
	orders int
	halt   bool // cortar el ciclo después de este símbolo
}

const (
	statusProcessed = "processed"
	statusSkipped   = "skipped"
	statusFailed    = "failed"
)

// runSymbols ejecuta fn para cada símbolo con un pool de workers acotado.
// Devuelve los resultados de los símbolos que llegaron a ejecutarse.
func runSymbols(
	ctx context.Context,
	symbols []string,
	workers int,
	delay time.Duration,
	proceed func() bool,
	fn func(ctx context.Context, symbol string) symbolResult,
) []symbolResult {
	if proceed == nil {
		proceed = func() bool { return true }
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(symbols) {
		workers = len(symbols)
	}

	var halted atomic.Bool
	workCh := make(chan string)
	resultCh := make(chan symbolResult, len(symbols))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range workCh {
				// un símbolo ya entregado no arranca si el ciclo se cortó mientras esperaba
				if halted.Load() || ctx.Err() != nil || !proceed() {
					continue
				}
				res := fn(ctx, sym)
				if res.halt {
					halted.Store(true)
				}
				resultCh <- res
			}
		}()
	}

	queued := 0
	for i, sym := range symbols {
		if i > 0 && delay > 0 && !sleepCtx(ctx, delay) {
			break
		}
		if halted.Load() || ctx.Err() != nil || !proceed() {
			break
		}
		workCh <- sym
		queued++
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]symbolResult, 0, queued)
	for r := range resultCh {
		results = append(results, r)
	}

	slog.Debug("scheduler: symbols done",
		"queued", queued,
		"ran", len(results),
		"workers", workers,
		"halted", halted.Load(),
	)
	return results
}

// sleepCtx duerme d o hasta que ctx se cancele. false si se canceló.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
