package extract

import (
	"context"
	"strings"
	"sync"
)

const (
	// defaultWorkers is the worker pool size.
	defaultWorkers = 4

	// defaultChunkSize is the width of a parallel position window.
	defaultChunkSize = 4
)

// PositionResult is the outcome of extracting one position.
type PositionResult struct {
	Char byte
	OK   bool
}

// Scheduler extracts disjoint character positions concurrently. Positions
// are independent: the only coupling is the shared oracle (stateless
// across calls) and the read-only baseline, so parallelism cuts
// wall-clock time without changing per-character query count.
type Scheduler struct {
	// NewExtractor builds a fresh extractor per worker. Workers share
	// only the HTTP connection pool and the cached baseline underneath.
	NewExtractor func() CharExtractor

	// Workers is the pool size (default 4).
	Workers int

	// OnProgress, when set, receives (completed, total) after each
	// position finishes.
	OnProgress func(done, total int)

	// mu guards only the progress counter; per-position extraction has
	// no shared mutable state.
	mu   sync.Mutex
	done int
}

// NewScheduler creates a Scheduler around an extractor factory.
func NewScheduler(newExtractor func() CharExtractor, workers int) *Scheduler {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Scheduler{
		NewExtractor: newExtractor,
		Workers:      workers,
	}
}

// positionJob and positionOutcome flow through the worker pool channels.
type positionJob struct {
	position int
}

type positionOutcome struct {
	position int
	result   PositionResult
}

// ExtractPositions extracts every given position concurrently with
// bounded parallelism and returns the results keyed by position. Workers
// that observe a cancelled context stop picking up jobs; positions never
// started are reported as not-found.
func (s *Scheduler) ExtractPositions(ctx context.Context, positions []int) map[int]PositionResult {
	s.mu.Lock()
	s.done = 0
	s.mu.Unlock()

	jobs := make(chan positionJob, len(positions))
	outcomes := make(chan positionOutcome, len(positions))

	var wg sync.WaitGroup
	for i := 0; i < s.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			extractor := s.NewExtractor()
			for j := range jobs {
				if ctx.Err() != nil {
					outcomes <- positionOutcome{position: j.position}
					continue
				}
				ch, ok := extractor.ExtractCharacter(ctx, j.position)
				outcomes <- positionOutcome{
					position: j.position,
					result:   PositionResult{Char: ch, OK: ok},
				}
				s.reportProgress(len(positions))
			}
		}()
	}

	for _, p := range positions {
		jobs <- positionJob{position: p}
	}
	close(jobs)

	wg.Wait()
	close(outcomes)

	results := make(map[int]PositionResult, len(positions))
	for o := range outcomes {
		results[o.position] = o.result
	}
	return results
}

// reportProgress bumps the shared counter under the mutex and notifies
// the callback.
func (s *Scheduler) reportProgress(total int) {
	if s.OnProgress == nil {
		return
	}
	s.mu.Lock()
	s.done++
	done := s.done
	s.mu.Unlock()
	s.OnProgress(done, total)
}

// ExtractStringChunks extracts the target string in disjoint position
// windows of chunkSize. After each chunk, extraction halts if any
// position in it came back not-found. The result is reassembled strictly
// left to right: a not-found at position p truncates the string at p-1,
// discarding any later characters already computed.
func (s *Scheduler) ExtractStringChunks(ctx context.Context, maxLength, chunkSize int) string {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	results := make(map[int]PositionResult, maxLength)

chunks:
	for start := 1; start <= maxLength; start += chunkSize {
		end := start + chunkSize - 1
		if end > maxLength {
			end = maxLength
		}

		positions := make([]int, 0, end-start+1)
		for p := start; p <= end; p++ {
			positions = append(positions, p)
		}

		chunk := s.ExtractPositions(ctx, positions)
		for p, r := range chunk {
			results[p] = r
		}

		if ctx.Err() != nil {
			break
		}
		for _, r := range chunk {
			if !r.OK {
				break chunks
			}
		}
	}

	var b []byte
	for p := 1; p <= maxLength; p++ {
		r, present := results[p]
		if !present || !r.OK {
			break
		}
		b = append(b, r.Char)
		if strings.IndexByte(terminators, r.Char) >= 0 {
			break
		}
	}
	return strings.TrimRight(string(b), terminators)
}
