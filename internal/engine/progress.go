package engine

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Progress counts the work of the current run. Workers update it, the CLI
// reads it from another goroutine.
type Progress struct {
	totalBytes  atomic.Int64
	doneBytes   atomic.Int64
	totalBlocks atomic.Int64
	doneBlocks  atomic.Int64
	startedAt   atomic.Int64 // unix nanos
}

// ProgressSnapshot is a consistent enough view of Progress for display.
type ProgressSnapshot struct {
	TotalBytes  int64
	DoneBytes   int64
	TotalBlocks int64
	DoneBlocks  int64
	Elapsed     time.Duration
}

func (p *Progress) reset(totalBytes, totalBlocks int64) {
	p.totalBytes.Store(totalBytes)
	p.totalBlocks.Store(totalBlocks)
	p.doneBytes.Store(0)
	p.doneBlocks.Store(0)
	p.startedAt.Store(time.Now().UnixNano())
}

func (p *Progress) blockDone(n int) {
	p.doneBytes.Add(int64(n))
	p.doneBlocks.Add(1)
}

func (p *Progress) Snapshot() ProgressSnapshot {
	s := ProgressSnapshot{
		TotalBytes:  p.totalBytes.Load(),
		DoneBytes:   p.doneBytes.Load(),
		TotalBlocks: p.totalBlocks.Load(),
		DoneBlocks:  p.doneBlocks.Load(),
	}
	if started := p.startedAt.Load(); started != 0 {
		s.Elapsed = time.Since(time.Unix(0, started))
	}
	return s
}

// FormatProgress renders one status line:
// [=========>          ]  48.0% | 1.2 MB/s | 12/25 blocks | 6.3 MB / 13 MB
func FormatProgress(s ProgressSnapshot) string {
	percent := 100.0
	if s.TotalBytes > 0 {
		percent = float64(s.DoneBytes) / float64(s.TotalBytes) * 100
	}

	const barWidth = 20
	completedWidth := int(percent / 100 * barWidth)
	if completedWidth > barWidth {
		completedWidth = barWidth
	}
	bar := strings.Repeat("=", completedWidth)
	if completedWidth < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-completedWidth-1)
	}

	var speed uint64
	if secs := s.Elapsed.Seconds(); secs >= 0.1 {
		speed = uint64(float64(s.DoneBytes) / secs)
	}

	return fmt.Sprintf("[%s] %5.1f%% | %s/s | %d/%d blocks | %s / %s",
		bar, percent, humanize.Bytes(speed), s.DoneBlocks, s.TotalBlocks,
		humanize.Bytes(uint64(s.DoneBytes)), humanize.Bytes(uint64(s.TotalBytes)))
}
