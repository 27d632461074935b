package domain

import "time"

// TransferRun is the history record of one finished sync.
type TransferRun struct {
	ID          string
	Mode        string
	Name        string
	Blocks      int
	Transferred int
	Bytes       int64
	Committed   bool
	Elapsed     time.Duration
	FinishedAt  time.Time
}
