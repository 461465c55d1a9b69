// Package audit provides an async, batched CSV writer for published
// order-book slices, adapted from the teacher's snapshot logger: the hot
// path never blocks on disk I/O, and writes are rotated daily.
package audit

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"depthfeed/internal/model"
)

const (
	chanSize    = 4096
	bufSize     = 1 << 20 // 1 MB
	flushPeriod = 1 * time.Second
)

// Row is a pre-computed, allocation-free record of one published slice.
type Row struct {
	TimestampMs  int64
	Symbol       string
	BestBid      float64
	BestAsk      float64
	Spread       float64
	SpreadPct    float64
	Midpoint     float64
	LastUpdateID uint64
}

// Logger is an async CSV writer. Log is non-blocking; a full channel drops
// the row rather than stalling the caller.
type Logger struct {
	ch  chan Row
	dir string
}

// NewLogger starts the background writer goroutine, rotating daily CSVs
// under dir.
func NewLogger(dir string) *Logger {
	l := &Logger{ch: make(chan Row, chanSize), dir: dir}
	go l.run()
	return l
}

// Log enqueues row for writing. Never blocks.
func (l *Logger) Log(row Row) {
	select {
	case l.ch <- row:
	default:
	}
}

// RowFromSlice builds a Row from a published slice, recording only the
// best bid/ask to keep the audit trail compact; full depth belongs to the
// distribution fabric, not the audit log.
func RowFromSlice(symbol string, s model.OrderbookSlice) Row {
	var bestBid, bestAsk float64
	if len(s.Bids) > 0 {
		bestBid = s.Bids[0].Price
	}
	if len(s.Asks) > 0 {
		bestAsk = s.Asks[0].Price
	}
	return Row{
		TimestampMs:  s.TimestampMs,
		Symbol:       symbol,
		BestBid:      bestBid,
		BestAsk:      bestAsk,
		Spread:       s.Spread,
		SpreadPct:    s.SpreadPercent,
		Midpoint:     s.Midpoint,
		LastUpdateID: s.LastUpdateID,
	}
}

func (l *Logger) run() {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		log.Printf("audit: failed to create dir: %v", err)
		return
	}

	var (
		currentDay string
		file       *os.File
		writer     *bufio.Writer
	)

	ticker := time.NewTicker(flushPeriod)
	defer ticker.Stop()

	openFile := func(day string) {
		if file != nil {
			writer.Flush()
			file.Close()
		}

		path := filepath.Join(l.dir, day+".csv")
		var err error
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("audit: failed to open %s: %v", path, err)
			return
		}

		writer = bufio.NewWriterSize(file, bufSize)

		info, _ := file.Stat()
		if info != nil && info.Size() == 0 {
			fmt.Fprintln(writer, "timestamp_ms,symbol,best_bid,best_ask,spread,spread_pct,midpoint,last_update_id")
		}

		currentDay = day
	}

	for {
		select {
		case row, ok := <-l.ch:
			if !ok {
				if writer != nil {
					writer.Flush()
				}
				if file != nil {
					file.Close()
				}
				return
			}

			day := time.UnixMilli(row.TimestampMs).UTC().Format("2006-01-02")
			if day != currentDay {
				openFile(day)
			}
			if writer == nil {
				continue
			}

			fmt.Fprintf(writer, "%d,%s,%.8f,%.8f,%.8f,%.4f,%.8f,%d\n",
				row.TimestampMs, row.Symbol, row.BestBid, row.BestAsk,
				row.Spread, row.SpreadPct, row.Midpoint, row.LastUpdateID)

		case <-ticker.C:
			if writer != nil {
				writer.Flush()
			}
		}
	}
}

// Close stops the writer goroutine after flushing pending rows.
func (l *Logger) Close() {
	close(l.ch)
}
