package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// OrderNote summarises one submission inside a cycle record.
type OrderNote struct {
	OrderID    string  `json:"order_id,omitempty"`
	Instrument string  `json:"instrument"`
	Direction  string  `json:"direction"`
	Amount     float64 `json:"amount"`
	Accepted   bool    `json:"accepted"`
	Error      string  `json:"error,omitempty"`
}

// CycleRecord captures one end-to-end engine cycle for audit and analysis.
type CycleRecord struct {
	Timestamp         time.Time         `json:"timestamp"`
	CycleNumber       int               `json:"cycle_number"`
	Balance           float64           `json:"balance"`
	RiskPercent       float64           `json:"risk_percent"`
	DailyLoss         float64           `json:"daily_loss"`
	ConsecutiveWins   int               `json:"consecutive_wins"`
	ConsecutiveLosses int               `json:"consecutive_losses"`
	BreakerTripped    bool              `json:"breaker_tripped"`
	OpenOrders        int               `json:"open_orders"`
	Candidates        []string          `json:"candidates,omitempty"`
	Skipped           map[string]string `json:"skipped,omitempty"` // instrument → reason
	Submitted         []OrderNote       `json:"submitted,omitempty"`
	Success           bool              `json:"success"`
	ErrorMessage      string            `json:"error_message,omitempty"`
}

// Writer persists cycle records to a directory as JSON files.
type Writer struct {
	dir   string
	seq   int
	nowFn func() time.Time
}

// NewWriter constructs a journal writer rooted at dir.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Writer{dir: dir, nowFn: time.Now}
}

// WriteCycle writes a cycle record to a timestamped JSON file and returns
// its path.
func (w *Writer) WriteCycle(rec *CycleRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("journal: nil record")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.nowFn()
	}
	w.seq++
	rec.CycleNumber = w.seq
	name := fmt.Sprintf("cycle_%s_%05d.json", rec.Timestamp.UTC().Format("20060102_150405"), w.seq)
	path := filepath.Join(w.dir, name)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
