package cloud

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/cloudsdk/cloudxfer/internal/logging"
)

// TimingEnv turns on per-phase timing logs when set to "1":
//
//	{"level":"info","phase":"resolve","file":"a.txt","elapsed":38,"message":"Phase finished"}
//	{"level":"info","phase":"put","file":"a.txt","elapsed":412,"size":"3.0 MiB","rate":"7.3 MiB/s","message":"Phase finished"}
const TimingEnv = "CLOUDXFER_TIMING"

// TimingEnabled reports whether TimingEnv is set to "1".
func TimingEnabled() bool {
	return os.Getenv(TimingEnv) == "1"
}

// Phase times one step of a transfer (URL resolution or the data PUT).
// The first call to End logs; later calls only return the elapsed time.
type Phase struct {
	logger *logging.Logger
	name   string
	file   string
	start  time.Time
	ended  atomic.Bool
}

// StartPhase starts timing phase name of the transfer of file.
func StartPhase(logger *logging.Logger, name, file string) *Phase {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Phase{logger: logger, name: name, file: file, start: time.Now()}
}

// End stops the phase. A positive n adds the byte count and the
// resulting rate to the log line.
func (p *Phase) End(n int64) time.Duration {
	elapsed := time.Since(p.start)
	if !p.ended.CompareAndSwap(false, true) || !TimingEnabled() {
		return elapsed
	}
	ev := p.logger.Info().Str("phase", p.name).Str("file", p.file).Dur("elapsed", elapsed)
	if n > 0 {
		ev = ev.Str("size", FormatBytes(n)).Str("rate", FormatRate(n, elapsed))
	}
	ev.Msg("Phase finished")
	return elapsed
}

// FormatBytes renders n with binary units, e.g. "1.5 KiB".
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n)
	for _, unit := range []string{"KiB", "MiB", "GiB", "TiB"} {
		v /= 1024
		if v < 1024 || unit == "TiB" {
			return fmt.Sprintf("%.1f %s", v, unit)
		}
	}
	return ""
}

// FormatRate renders the throughput of n bytes moved in d.
func FormatRate(n int64, d time.Duration) string {
	if d <= 0 {
		return "- B/s"
	}
	return FormatBytes(int64(float64(n)/d.Seconds())) + "/s"
}
