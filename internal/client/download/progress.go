package download

import (
	"fmt"
	"io"
	"time"

	"github.com/hitoshi/smolhub/internal/client/upload"
)

// progressInterval は進捗行を書き換える最短間隔。
const progressInterval = 200 * time.Millisecond

// progress は書き込まれたバイト数を1行で表示するio.Writer。
type progress struct {
	out     io.Writer
	label   string
	total   int64 // 不明な場合は-1
	written int64
	last    time.Time
	now     func() time.Time
}

func newProgress(out io.Writer, modelID string, total int64) *progress {
	return &progress{
		out:   out,
		label: "Downloading " + modelID,
		total: total,
		now:   time.Now,
	}
}

func (p *progress) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if t := p.now(); t.Sub(p.last) >= progressInterval {
		p.last = t
		p.render()
	}
	return len(b), nil
}

func (p *progress) render() {
	if p.total > 0 {
		fmt.Fprintf(p.out, "\r%s: %s / %s (%d%%)", p.label,
			upload.FormatSize(p.written), upload.FormatSize(p.total), p.written*100/p.total)
		return
	}
	fmt.Fprintf(p.out, "\r%s: %s", p.label, upload.FormatSize(p.written))
}

// done は最終的なバイト数を表示して改行する。
func (p *progress) done() {
	p.render()
	fmt.Fprintln(p.out)
}
