package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/vidcollect/internal/collect"
	"github.com/John-Robertt/vidcollect/internal/domain"
)

var _ collect.Observer = (*statusUI)(nil)

// statusUI 逐文件输出一行状态（OK/SKIP/FAIL/PLAN）。
//
// - 文本模式写 stdout；--json 模式写 stderr，不污染 stdout 的 JSON 输出契约
// - keepalive 只在交互终端启用：大文件复制期间定期输出一行，降低等待焦虑
type statusUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	done int
	ok   int
	fail int
	skip int

	keepalive          bool
	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newStatusUI(w io.Writer, keepalive bool) *statusUI {
	return &statusUI{
		w:                  w,
		keepalive:          keepalive,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *statusUI) OnStart(src, dst string, dryRun bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "copy"
	if dryRun {
		mode = "dry-run (不写入)"
	}
	fmt.Fprintf(p.w, "[%s] vidcollect %s\n", now.Format("15:04:05"), mode)
	fmt.Fprintf(p.w, "  source: %s\n", src)
	fmt.Fprintf(p.w, "  destination: %s\n\n", dst)
	p.lastPrinted = now

	if p.keepalive && !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *statusUI) OnFileDone(idx int, res domain.FileResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	switch res.Status {
	case domain.StatusCopied, domain.StatusPlanned:
		p.ok++
	case domain.StatusFailed:
		p.fail++
	case domain.StatusSkipped:
		p.skip++
	}

	fmt.Fprintln(p.w, statusLine(res))
	p.lastPrinted = time.Now()
}

func (p *statusUI) OnFinish(rr domain.RunReport) {
	p.Close()
}

// Close 停止 keepalive；可重复调用（取消/准备失败时不会走到 OnFinish）。
func (p *statusUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *statusUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d ok=%d fail=%d skip=%d elapsed=%s\n",
						p.done, p.ok, p.fail, p.skip, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// statusLine 是单个文件的一行状态输出。
func statusLine(res domain.FileResult) string {
	switch res.Status {
	case domain.StatusCopied:
		s := fmt.Sprintf("OK   %s -> %s", res.Src, res.Dst)
		if res.Overwrote {
			s += " (覆盖了本次运行早先复制的同名文件)"
		}
		return s
	case domain.StatusPlanned:
		s := fmt.Sprintf("PLAN %s -> %s", res.Src, res.Dst)
		if res.Overwrote {
			s += " (将覆盖本次运行早先的同名文件)"
		}
		return s
	case domain.StatusSkipped:
		return fmt.Sprintf("SKIP %s (源与目标是同一文件)", res.Src)
	case domain.StatusFailed:
		return fmt.Sprintf("FAIL %s: %s: %s", res.Src, res.ErrorCode, truncate(res.ErrorMsg, 200))
	default:
		return fmt.Sprintf("%s %s", strings.ToUpper(res.Status), res.Src)
	}
}

// summaryLine 是运行结束时的汇总行。
func summaryLine(rr domain.RunReport) string {
	s := rr.Summary
	var b strings.Builder
	if rr.DryRun {
		fmt.Fprintf(&b, "完成（dry-run）：planned=%d skipped=%d failed=%d -> %s", s.Planned, s.Skipped, s.Failed, rr.Destination)
	} else {
		fmt.Fprintf(&b, "完成：copied=%d skipped=%d failed=%d -> %s", s.Copied, s.Skipped, s.Failed, rr.Destination)
	}
	if s.Published > 0 || s.PublishFailed > 0 {
		fmt.Fprintf(&b, " published=%d publish_failed=%d", s.Published, s.PublishFailed)
	}
	return b.String()
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
