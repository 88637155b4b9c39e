package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/John-Robertt/vidcollect/internal/domain"
)

func TestStatusLine(t *testing.T) {
	cases := []struct {
		res  domain.FileResult
		want string
	}{
		{domain.FileResult{Src: "/s/a.mp4", Dst: "/d/a.mp4", Status: domain.StatusCopied}, "OK   /s/a.mp4 -> /d/a.mp4"},
		{domain.FileResult{Src: "/s/a.mp4", Dst: "/d/a.mp4", Status: domain.StatusPlanned}, "PLAN /s/a.mp4 -> /d/a.mp4"},
		{domain.FileResult{Src: "/s/a.mp4", Status: domain.StatusSkipped, ErrorCode: domain.ErrCodeSameFile}, "SKIP /s/a.mp4 (源与目标是同一文件)"},
		{domain.FileResult{Src: "/s/a.mp4", Status: domain.StatusFailed, ErrorCode: domain.ErrCodeCopyFailed, ErrorMsg: "permission denied"}, "FAIL /s/a.mp4: copy_failed: permission denied"},
	}
	for _, c := range cases {
		if got := statusLine(c.res); got != c.want {
			t.Fatalf("状态行不符合预期：got=%q want=%q", got, c.want)
		}
	}

	ow := statusLine(domain.FileResult{Src: "/s/y/a.mp4", Dst: "/d/a.mp4", Status: domain.StatusCopied, Overwrote: true})
	if !strings.HasPrefix(ow, "OK   ") || !strings.Contains(ow, "覆盖") {
		t.Fatalf("覆盖应在状态行中标出：%q", ow)
	}
}

func TestSummaryLine(t *testing.T) {
	rr := domain.RunReport{Destination: "/dst", Files: []domain.FileResult{
		{Status: domain.StatusCopied},
		{Status: domain.StatusCopied},
		{Status: domain.StatusSkipped},
	}}
	rr.Finalize()
	if got := summaryLine(rr); got != "完成：copied=2 skipped=1 failed=0 -> /dst" {
		t.Fatalf("汇总行不符合预期：%q", got)
	}

	rr.Files[0].Object = "a.mp4"
	rr.Files[1].PublishCode = domain.ErrCodePublishFailed
	rr.Finalize()
	if got := summaryLine(rr); !strings.HasSuffix(got, " published=1 publish_failed=1") {
		t.Fatalf("发布统计应附加在汇总行：%q", got)
	}

	dry := domain.RunReport{Destination: "/dst", DryRun: true, Files: []domain.FileResult{{Status: domain.StatusPlanned}}}
	dry.Finalize()
	if got := summaryLine(dry); got != "完成（dry-run）：planned=1 skipped=0 failed=0 -> /dst" {
		t.Fatalf("dry-run 汇总行不符合预期：%q", got)
	}
}

func TestStatusUI_CountsAndLines(t *testing.T) {
	var buf bytes.Buffer
	ui := newStatusUI(&buf, false)

	ui.OnStart("/s", "/d", false)
	ui.OnFileDone(1, domain.FileResult{Src: "/s/a.mp4", Dst: "/d/a.mp4", Status: domain.StatusCopied})
	ui.OnFileDone(2, domain.FileResult{Src: "/s/b.mp4", Status: domain.StatusFailed, ErrorCode: domain.ErrCodeCopyFailed, ErrorMsg: "x"})
	ui.OnFinish(domain.RunReport{})
	ui.Close()

	if ui.done != 2 || ui.ok != 1 || ui.fail != 1 {
		t.Fatalf("计数不符合预期：done=%d ok=%d fail=%d", ui.done, ui.ok, ui.fail)
	}
	out := buf.String()
	if !strings.Contains(out, "OK   /s/a.mp4 -> /d/a.mp4\n") || !strings.Contains(out, "FAIL /s/b.mp4: copy_failed: x\n") {
		t.Fatalf("输出不符合预期：%q", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefgh", 6); got != "abc..." {
		t.Fatalf("truncate 不符合预期：%q", got)
	}
	if got := truncate("abc", 6); got != "abc" {
		t.Fatalf("短字符串不应截断：%q", got)
	}
}
