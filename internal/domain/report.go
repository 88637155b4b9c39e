package domain

import (
	"encoding/json"
	"time"
)

const (
	StatusCopied  = "copied"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
	StatusPlanned = "planned"
)

const (
	ErrCodeSameFile          = "same_file"
	ErrCodeCopyFailed        = "copy_failed"
	ErrCodeTargetConflict    = "target_conflict"
	ErrCodeVerifyFailed      = "verify_failed"
	ErrCodePublishFailed     = "publish_failed"
	ErrCodeDestinationSetup  = "destination_setup"
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigMissingPath = "config_missing_path"
)

// RunReport 是一次 collect 的对外稳定输出（--json / --report）。
//
// Files 保持遍历顺序；遍历顺序本身不做保证，调用方不应依赖。
type RunReport struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	DryRun      bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Files   []FileResult  `json:"files"`
}

type ReportSummary struct {
	Copied      int   `json:"copied"`
	Skipped     int   `json:"skipped"`
	Failed      int   `json:"failed"`
	Planned     int   `json:"planned"`
	BytesCopied int64 `json:"bytes_copied"`

	Published     int `json:"published"`
	PublishFailed int `json:"publish_failed"`
}

// FileResult 是单个命中文件的处理结果（copied / skipped / failed / planned）。
type FileResult struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Status string `json:"status"`

	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`

	Size   int64  `json:"size"`
	SHA256 string `json:"sha256,omitempty"`

	// Overwrote 表示本次运行早先已把另一个源文件复制到同名目标，这次覆盖了它。
	Overwrote bool `json:"overwrote,omitempty"`

	// Object 是发布到对象存储后的 key（未发布为空）。
	Object      string `json:"object,omitempty"`
	PublishCode string `json:"publish_error_code,omitempty"`
	PublishMsg  string `json:"publish_error_msg,omitempty"`
}

// Finalize 做两件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) summary 由 files 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Files == nil {
		r.Files = []FileResult{}
	}

	var s ReportSummary
	for _, f := range r.Files {
		switch f.Status {
		case StatusCopied:
			s.Copied++
			s.BytesCopied += f.Size
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		case StatusPlanned:
			s.Planned++
		}
		if f.Object != "" {
			s.Published++
		}
		if f.PublishCode != "" {
			s.PublishFailed++
		}
	}
	r.Summary = s
}

// CopiedSources 返回成功复制的源路径（按遍历顺序）。
func (r RunReport) CopiedSources() []string {
	out := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		if f.Status == StatusCopied {
			out = append(out, f.Src)
		}
	}
	return out
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
