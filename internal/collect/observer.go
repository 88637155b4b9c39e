package collect

import "github.com/John-Robertt/vidcollect/internal/domain"

// Observer 用于把“每个文件的处理结果/运行汇总”从复制流程中解耦出来。
//
// 约束：
// - collect 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件都在调用 Collect 的 goroutine 上同步发出。
type Observer interface {
	// OnStart 在目标目录准备之前调用（src/dst 已转为绝对路径）。
	OnStart(src, dst string, dryRun bool)
	// OnFileDone 在每个命中文件处理完成后调用；idx 从 1 开始。
	OnFileDone(idx int, res domain.FileResult)
	// OnFinish 在遍历正常结束后调用（rr 已 Finalize）。
	OnFinish(rr domain.RunReport)
}
