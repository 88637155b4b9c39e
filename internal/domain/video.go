package domain

// VideoFile 描述一次扫描命中的视频文件（只做 stat，不读内容）。
//
// 不变量：
// - AbsPath 必须是 clean + absolute
// - Name 是原始文件名（保留大小写），复制时直接作为目标文件名
type VideoFile struct {
	AbsPath string `json:"abs_path"`
	RelPath string `json:"rel_path"`
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	ModUnix int64  `json:"mod_unix"`
}
