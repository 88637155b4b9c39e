package domain

import "strings"

// DefaultExtensions 是内置的视频扩展名集合（小写，带前导 '.'）。
var DefaultExtensions = []string{".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm"}

// ExtensionSet 是有序、大小写不敏感的文件名后缀集合。
//
// 不变量：
// - 成员均为小写、以 '.' 开头、非空且不重复
// - 构造后只读（不暴露修改方法）
type ExtensionSet struct {
	exts []string
}

// NewExtensionSet 规范化 exts 并构造集合：
// - 去空白、转小写、缺少前导 '.' 时补上
// - 去掉空项与重复项（保留首次出现的位置）
// - 结果为空时回退到 DefaultExtensions
func NewExtensionSet(exts []string) ExtensionSet {
	out := make([]string, 0, len(exts))
	seen := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || e == "." {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	if len(out) == 0 {
		out = append(out, DefaultExtensions...)
	}
	return ExtensionSet{exts: out}
}

// DefaultExtensionSet 返回内置默认集合。
func DefaultExtensionSet() ExtensionSet {
	return NewExtensionSet(nil)
}

// Match 判断 name 的小写形式是否以集合中任一后缀结尾。
// 只用于判定；调用方复制时必须继续使用原始文件名。
func (s ExtensionSet) Match(name string) bool {
	exts := s.exts
	if len(exts) == 0 {
		// 零值集合按默认集合处理，避免“什么都不匹配”的静默误用。
		exts = DefaultExtensions
	}
	low := strings.ToLower(name)
	for _, e := range exts {
		if strings.HasSuffix(low, e) {
			return true
		}
	}
	return false
}

// List 返回成员副本（按构造顺序）。
func (s ExtensionSet) List() []string {
	if len(s.exts) == 0 {
		return append([]string(nil), DefaultExtensions...)
	}
	return append([]string(nil), s.exts...)
}

func (s ExtensionSet) String() string {
	return strings.Join(s.List(), ",")
}
