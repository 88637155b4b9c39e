package scan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/John-Robertt/vidcollect/internal/domain"
)

// ErrNotDir 表示扫描根存在但不是目录（此时不产生任何条目）。
var ErrNotDir = errors.New("扫描根不是目录")

// Options 控制一次遍历。
type Options struct {
	Extensions domain.ExtensionSet

	// ExcludeDirs 均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）。
	ExcludeDirs []string

	// OnError 接收遍历中被跳过的错误（例如子目录无读权限）；为 nil 时静默跳过。
	OnError func(path string, err error)
}

// VisitFunc 在每个命中文件上被调用；返回非 nil 错误会中止遍历并原样返回。
type VisitFunc func(v domain.VideoFile) error

// Walk 递归遍历 root，对每个文件名后缀命中 Extensions 的普通文件调用 visit。
//
// 规则：
// - root 不存在：零条目，正常返回
// - 目录读取失败：交给 OnError，跳过该目录，继续遍历
// - 目录符号链接不跟随（避免环）；文件符号链接解析后若是普通文件则计入
// - 非普通文件（fifo/socket/device）忽略
//
// 遍历是流式的：visit 期间新写入、且尚未被列举的目录内容仍可能被访问到。
// 调用方不应依赖访问顺序。
func Walk(fs afero.Fs, root string, opt Options, visit VisitFunc) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	root = absRoot

	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		report(opt, root, err)
		return nil
	}
	if !fi.IsDir() {
		report(opt, root, fmt.Errorf("%w：%s", ErrNotDir, root))
		return nil
	}

	excluded := buildExcluded(root, opt.ExcludeDirs)

	// root 本身是指向目录的符号链接时，带上结尾分隔符让 Lstat 穿透它。
	walkRoot := root
	if l, ok := fs.(afero.Lstater); ok {
		if li, lstatCalled, err := l.LstatIfPossible(root); err == nil && lstatCalled && li.Mode()&os.ModeSymlink != 0 {
			walkRoot = root + string(filepath.Separator)
		}
	}

	return afero.Walk(fs, walkRoot, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			report(opt, path, walkErr)
			if info != nil && info.IsDir() && path != walkRoot {
				return filepath.SkipDir
			}
			return nil
		}

		if isExcluded(path, excluded) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			return nil
		}

		name := info.Name()
		if !opt.Extensions.Match(name) {
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, err := fs.Stat(path)
			if err != nil {
				report(opt, path, err)
				return nil
			}
			info = target
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		return visit(domain.VideoFile{
			AbsPath: path,
			RelPath: rel,
			Name:    name,
			Size:    info.Size(),
			ModUnix: info.ModTime().Unix(),
		})
	})
}

// ScanVideos 收集 root 下全部命中文件，并按 RelPath 排序（用于 scan 子命令的稳定输出）。
func ScanVideos(fs afero.Fs, root string, opt Options) ([]domain.VideoFile, error) {
	files := make([]domain.VideoFile, 0, 128)
	err := Walk(fs, root, opt, func(v domain.VideoFile) error {
		files = append(files, v)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func report(opt Options, path string, err error) {
	if opt.OnError != nil {
		opt.OnError(path, err)
	}
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, len(excludeDirs))
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		// x 是相对路径：相对 root。
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
