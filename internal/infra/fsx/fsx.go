package fsx

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"
)

// PathTypeConflictError 表示目标路径类型冲突（例如期望文件但实际是目录）。
// 上层可把它映射为 error_code=target_conflict。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// SameFileError 表示源文件与计算出的目标路径是同一个文件系统实体。
// 上层应把它当作“跳过”，而不是失败。
type SameFileError struct {
	Src string
	Dst string
}

func (e *SameFileError) Error() string {
	return fmt.Sprintf("源与目标是同一文件：%q -> %q", e.Src, e.Dst)
}

// IsSameFile 判断 err 是否为 SameFileError。
func IsSameFile(err error) bool {
	var e *SameFileError
	return errors.As(err, &e)
}

// VerifyError 表示复制后校验不一致（目标内容与读到的源内容不同）。
type VerifyError struct {
	Path string
	Want string
	Got  string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("复制校验失败：%q sha256=%s，期望 %s", e.Path, e.Got, e.Want)
}

func IsVerify(err error) bool {
	var e *VerifyError
	return errors.As(err, &e)
}

// EnsureDir 确保 dir 存在且是目录（必要时递归创建父目录）。
// 已存在的目录不会被清空；同名普通文件返回 PathTypeConflictError。
func EnsureDir(fs afero.Fs, dir string) error {
	fi, err := fs.Stat(dir)
	if err == nil {
		if fi.IsDir() {
			return nil
		}
		return &PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}
	if !os.IsNotExist(err) {
		return err
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	// MkdirAll 在部分实现上对“中途被替换为文件”的情况不报错，这里再确认一次。
	fi, err = fs.Stat(dir)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return &PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}
	return nil
}

// SameFile 判断 a 与 b 是否指向同一文件。
//
// 规则：
// - clean + absolute 后路径相同：相同
// - 两者都能 Stat 且 os.SameFile 为真（硬链接/符号链接）：相同
// - b 不存在：不同（不算错误）
func SameFile(fs afero.Fs, a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	if absA == absB {
		return true, nil
	}

	fb, err := fs.Stat(absB)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	fa, err := fs.Stat(absA)
	if err != nil {
		return false, err
	}
	// 非 OsFs 的 FileInfo 不携带 dev/ino，os.SameFile 会返回 false。
	return os.SameFile(fa, fb), nil
}

// CopyOptions 控制 CopyFile 的附加行为。
type CopyOptions struct {
	// PreserveTimes 把源文件的修改时间写到目标文件。
	PreserveTimes bool
	// Verify 在复制后重新读取目标并比对 SHA-256。
	Verify bool
}

// CopyResult 描述一次成功（或部分成功）的复制。
type CopyResult struct {
	Dst    string
	Size   int64
	SHA256 string // 仅 Verify=true 时填充
}

// CopyFile 把 src 复制到 dstDir/<src 原始文件名>。
//
// 语义：
// - 目标与源是同一文件：返回 SameFileError，不做任何写入
// - 目标已存在同名普通文件：覆盖（last-writer-wins）
// - 目标同名路径是目录：返回 PathTypeConflictError
// - 写入走“同目录临时文件 + rename”，失败时临时文件必须被清理
// - 权限位跟随源文件
func CopyFile(fs afero.Fs, src, dstDir string, opt CopyOptions) (CopyResult, error) {
	name := filepath.Base(src)
	dstDir = filepath.Clean(dstDir)
	dst := filepath.Join(dstDir, name)
	res := CopyResult{Dst: dst}

	same, err := SameFile(fs, src, dst)
	if err != nil {
		return res, err
	}
	if same {
		return res, &SameFileError{Src: src, Dst: dst}
	}

	if fi, err := fs.Stat(dst); err == nil {
		if fi.IsDir() {
			return res, &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
		}
	} else if !os.IsNotExist(err) {
		return res, err
	}

	in, err := fs.Open(src)
	if err != nil {
		return res, err
	}
	defer in.Close()

	si, err := in.Stat()
	if err != nil {
		return res, err
	}
	if !si.Mode().IsRegular() {
		return res, &PathTypeConflictError{Path: src, Want: "regular file", Got: si.Mode().Type().String()}
	}

	h := sha256.New()
	err = writeFileAtomic(fs, dstDir, name, si.Mode().Perm(), func(w io.Writer) error {
		if opt.Verify {
			w = io.MultiWriter(w, h)
		}
		n, err := io.Copy(w, in)
		res.Size = n
		return err
	})
	if err != nil {
		return res, err
	}

	if opt.PreserveTimes {
		mt := si.ModTime()
		if err := fs.Chtimes(dst, mt, mt); err != nil {
			return res, err
		}
	}

	if opt.Verify {
		want := hex.EncodeToString(h.Sum(nil))
		got, err := HashFile(fs, dst)
		if err != nil {
			return res, err
		}
		if got != want {
			// 校验失败的目标不可信：尽量删除，避免留下“看起来正常”的坏文件。
			_ = fs.Remove(dst)
			return res, &VerifyError{Path: dst, Want: want, Got: got}
		}
		res.SHA256 = want
	}
	return res, nil
}

// HashFile 计算文件内容的 SHA-256（hex）。
func HashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteFileAtomicReplace 在 dir 下原子写入 name（临时文件 + rename），已存在则覆盖。
// 用于 report / gallery 等内部产物。
func WriteFileAtomicReplace(fs afero.Fs, dir, name string, data []byte) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeFileAtomic(fs, dir, name, 0o644, func(w io.Writer) error {
		return writeAll(w, data)
	})
}

// writeFileAtomic 的约束：
// - 临时文件必须与目标文件在同目录，以保证 rename 的原子性
// - 对临时文件做 Sync；目录 Sync 采用 best-effort（避免平台差异导致误报失败）
func writeFileAtomic(fs afero.Fs, dir, name string, perm os.FileMode, fill func(w io.Writer) error) error {
	dst := filepath.Join(dir, name)

	// 前缀带 '.'，且后缀为随机串，不会被扩展名过滤误判为视频。
	tmp, err := afero.TempFile(fs, dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		_ = fs.Remove(tmpName)
	}()

	if err := fill(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	closed = true
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := fs.Chmod(tmpName, perm); err != nil {
		return err
	}

	if err := fs.Rename(tmpName, dst); err != nil {
		return err
	}

	_ = syncDirBestEffort(fs, dir)
	return nil
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func syncDirBestEffort(fs afero.Fs, dir string) error {
	// Windows 上目录 Sync 的语义与支持情况不稳定，这里直接跳过。
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := fs.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
