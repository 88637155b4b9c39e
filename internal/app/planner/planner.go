package planner

import (
	"path/filepath"
	"sort"
)

// Claims 记录本次运行中每个目标文件名最后一次由哪个源文件写入。
//
// 目标目录是扁平的：不同子目录下的同名文件会落到同一个目标名上，后写覆盖先写。
// Claims 不改变这一行为，只负责把“覆盖了本次运行早先的副本”识别出来，交给上层标记。
// 非并发安全：collect 是单 goroutine 顺序执行。
type Claims struct {
	owner map[string]string
}

func NewClaims() *Claims {
	return &Claims{owner: map[string]string{}}
}

// Claim 登记 src 写入 dstName。
//
// 返回值：
// - prev：此前占用该名字的源文件（没有则为空）
// - overwrote：prev 非空且与 src 不同（同一源重复登记不算覆盖）
func (c *Claims) Claim(dstName, src string) (prev string, overwrote bool) {
	src = filepath.Clean(src)
	prev, ok := c.owner[dstName]
	c.owner[dstName] = src
	if !ok {
		return "", false
	}
	return prev, prev != src
}

// Owner 返回当前占用 dstName 的源文件。
func (c *Claims) Owner(dstName string) (string, bool) {
	src, ok := c.owner[dstName]
	return src, ok
}

// Len 返回已登记的目标名数量。
func (c *Claims) Len() int { return len(c.owner) }

// Names 返回已登记的目标名（排序后），用于稳定输出。
func (c *Claims) Names() []string {
	out := make([]string, 0, len(c.owner))
	for n := range c.owner {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
