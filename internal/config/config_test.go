package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoadEffective_NoConfigUsesCLIAndDefaults(t *testing.T) {
	clearEnv(t)
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{Source: "in", Destination: "/abs/out"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Source != filepath.Join(cwd, "in") {
		t.Fatalf("相对 source 应按 cwd 解析：%q", eff.Source)
	}
	if eff.Destination != filepath.Clean("/abs/out") {
		t.Fatalf("destination 不符合预期：%q", eff.Destination)
	}
	if eff.ConfigFile != "" {
		t.Fatalf("未读取配置文件时 ConfigFile 应为空：%q", eff.ConfigFile)
	}
	if !reflect.DeepEqual(eff.Extensions.List(), []string{".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm"}) {
		t.Fatalf("默认扩展名不符合预期：%v", eff.Extensions.List())
	}
	if eff.Gallery.URLPrefix != DefaultURLPrefix || eff.Gallery.Enabled {
		t.Fatalf("gallery 默认值不符合预期：%+v", eff.Gallery)
	}
	if eff.Publish.Enabled() {
		t.Fatalf("未配置 bucket 时不应启用 publish")
	}
	if eff.LogLevel != "info" {
		t.Fatalf("默认日志级别应为 info：%q", eff.LogLevel)
	}
}

func TestLoadEffective_ConfigNotFound(t *testing.T) {
	clearEnv(t)
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{ConfigPath: "missing.toml"})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_MissingPath(t *testing.T) {
	clearEnv(t)
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "vidcollect.json"), []byte(`{"source":"src"}`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeMissingPath {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeMissingPath, err, Code(err))
	}
	if !strings.Contains(err.Error(), "destination") {
		t.Fatalf("错误信息应指出缺少 destination：%v", err)
	}
}

func TestLoadEffective_TOMLDiscoveredAndRelativeToFile(t *testing.T) {
	clearEnv(t)
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "vidcollect.toml"), []byte(`
source = "raw"
destination = "collected"
extensions = ["MP4", ".ts"]
exclude_dirs = ["tmp"]
verify = true
metrics_file = "metrics/vidcollect.prom"

[gallery]
enabled = true
url_prefix = "/media/"

[publish]
bucket = "videos"
prefix = "/archive/"
`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ConfigFile != filepath.Join(cwd, "vidcollect.toml") {
		t.Fatalf("ConfigFile 不符合预期：%q", eff.ConfigFile)
	}
	if eff.Source != filepath.Join(cwd, "raw") || eff.Destination != filepath.Join(cwd, "collected") {
		t.Fatalf("路径不符合预期：%q -> %q", eff.Source, eff.Destination)
	}
	if !reflect.DeepEqual(eff.Extensions.List(), []string{".mp4", ".ts"}) {
		t.Fatalf("扩展名不符合预期：%v", eff.Extensions.List())
	}
	if !eff.Verify || eff.DryRun || eff.PreserveTimes {
		t.Fatalf("布尔项不符合预期：%+v", eff)
	}
	if !eff.Gallery.Enabled || eff.Gallery.URLPrefix != "/media" {
		t.Fatalf("gallery 不符合预期：%+v", eff.Gallery)
	}
	if eff.Publish.Bucket != "videos" || eff.Publish.Prefix != "archive" || eff.Publish.Region != DefaultRegion {
		t.Fatalf("publish 不符合预期：%+v", eff.Publish)
	}
	if eff.MetricsFile != filepath.Join(cwd, "metrics", "vidcollect.prom") {
		t.Fatalf("metrics_file 不符合预期：%q", eff.MetricsFile)
	}
}

func TestLoadEffective_ExplicitConfigPathRelativeToItsDir(t *testing.T) {
	clearEnv(t)
	cwd := t.TempDir()
	etc := filepath.Join(cwd, "etc")
	if err := os.MkdirAll(etc, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	writeFile(t, filepath.Join(etc, "collect.yaml"), []byte("source: ../in\ndestination: out\ndry_run: true\n"))

	eff, err := LoadEffective(cwd, CLIArgs{ConfigPath: "etc/collect.yaml"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Source != filepath.Join(cwd, "in") || eff.Destination != filepath.Join(etc, "out") {
		t.Fatalf("配置文件里的相对路径应按文件所在目录解析：%q -> %q", eff.Source, eff.Destination)
	}
	if !eff.DryRun {
		t.Fatalf("期望 dry_run=true")
	}
}

func TestLoadEffective_DryRunCLIOverride(t *testing.T) {
	clearEnv(t)
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "vidcollect.json"), []byte(`{"source":"s","destination":"d","dry_run":true}`))

	eff, err := LoadEffective(cwd, CLIArgs{
		DryRun:    false,
		DryRunSet: true, // --dry-run=false
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.DryRun {
		t.Fatalf("期望 dry_run=false，实际=%v", eff.DryRun)
	}
}

func TestLoadEffective_MergeOrderCLIEnvFile(t *testing.T) {
	clearEnv(t)
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "vidcollect.yml"), []byte(`
source: from-file
destination: from-file-dst
extensions: [avi]
log_level: error
publish:
  bucket: file-bucket
`))

	t.Setenv(EnvSource, "/env/src")
	t.Setenv(EnvExtensions, "mkv, webm")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvS3Bucket, "env-bucket")

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Source != filepath.Clean("/env/src") {
		t.Fatalf("env 应覆盖配置文件：%q", eff.Source)
	}
	if eff.Destination != filepath.Join(cwd, "from-file-dst") {
		t.Fatalf("未被覆盖的项应来自配置文件：%q", eff.Destination)
	}
	if !reflect.DeepEqual(eff.Extensions.List(), []string{".mkv", ".webm"}) {
		t.Fatalf("env 扩展名未生效：%v", eff.Extensions.List())
	}
	if eff.LogLevel != "warn" || eff.Publish.Bucket != "env-bucket" {
		t.Fatalf("env 覆盖不符合预期：level=%q bucket=%q", eff.LogLevel, eff.Publish.Bucket)
	}

	// CLI 显式指定，则覆盖 env。
	eff2, err := LoadEffective(cwd, CLIArgs{
		Source:        "cli-src",
		Extensions:    []string{"mov,flv"},
		ExtensionsSet: true,
		LogLevel:      "debug",
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff2.Source != filepath.Join(cwd, "cli-src") {
		t.Fatalf("CLI 应覆盖 env：%q", eff2.Source)
	}
	if !reflect.DeepEqual(eff2.Extensions.List(), []string{".mov", ".flv"}) {
		t.Fatalf("CLI 扩展名未生效：%v", eff2.Extensions.List())
	}
	if eff2.LogLevel != "debug" {
		t.Fatalf("CLI 日志级别未生效：%q", eff2.LogLevel)
	}
}

func TestLoadEffective_TOMLUnknownKeysAreWarnings(t *testing.T) {
	clearEnv(t)
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "vidcollect.toml"), []byte("source = \"s\"\ndestination = \"d\"\nconcurrency = 8\n"))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("未知键不应导致失败：%v", err)
	}
	if len(eff.Warnings) != 1 || !strings.Contains(eff.Warnings[0], "concurrency") {
		t.Fatalf("期望一条未知键警告：%v", eff.Warnings)
	}
}

func TestLoadEffective_InvalidInputs(t *testing.T) {
	cases := map[string]string{
		"broken_json":     `{`,
		"bad_log_level":   `{"source":"s","destination":"d","log_level":"loud"}`,
		"bad_url_prefix":  `{"source":"s","destination":"d","gallery":{"url_prefix":"videos"}}`,
		"bad_endpoint":    `{"source":"s","destination":"d","publish":{"bucket":"b","endpoint":"ftp://x"}}`,
		"half_credential": `{"source":"s","destination":"d","publish":{"bucket":"b","access_key_id":"AK"}}`,
		"bad_proxy":       `{"source":"s","destination":"d","publish":{"bucket":"b","proxy":"ftp://p:21"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			cwd := t.TempDir()
			writeFile(t, filepath.Join(cwd, "vidcollect.json"), []byte(body))

			_, err := LoadEffective(cwd, CLIArgs{})
			if Code(err) != ErrCodeInvalid {
				t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
			}
		})
	}
}

func TestLoadEffective_UnsupportedExplicitFormat(t *testing.T) {
	clearEnv(t)
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "vidcollect.ini"), []byte("source=s"))

	_, err := LoadEffective(cwd, CLIArgs{ConfigPath: "vidcollect.ini"})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func TestLoadEffective_StaticCredentialsFromEnv(t *testing.T) {
	clearEnv(t)
	cwd := t.TempDir()
	t.Setenv(EnvS3Bucket, "b")
	t.Setenv(EnvS3AccessKeyID, "AK")
	t.Setenv(EnvS3SecretAccessKey, "SK")

	eff, err := LoadEffective(cwd, CLIArgs{Source: "s", Destination: "d"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !eff.Publish.Enabled() || eff.Publish.AccessKeyID != "AK" || eff.Publish.SecretAccessKey != "SK" {
		t.Fatalf("publish 凭证不符合预期：%+v", eff.Publish)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvSource, EnvDestination, EnvExtensions, EnvLogLevel, EnvS3Bucket, EnvS3AccessKeyID, EnvS3SecretAccessKey} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}

func TestLoadEffective_SourceOnly(t *testing.T) {
	clearEnv(t)
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{Source: "in", SourceOnly: true})
	if err != nil {
		t.Fatalf("SourceOnly 不应要求 destination：%v", err)
	}
	if eff.Source != filepath.Join(cwd, "in") || eff.Destination != "" {
		t.Fatalf("路径不符合预期：%q -> %q", eff.Source, eff.Destination)
	}

	_, err = LoadEffective(cwd, CLIArgs{SourceOnly: true})
	if Code(err) != ErrCodeMissingPath {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeMissingPath, err, Code(err))
	}
}
