package domain

import (
	"reflect"
	"testing"
)

func TestExtensionSet_MatchCaseInsensitive(t *testing.T) {
	s := DefaultExtensionSet()

	for _, name := range []string{"a.mp4", "CLIP.MP4", "b.MKV", "x.WebM", "y.tar.mov"} {
		if !s.Match(name) {
			t.Fatalf("期望匹配：%q", name)
		}
	}
	for _, name := range []string{"notes.txt", "mp4", "a.mp4.part", "a.mp3", "movie.m4v"} {
		if s.Match(name) {
			t.Fatalf("不期望匹配：%q", name)
		}
	}
}

func TestNewExtensionSet_Normalize(t *testing.T) {
	s := NewExtensionSet([]string{" MP4 ", ".mkv", "mp4", "", ".", ".TS"})
	want := []string{".mp4", ".mkv", ".ts"}
	if got := s.List(); !reflect.DeepEqual(got, want) {
		t.Fatalf("规范化结果不符合预期：got=%v want=%v", got, want)
	}
	if !s.Match("stream.ts") || s.Match("a.avi") {
		t.Fatalf("自定义集合匹配不正确：%v", s.List())
	}
}

func TestNewExtensionSet_EmptyFallsBackToDefault(t *testing.T) {
	s := NewExtensionSet([]string{"  ", ""})
	if got := s.List(); !reflect.DeepEqual(got, DefaultExtensions) {
		t.Fatalf("空集合应回退默认：%v", got)
	}

	var zero ExtensionSet
	if !zero.Match("a.webm") {
		t.Fatalf("零值集合应按默认集合匹配")
	}
}

func TestExtensionSet_ListIsCopy(t *testing.T) {
	s := DefaultExtensionSet()
	l := s.List()
	l[0] = ".zzz"
	if s.Match("a.zzz") || !s.Match("a.mp4") {
		t.Fatalf("List 返回值不应影响集合本身")
	}
}
