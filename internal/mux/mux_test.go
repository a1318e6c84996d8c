package mux

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVDRTitleUnderscoreAsSpace(t *testing.T) {
	assert.Equal(t, "The Expanse S01E01", DecodeVDRTitle("The_Expanse_S01E01"))
}

func TestDecodeVDRTitleHexEscape(t *testing.T) {
	// "#20" is a space (redundant with underscore, but valid), "#E9" is
	// Windows-1252 0xE9 -> Latin small letter e with acute.
	assert.Equal(t, "Café", DecodeVDRTitle("Caf#E9"))
	assert.Equal(t, "A B", DecodeVDRTitle("A#20B"))
}

func TestDecodeVDRTitleWin1252HighRange(t *testing.T) {
	// 0x80 in Windows-1252 is the euro sign, distinct from Latin-1's
	// C1 control code at that position.
	assert.Equal(t, "€10", DecodeVDRTitle("#8010"))
}

func TestResolveLanguageFromFilename(t *testing.T) {
	assert.Equal(t, "deu", resolveLanguage(Track{Path: "Show_deu.ac3"}))
	assert.Equal(t, "eng", resolveLanguage(Track{Path: "Show_eng_2.ac3"}))
	assert.Equal(t, "", resolveLanguage(Track{Path: "Show.ac3"}))
}

func TestResolveLanguageExplicitOverridesFilename(t *testing.T) {
	assert.Equal(t, "fra", resolveLanguage(Track{Path: "Show_deu.ac3", Language: "fra"}))
}

func TestBuildArgsOrdersVideoAudioSubtitleChapters(t *testing.T) {
	opts := Options{
		OutputPath: "out.mkv",
		VideoPath:  "Movie_Title.264",
		FrameRate:  25.0,
		AudioTracks: []Track{
			{Path: "Movie_Title_deu.ac3"},
			{Path: "Movie_Title_eng.ac3"},
		},
		SubtitleTracks:    []Track{{Path: "Movie_Title_deu.srt"}},
		AudioSyncOffsetMs: 40,
		ChapterFile:       "chapters.txt",
	}
	args := BuildArgs(opts)
	joined := strings.Join(args, " ")

	require.Contains(t, joined, "-o out.mkv")
	require.Contains(t, joined, "--title Movie Title")
	require.Contains(t, joined, "--default-duration 0:40000000ns")
	require.Contains(t, joined, "--sync 1:-40")
	require.Contains(t, joined, "--sync 2:-40")
	require.Contains(t, joined, "--chapters chapters.txt")

	videoIdx := indexOf(args, "Movie_Title.264")
	audioIdx := indexOf(args, "Movie_Title_deu.ac3")
	subIdx := indexOf(args, "Movie_Title_deu.srt")
	chapIdx := indexOf(args, "chapters.txt")
	require.True(t, videoIdx < audioIdx)
	require.True(t, audioIdx < subIdx)
	require.True(t, subIdx < chapIdx)
}

func indexOf(args []string, want string) int {
	for i, a := range args {
		if a == want {
			return i
		}
	}
	return -1
}

func TestGenerateChapterFileUniformSpacing(t *testing.T) {
	dir := t.TempDir()
	path, err := GenerateChapterFile(125*60*1000, 60, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	require.Contains(t, content, "CHAPTER01=00:00:00.000")
	require.Contains(t, content, "CHAPTER01NAME=Chapter 1")
	require.Contains(t, content, "CHAPTER02=01:00:00.000")
	require.Contains(t, content, "CHAPTER03=02:00:00.000")
	require.NotContains(t, content, "CHAPTER04")
}

func TestGenerateChapterFileRejectsNonPositiveInterval(t *testing.T) {
	_, err := GenerateChapterFile(1000, 0, t.TempDir())
	require.Error(t, err)
}

func TestMuxRejectsMissingVideo(t *testing.T) {
	_, err := Mux(context.Background(), Options{VideoPath: filepath.Join(t.TempDir(), "missing.264")})
	require.Error(t, err)
}
