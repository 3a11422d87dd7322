package ffmpeg

import (
	"os"
	"runtime"
)

const (
	windowsFFmpegPath  = `C:\ffmpeg\bin\ffmpeg.exe`
	windowsFFprobePath = `C:\ffmpeg\bin\ffprobe.exe`
)

// FFmpegPath resolves the transcode binary: explicit env override, then the
// known Windows install path, then the bare command name (PATH lookup at
// exec time). Resolution never fails; a wrong path surfaces as the real
// invocation error downstream.
func FFmpegPath() string {
	if p := os.Getenv("FFMPEG_PATH"); p != "" {
		return p
	}
	if runtime.GOOS == "windows" {
		return windowsFFmpegPath
	}
	return "ffmpeg"
}

// FFprobePath resolves the probe binary with the same rules as FFmpegPath.
func FFprobePath() string {
	if p := os.Getenv("FFPROBE_PATH"); p != "" {
		return p
	}
	if runtime.GOOS == "windows" {
		return windowsFFprobePath
	}
	return "ffprobe"
}
