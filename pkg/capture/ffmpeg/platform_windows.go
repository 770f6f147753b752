//go:build windows

package ffmpeg

func platformInputFormat() string { return "dshow" }

func platformDefaultDevice() string { return "audio=default" }
