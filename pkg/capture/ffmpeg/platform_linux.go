//go:build linux

package ffmpeg

func platformInputFormat() string { return "pulse" }

func platformDefaultDevice() string { return "default" }
