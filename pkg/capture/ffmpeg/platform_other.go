//go:build !linux && !darwin && !windows

package ffmpeg

func platformInputFormat() string { return "alsa" }

func platformDefaultDevice() string { return "default" }
