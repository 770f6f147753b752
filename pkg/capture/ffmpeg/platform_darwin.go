//go:build darwin

package ffmpeg

func platformInputFormat() string { return "avfoundation" }

func platformDefaultDevice() string { return ":0" }
