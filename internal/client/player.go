package client

import "context"

// Player is the handle to the platform's primary video element. The core only
// needs its time/play-state and the ability to drive it; how the element is
// found is the detector's problem.
type Player interface {
	CurrentTime() float64
	Duration() float64
	Paused() bool
	SetCurrentTime(seconds float64) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
}

type VideoInfo struct {
	Platform   string `json:"platform"`
	HasVideo   bool   `json:"hasVideo"`
	VideoCount int    `json:"videoCount"`
}

// VideoDetector is the platform-specific discovery collaborator. It reports
// whether the page has a video and returns the primary element's handle.
type VideoDetector interface {
	Detect(ctx context.Context) (VideoInfo, Player, error)
}
