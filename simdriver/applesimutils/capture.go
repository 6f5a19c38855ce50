package applesimutils

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spance/simdriver-go/constants"
	"github.com/spance/simdriver-go/simdriver/definitions"
	"github.com/spance/simdriver-go/utils"
)

// Recording is a running `simctl io recordVideo` process.
type Recording struct {
	id   string
	udid string
	path string
	proc utils.Process

	once sync.Once
	done chan struct{}
	err  error
}

func (r *Recording) ID() string { return r.id }

// Path is where the video is written once the recording stops.
func (r *Recording) Path() string { return r.path }

// stop interrupts the recorder once; the returned channel closes when it has exited.
func (r *Recording) stop() <-chan struct{} {
	r.once.Do(func() {
		r.done = make(chan struct{})
		go func() {
			defer close(r.done)
			if err := r.proc.Interrupt(); err != nil {
				r.err = err
				return
			}
			r.err = r.proc.Wait()
		}()
	})
	return r.done
}

func (r *Backend) TakeScreenshot(ctx context.Context, udid string) (string, error) {
	path := filepath.Join(r.ArtifactsDir, fmt.Sprintf("screenshot_%s.png", r.newID()))
	if _, err := r.simctl(ctx, "TakeScreenshot", "io", udid, "screenshot", path); err != nil {
		return "", err
	}
	return path, nil
}

func (r *Backend) StartVideo(ctx context.Context, udid string) (definitions.RecordingHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := r.newID()
	path := filepath.Join(r.ArtifactsDir, fmt.Sprintf("video_%s.mp4", id))
	proc, err := r.Starter.Start(utils.Command{
		Tag:  "StartVideo",
		Name: constants.XcrunPath,
		Args: []string{"simctl", "io", udid, "recordVideo", path},
	})
	if err != nil {
		return nil, err
	}
	return &Recording{id: id, udid: udid, path: path, proc: proc}, nil
}

// StopVideo interrupts the recorder and waits for it to finish writing.
// If ctx ends first, ctx's error is returned and a later call waits again.
func (r *Backend) StopVideo(ctx context.Context, udid string, handle definitions.RecordingHandle) (string, error) {
	recording, ok := handle.(*Recording)
	if !ok {
		return "", fmt.Errorf("unexpected recording handle %T", handle)
	}
	if recording.udid != udid {
		return "", fmt.Errorf("recording %s belongs to %s, not %s", recording.id, recording.udid, udid)
	}

	select {
	case <-recording.stop():
		if recording.err != nil {
			return "", recording.err
		}
	case <-ctx.Done():
		log.Warn().Str("udid", udid).Str("recording", recording.id).Msg("[StopVideo] gave up waiting for recorder")
		return "", ctx.Err()
	}
	return recording.path, nil
}
