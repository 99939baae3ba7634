package recognizer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"resumechat/internal/domain"
	"resumechat/internal/ports"
)

const minChunkSize = 256

// pumpAudio copies microphone chunks into the stream until the capture ends.
func pumpAudio(
	audio io.Reader,
	stream ports.StreamingSession,
	chunkSize int,
	report func(domain.ErrorCode, string),
	done chan<- struct{},
) {
	defer close(done)

	if chunkSize < minChunkSize {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				report(domain.ErrorCodeAudioStream, fmt.Sprintf("failed to stream audio: %v", sendErr))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				report(domain.ErrorCodeAudioStream, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}

// drainStream waits for the provider to deliver its last results, closing the
// session if it takes longer than timeout.
func drainStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		_ = session.Close()
		return <-done
	}
}
