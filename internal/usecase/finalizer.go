package usecase

import (
	"resumechat/internal/dictation"
	"resumechat/internal/ports"
)

type transcriptFinalizer struct {
	post        ports.PostProcessor
	transcripts ports.TranscriptSink
}

func newTranscriptFinalizer(post ports.PostProcessor, transcripts ports.TranscriptSink) transcriptFinalizer {
	return transcriptFinalizer{post: post, transcripts: transcripts}
}

// Finalize post-processes the accumulated speech and hands the result to the host.
func (f transcriptFinalizer) Finalize(assembler *dictation.Assembler) string {
	text := assembler.Finalized(f.post)
	f.transcripts.OnTranscript(text)
	return text
}

// Interim hands the raw composed text to the host.
func (f transcriptFinalizer) Interim(assembler *dictation.Assembler) string {
	text := assembler.Composed()
	f.transcripts.OnTranscript(text)
	return text
}
