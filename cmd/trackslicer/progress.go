package main

import (
	"fmt"
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/maauso/trackslicer/internal/batch"
)

// progress renders a bar advanced by every finished track.
type progress struct {
	out io.Writer
	p   *mpb.Progress
	bar *mpb.Bar
}

func newProgress(out io.Writer) *progress {
	return &progress{out: out}
}

// Planned implements batch.Listener.
func (pr *progress) Planned(_ string, tracks []batch.Track) {
	pr.p = mpb.New(mpb.WithWidth(64), mpb.WithOutput(pr.out))
	pr.bar = pr.p.AddBar(int64(len(tracks)),
		mpb.PrependDecorators(
			decor.Name("Cutting: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)
}

// TrackDone implements batch.Listener.
func (pr *progress) TrackDone(_ string, _ batch.Track) {
	pr.bar.Increment()
}

// Wait stops rendering. A batch that did not succeed leaves its bar where
// it stopped.
func (pr *progress) Wait(ok bool) {
	if pr.p == nil {
		return
	}
	if !ok {
		pr.bar.Abort(false)
	}
	pr.p.Wait()
}

func printSummary(w io.Writer, b *batch.Batch) {
	fmt.Fprintf(w, "%s: %s (%s)\n", b.Session, b.Status, b.Strategy)
	for _, t := range b.Tracks {
		fmt.Fprintf(w, "  %2d  %-8s %9.2f %9.2f  %s\n", t.Index+1, t.Status, t.Start, t.End, t.Song)
		switch {
		case t.Error != "":
			fmt.Fprintf(w, "      error: %s\n", t.Error)
		case t.Location != "":
			fmt.Fprintf(w, "      %s\n", t.Location)
		case t.Status == batch.TrackDone:
			fmt.Fprintf(w, "      %s\n", t.OutputPath)
		}
	}
	if b.Discarded > 0 {
		fmt.Fprintf(w, "  %d song(s) discarded, no audio was captured for them\n", b.Discarded)
	}
	if b.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", b.Error)
	}
}
