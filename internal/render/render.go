// Package render turns loader states into the markup the player container
// shows, independent of how the state was reached.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/reelroll/reelroll/internal/loader"
	"github.com/reelroll/reelroll/internal/video"
)

const (
	MessageLoading = "Loading..."
	MessageFailed  = "Could not load video. Please try again."
)

var fragmentTemplate = template.Must(template.New("player").Parse(`
{{- define "Idle"}}{{end -}}
{{- define "Loading"}}<p class="status">Loading...</p>{{end -}}
{{- define "Retrying"}}<p class="status">Loading... (Attempt {{.Attempt}}/{{.Of}})</p>{{end -}}
{{- define "Success"}}<div class="video-info">
    <h3>{{.Video.Title}}</h3>
    <p>By <strong>{{.Video.Photographer}}</strong> • {{.Video.Duration}}s</p>
</div>
<div class="video-wrapper">
    <video controls autoplay>
        <source src="{{.Video.VideoURL}}" type="video/mp4">
        Your browser does not support the video tag.
    </video>
</div>{{end -}}
{{- define "Failed"}}<div class="load-error">
    <p class="load-error-title">Could not load video. Please try again.</p>
    <p class="load-error-detail">Error: {{.Err}}</p>
</div>{{end -}}
`))

// HTML renders the player container's content for state.
func HTML(state loader.State) (template.HTML, error) {
	name, err := templateName(state.Phase)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := fragmentTemplate.ExecuteTemplate(&buf, name, fragmentData(state)); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}

// Text renders state as plain lines for a terminal.
func Text(state loader.State) string {
	switch state.Phase {
	case loader.PhaseLoading:
		return MessageLoading
	case loader.PhaseRetrying:
		return fmt.Sprintf("%s (Attempt %d/%d)", MessageLoading, state.Attempt(), state.Of)
	case loader.PhaseSuccess:
		v := state.Video
		return strings.Join([]string{
			v.Title,
			Attribution(v.Photographer, v.Duration),
			v.VideoURL,
		}, "\n")
	case loader.PhaseFailed:
		return MessageFailed + "\nError: " + errorText(state.Err)
	}
	return ""
}

// Attribution is the credit line shown under a video's title.
func Attribution(photographer string, duration int) string {
	return fmt.Sprintf("By %s • %ds", photographer, duration)
}

type fragment struct {
	Attempt int
	Of      int
	Video   video.Descriptor
	Err     string
}

func fragmentData(state loader.State) fragment {
	return fragment{
		Attempt: state.Attempt(),
		Of:      state.Of,
		Video:   state.Video,
		Err:     errorText(state.Err),
	}
}

func templateName(p loader.Phase) (string, error) {
	switch p {
	case "", loader.PhaseIdle:
		return "Idle", nil
	case loader.PhaseLoading, loader.PhaseRetrying, loader.PhaseSuccess, loader.PhaseFailed:
		return string(p), nil
	}
	return "", fmt.Errorf("render: unknown phase %q", p)
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
