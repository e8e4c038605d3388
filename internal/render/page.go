package render

import (
	"fmt"
	"html/template"
	"io"

	"github.com/reelroll/reelroll/internal/loader"
)

var playerPageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{if .Title}}{{.Title}} — {{end}}reelroll</title>
    <link rel="stylesheet" href="/style.css" nonce="{{.Nonce}}">
</head>
<body>
    <main class="container">
        <h1>reelroll</h1>
        <form method="get" action="/player">
            <button id="watchBtn" type="submit">{{.Label}}</button>
        </form>
        <div id="player">{{.Content}}</div>
    </main>
</body>
</html>
`))

type pageData struct {
	Title   string
	Nonce   string
	Label   string
	Content template.HTML
}

// Page writes a complete document showing state in the player container.
// It serves clients without JavaScript, so state is always terminal and the
// control is always enabled.
func Page(w io.Writer, state loader.State, nonce string) error {
	content, err := HTML(state)
	if err != nil {
		return err
	}

	data := pageData{
		Nonce:   nonce,
		Label:   loader.LabelIdle,
		Content: content,
	}
	if state.Phase == loader.PhaseSuccess {
		data.Title = state.Video.Title
	}

	if err := playerPageTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render player page: %w", err)
	}
	return nil
}
