package results

import "net/url"

// Links builds client URLs for artifacts. With an empty BaseURL the URLs are host-relative.
type Links struct {
	BaseURL string
}

func (l Links) AudioURL(name string) string {
	return l.BaseURL + "/audio/" + url.PathEscape(name)
}

func (l Links) TranscriptURL(name string) string {
	return l.BaseURL + "/transcripts/" + url.PathEscape(name)
}
