package reddit

import "time"

// Post is a reddit submission that may reference a media file.
type Post struct {
	ID      string
	Title   string
	Author  string
	Created time.Time
	URL     string // Mutated as redirects and resolutions are followed.

	// Embedded media metadata, if reddit attached any.
	Media        *Media
	SecureMedia  *Media
	VideoPreview *Video
}

// Media is the "media"/"secure_media" object of a submission.
type Media struct {
	RedditVideo *Video `json:"reddit_video"`
}

// Video describes a video hosted by reddit itself.
type Video struct {
	FallbackURL string `json:"fallback_url"`
}

// FallbackURL returns a direct media url taken from the post's embedded
// metadata. It returns the empty string if the post carries none.
func (p *Post) FallbackURL() string {
	for _, m := range []*Media{p.SecureMedia, p.Media} {
		if m != nil && m.RedditVideo != nil && m.RedditVideo.FallbackURL != "" {
			return m.RedditVideo.FallbackURL
		}
	}
	if p.VideoPreview != nil {
		return p.VideoPreview.FallbackURL
	}
	return ""
}
