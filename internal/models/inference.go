package models

// Role of a message in an inference request
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

const (
	BlockText     = "text"
	BlockImageURL = "image_url"
)

// ImageURL wraps a data URI of a rendered page
type ImageURL struct {
	URL string `json:"url"`
}

// ContentBlock is either a text block or an image block
type ContentBlock struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

func ImageBlock(url string) ContentBlock {
	return ContentBlock{Type: BlockImageURL, ImageURL: &ImageURL{URL: url}}
}

type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// InferenceRequest is the ordered message list sent to the reasoning service
type InferenceRequest struct {
	Messages []Message `json:"messages"`
}

// ImageCount returns the number of image blocks across all messages
func (r InferenceRequest) ImageCount() int {
	n := 0
	for _, m := range r.Messages {
		for _, b := range m.Content {
			if b.Type == BlockImageURL {
				n++
			}
		}
	}
	return n
}
