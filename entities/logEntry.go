package entities

import (
	"strings"
	"time"
)

const (
	KindSuccess = "success"
	KindReject  = "reject"
	KindSystem  = "system"
)

// Media is the image attached to a log entry. At most one of Inline and
// StorageKey is set; the zero value means no media.
type Media struct {
	Inline     string `json:"-"` // data URI
	StorageKey string `json:"-"`
}

func (m Media) Empty() bool { return m.Inline == "" && m.StorageKey == "" }

// LogEntry is one record of the bounded event history.
type LogEntry struct {
	ID       int64                  `json:"id"`
	Time     time.Time              `json:"time"`
	Kind     string                 `json:"type"`
	Message  string                 `json:"msg"`
	DeviceID string                 `json:"device_id,omitempty"`
	Extra    map[string]interface{} `json:"extra,omitempty"`
	Media    Media                  `json:"-"`
}

// LogView is the client-facing shape of a LogEntry. ImgURL carries either
// the inline data URI or a freshly signed URL.
type LogView struct {
	ID       int64                  `json:"id"`
	Time     time.Time              `json:"time"`
	Kind     string                 `json:"type"`
	Message  string                 `json:"msg"`
	DeviceID string                 `json:"device_id,omitempty"`
	Extra    map[string]interface{} `json:"extra,omitempty"`
	ImgURL   *string                `json:"imgUrl"`
}

// View renders the entry. signedURL is used only when the media lives in
// storage; an empty signedURL leaves ImgURL nil.
func (e LogEntry) View(signedURL string) LogView {
	v := LogView{
		ID:       e.ID,
		Time:     e.Time,
		Kind:     e.Kind,
		Message:  e.Message,
		DeviceID: e.DeviceID,
		Extra:    e.Extra,
	}
	switch {
	case e.Media.StorageKey != "":
		if signedURL != "" {
			v.ImgURL = &signedURL
		}
	case e.Media.Inline != "":
		inline := e.Media.Inline
		v.ImgURL = &inline
	}
	return v
}

// NormalizeImage turns raw base64 into a data URI, leaving data URIs as is.
func NormalizeImage(img string) string {
	if img == "" || strings.HasPrefix(img, "data:") {
		return img
	}
	return "data:image/jpeg;base64," + img
}
