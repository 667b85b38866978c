package entities

import (
	"fmt"
	"time"
)

// Face is a registered face feature vector, hex encoded as the devices
// produce it.
type Face struct {
	PersonName   string    `json:"person_name"`
	FeatureHex   string    `json:"feature_hex"`
	ImageHex     string    `json:"image_hex,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// FaceID is unique within the registry, which keys faces by person name.
func (f Face) FaceID() string {
	return fmt.Sprintf("face_%s_%d", f.PersonName, f.RegisteredAt.Unix())
}
