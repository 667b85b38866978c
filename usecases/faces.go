package usecases

import (
	"encoding/hex"
	"fmt"

	"smartdoor-relay/clock"
	"smartdoor-relay/entities"
	"smartdoor-relay/repositories"
)

type FacesUseCase struct {
	faces repositories.FaceStore
	clock clock.Clock
}

func NewFacesUseCase(faces repositories.FaceStore, clk clock.Clock) *FacesUseCase {
	return &FacesUseCase{faces: faces, clock: clk}
}

// Register stores a face feature vector, replacing one with the same name.
func (uc *FacesUseCase) Register(name, featureHex, imageHex string) (entities.Face, error) {
	if name == "" || featureHex == "" {
		return entities.Face{}, validationError("person_name and feature_hex are required")
	}
	if _, err := hex.DecodeString(featureHex); err != nil {
		return entities.Face{}, validationError("feature_hex is not valid hex")
	}
	if imageHex != "" {
		if _, err := hex.DecodeString(imageHex); err != nil {
			return entities.Face{}, validationError("image_hex is not valid hex")
		}
	}
	face := entities.Face{
		PersonName:   name,
		FeatureHex:   featureHex,
		ImageHex:     imageHex,
		RegisteredAt: uc.clock.Now(),
	}
	uc.faces.Put(face)
	return face, nil
}

func (uc *FacesUseCase) List() []entities.Face {
	out := uc.faces.List()
	if out == nil {
		out = []entities.Face{}
	}
	return out
}

// Download returns the face and its decoded feature bytes.
func (uc *FacesUseCase) Download(name string) (entities.Face, []byte, error) {
	face, ok := uc.faces.Get(name)
	if !ok {
		return entities.Face{}, nil, fmt.Errorf("%w: face %s", ErrNotFound, name)
	}
	raw, err := hex.DecodeString(face.FeatureHex)
	if err != nil {
		return entities.Face{}, nil, err
	}
	return face, raw, nil
}

func (uc *FacesUseCase) Delete(name string) error {
	if !uc.faces.Delete(name) {
		return fmt.Errorf("%w: face %s", ErrNotFound, name)
	}
	return nil
}

// SyncPlan tells a device which faces to fetch and which the relay lacks.
type SyncPlan struct {
	ToDownload []string `json:"to_download"`
	ToUpload   []string `json:"to_upload"`
	Synced     int      `json:"synced"`
	Total      int      `json:"total"`
}

func (uc *FacesUseCase) Sync(local []string) SyncPlan {
	have := make(map[string]struct{}, len(local))
	for _, n := range local {
		have[n] = struct{}{}
	}
	plan := SyncPlan{ToDownload: []string{}, ToUpload: []string{}}
	remote := make(map[string]struct{})
	for _, f := range uc.faces.List() {
		remote[f.PersonName] = struct{}{}
		if _, ok := have[f.PersonName]; ok {
			plan.Synced++
		} else {
			plan.ToDownload = append(plan.ToDownload, f.PersonName)
		}
	}
	for _, n := range local {
		if _, ok := remote[n]; !ok {
			plan.ToUpload = append(plan.ToUpload, n)
		}
	}
	plan.Total = len(remote)
	return plan
}
