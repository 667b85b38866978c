package httpHandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartdoor-relay/usecases"
)

type FaceHandler struct {
	faces *usecases.FacesUseCase
}

func NewFaceHandler(uc *usecases.FacesUseCase) *FaceHandler {
	return &FaceHandler{faces: uc}
}

type registerFaceReq struct {
	PersonName string `json:"person_name"`
	FeatureHex string `json:"feature_hex"`
	ImageHex   string `json:"image_hex"`
}

// POST /api/face/register/hex
func (h *FaceHandler) Register(c *gin.Context) {
	var req registerFaceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		deviceError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	face, err := h.faces.Register(req.PersonName, req.FeatureHex, req.ImageHex)
	if err != nil {
		deviceError(c, statusFor(err), err.Error())
		return
	}
	deviceOK(c, "Face registered successfully", gin.H{"person_name": face.PersonName, "face_id": face.FaceID()})
}

// GET /api/face/list
func (h *FaceHandler) List(c *gin.Context) {
	faces := h.faces.List()
	list := make([]gin.H, 0, len(faces))
	for _, f := range faces {
		list = append(list, gin.H{
			"name":          f.PersonName,
			"face_id":       f.FaceID(),
			"registered_at": f.RegisteredAt.Unix(),
		})
	}
	deviceOK(c, "OK", gin.H{"faces": list, "total": len(list)})
}

// GET /api/face/download/:name[?format=hex]
func (h *FaceHandler) Download(c *gin.Context) {
	name := c.Param("name")
	face, raw, err := h.faces.Download(name)
	if err != nil {
		deviceError(c, statusFor(err), "Face not found")
		return
	}
	if c.Query("format") == "hex" {
		deviceOK(c, "OK", gin.H{
			"person_name":  face.PersonName,
			"feature_hex":  face.FeatureHex,
			"feature_size": len(raw),
		})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`.bin"`)
	c.Data(http.StatusOK, "application/octet-stream", raw)
}

// DELETE /api/face/:name
func (h *FaceHandler) Delete(c *gin.Context) {
	name := c.Param("name")
	deleted := 1
	msg := "Face deleted successfully"
	if err := h.faces.Delete(name); err != nil {
		deleted, msg = 0, "Face not found"
	}
	deviceOK(c, msg, gin.H{"person_name": name, "deleted_count": deleted})
}

type syncReq struct {
	LocalFaces []string `json:"local_faces"`
}

// POST /api/face/sync
func (h *FaceHandler) Sync(c *gin.Context) {
	var req syncReq
	if err := c.ShouldBindJSON(&req); err != nil {
		deviceError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	deviceOK(c, "Sync completed", h.faces.Sync(req.LocalFaces))
}
