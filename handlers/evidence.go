package handlers

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"github.com/rafaaw/ActivityPro-sub000/engine"
	"github.com/rafaaw/ActivityPro-sub000/initializers"
	"github.com/rafaaw/ActivityPro-sub000/types"
)

type EvidenceHandler struct {
	engine *engine.Engine
}

func NewEvidenceHandler(eng *engine.Engine) *EvidenceHandler {
	return &EvidenceHandler{engine: eng}
}

// UploadEvidence stores a completion-evidence file and links it to the
// activity. The MIME type is detected from content, never trusted from the
// client header.
func (h *EvidenceHandler) UploadEvidence(c *gin.Context) {
	if initializers.MinioClient == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.ErrorCodeInternal, "evidence storage is not configured"))
		return
	}
	id, ok := pathID(c, "activityId")
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, initializers.Conf.MaxSize)
	file, err := c.FormFile("file")
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "request body too large") {
			c.JSON(http.StatusRequestEntityTooLarge, types.NewErrorResponse(types.ErrorCodeValidation, "file size exceeds the limit"))
			return
		}
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "file is required"))
		return
	}

	sniff, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "cannot open uploaded file"))
		return
	}
	mt, err := mimetype.DetectReader(sniff)
	_ = sniff.Close()
	if err != nil || mt == nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "failed to detect file type"))
		return
	}
	contentType := strings.Split(mt.String(), ";")[0]
	if err := initializers.CheckFileAllowed(file.Size, contentType); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}

	evidenceID := fmt.Sprintf("%d/%s", id, uuid.NewString())
	if err := h.putObject(c, file, evidenceID, contentType); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}

	updated, err := h.engine.AttachEvidence(c.Request.Context(), id, c.GetInt("userId"), evidenceID)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, types.NewSuccessResponse(gin.H{
		"activity":   updated,
		"evidenceId": evidenceID,
		"filename":   file.Filename,
		"size":       file.Size,
	}))
}

func (h *EvidenceHandler) putObject(c *gin.Context, file *multipart.FileHeader, key, contentType string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = initializers.MinioClient.PutObject(c.Request.Context(), initializers.Conf.Bucket, key, src, file.Size,
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// GetEvidence redirects to a presigned download URL for the activity's
// evidence object.
func (h *EvidenceHandler) GetEvidence(c *gin.Context) {
	if initializers.MinioClient == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.ErrorCodeInternal, "evidence storage is not configured"))
		return
	}
	id, ok := pathID(c, "activityId")
	if !ok {
		return
	}
	activity, err := h.engine.GetActivity(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	if activity.EvidenceID == nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "Activity has no evidence"))
		return
	}
	signed, err := initializers.MinioClient.PresignedGetObject(c.Request.Context(),
		initializers.Conf.Bucket, *activity.EvidenceID, initializers.Conf.Expiry, url.Values{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.Redirect(http.StatusFound, signed.String())
}
