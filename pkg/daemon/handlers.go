package daemon

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/control"
	"github.com/charlie0129/markercam/pkg/version"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	calibration.Status
	SessionID string `json:"sessionId"`
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}

func getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, StatusResponse{
		Status:    pipe.Status(),
		SessionID: sessionID,
	})
}

func getCalibration(c *gin.Context) {
	r := pipe.Result()
	if r == nil {
		err := errors.New("no calibration available yet")
		c.IndentedJSON(http.StatusNotFound, err.Error())
		_ = c.AbortWithError(http.StatusNotFound, err)
		return
	}
	c.IndentedJSON(http.StatusOK, r)
}

func deleteCalibration(c *gin.Context) {
	if err := pipe.InvalidateCalibration(); err != nil {
		logrus.Errorf("deleteCalibration failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Info("calibration file removed; the next run will recalibrate")

	c.IndentedJSON(http.StatusOK, "calibration file removed. The next run will recalibrate.")
}

func postControl(c *gin.Context) {
	e, err := control.ParseEvent(c.Param("event"))
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if !controls.Push(e) {
		err := errors.New("control queue is full, try again later")
		c.IndentedJSON(http.StatusServiceUnavailable, err.Error())
		_ = c.AbortWithError(http.StatusServiceUnavailable, err)
		return
	}

	logrus.WithField("event", e).Info("control event queued")

	c.IndentedJSON(http.StatusAccepted, "ok")
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, VersionResponse{
		Version:   version.Version,
		GitCommit: version.GitCommit,
	})
}
